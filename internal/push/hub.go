// Package push delivers notifications and navigation requests to connected
// devices over WebSocket.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/notify"
	"github.com/ashureev/survey-notify/internal/session"
	"github.com/coder/websocket"
)

const (
	// DefaultDeviceID is used when a device connects without an id.
	DefaultDeviceID = "default"
	deviceQueueSize = 64
)

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// DismissFunc handles a participant dismissing a survey notification on a device.
type DismissFunc func(ctx context.Context, surveyID string) error

type device struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
}

// Hub tracks connected devices and the notifications currently shown.
// It implements notify.Presenter and session.Navigator.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*device
	active  map[int32]notify.Notification
	enabled bool

	onDismiss      DismissFunc
	originPatterns []string
	logger         *slog.Logger
}

// NewHub creates a hub. notificationsEnabled is the initial permission state
// until a device reports its own.
func NewHub(notificationsEnabled bool, originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &Hub{
		devices:        make(map[string]*device),
		active:         make(map[int32]notify.Notification),
		enabled:        notificationsEnabled,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// OnDismiss sets the handler for device dismiss frames.
func (h *Hub) OnDismiss(fn DismissFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDismiss = fn
}

// Present records n as active and sends it to every connected device.
func (h *Hub) Present(_ context.Context, n notify.Notification) error {
	data, err := json.Marshal(frame{Type: framePresent, Notification: &n})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.active[n.ID] = n
	h.mu.Unlock()

	h.broadcast(data)
	return nil
}

// Cancel removes notification id from every device. The frame is sent even
// when the hub has no record of id, since a device may still show it from
// before a restart.
func (h *Hub) Cancel(_ context.Context, id int32) error {
	h.mu.Lock()
	delete(h.active, id)
	h.mu.Unlock()

	data, err := json.Marshal(frame{Type: frameCancel, ID: &id})
	if err != nil {
		return err
	}
	h.broadcast(data)
	return nil
}

// IsActive reports whether notification id is shown.
func (h *Hub) IsActive(_ context.Context, id int32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.active[id]
	return ok
}

// Enabled reports the last notification permission state a device reported.
func (h *Hub) Enabled(context.Context) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

// NavigateTo asks every connected device to open screen.
func (h *Hub) NavigateTo(_ context.Context, screen domain.Screen) {
	data, err := json.Marshal(frame{Type: frameNavigate, Screen: screen})
	if err != nil {
		h.logger.Error("failed to encode navigate frame", "error", err)
		return
	}
	h.broadcast(data)
}

// ActiveNotifications returns a snapshot of the notifications currently shown.
func (h *Hub) ActiveNotifications() []notify.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]notify.Notification, 0, len(h.active))
	for _, n := range h.active {
		out = append(out, n)
	}
	return out
}

// DeviceCount returns the number of connected devices.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, d := range h.devices {
		select {
		case d.out <- data:
		default:
			h.logger.Warn("device queue full, dropping frame", "device_id", d.id)
		}
	}
}

func (h *Hub) register(id string, conn *websocket.Conn) *device {
	d := &device{id: id, conn: conn, out: make(chan []byte, deviceQueueSize)}

	h.mu.Lock()
	existing := h.devices[id]
	h.devices[id] = d

	// Replay ongoing notifications so a reconnecting device shows them again.
	for _, n := range h.active {
		data, err := json.Marshal(frame{Type: framePresent, Notification: &n})
		if err != nil {
			continue
		}
		select {
		case d.out <- data:
		default:
		}
	}
	h.mu.Unlock()

	if existing != nil {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "device replaced")
	}
	h.logger.Info("device registered", "device_id", id)
	return d
}

func (h *Hub) unregister(d *device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.devices[d.id]; ok && current == d {
		delete(h.devices, d.id)
		h.logger.Info("device unregistered", "device_id", d.id)
	}
}

func (h *Hub) setEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = enabled
}

func (h *Hub) dismissHandler() DismissFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onDismiss
}

func sanitizeDeviceID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !deviceIDPattern.MatchString(id) {
		return DefaultDeviceID
	}
	return id
}

var (
	_ notify.Presenter  = (*Hub)(nil)
	_ session.Navigator = (*Hub)(nil)
)
