package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/notify"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Frame types exchanged with devices.
const (
	framePresent  = "present"
	frameCancel   = "cancel"
	frameNavigate = "navigate"
	frameDismiss  = "dismiss"
	framePing     = "ping"
	framePong     = "pong"
	framePermit   = "notifications_enabled"
	frameError    = "error"
)

type frame struct {
	Type         string               `json:"type"`
	Notification *notify.Notification `json:"notification,omitempty"`
	ID           *int32               `json:"id,omitempty"`
	Screen       domain.Screen        `json:"screen,omitempty"`
	SurveyID     string               `json:"survey_id,omitempty"`
	Enabled      *bool                `json:"enabled,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// ServeHTTP upgrades a device connection. The device is identified by the
// device_id query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := sanitizeDeviceID(r.URL.Query().Get("device_id"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	d := h.register(deviceID, ws)
	defer h.unregister(d)

	go h.writeLoop(ctx, d)
	h.readLoop(ctx, d)
}

func (h *Hub) writeLoop(ctx context.Context, d *device) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-d.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := d.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Debug("WebSocket write error", "error", err, "device_id", d.id)
				}
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, d *device) {
	for {
		var msg frame
		if err := wsjson.Read(ctx, d.conn, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by device", "device_id", d.id)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "device_id", d.id)
			}
			return
		}

		switch msg.Type {
		case framePing:
			h.reply(d, frame{Type: framePong})
		case framePermit:
			if msg.Enabled != nil {
				h.setEnabled(*msg.Enabled)
				h.logger.Info("device notification permission", "device_id", d.id, "enabled", *msg.Enabled)
			}
		case frameDismiss:
			h.handleDismiss(ctx, d, msg.SurveyID)
		default:
			h.logger.Debug("ignoring unknown frame", "type", msg.Type, "device_id", d.id)
		}
	}
}

func (h *Hub) handleDismiss(ctx context.Context, d *device, surveyID string) {
	if surveyID == "" {
		h.reply(d, frame{Type: frameError, Error: "survey_id required"})
		return
	}
	fn := h.dismissHandler()
	if fn == nil {
		h.logger.Warn("dismiss received with no handler", "survey_id", surveyID)
		return
	}
	if err := fn(ctx, surveyID); err != nil {
		h.logger.Error("failed to dismiss notification", "survey_id", surveyID, "device_id", d.id, "error", err)
		h.reply(d, frame{Type: frameError, SurveyID: surveyID, Error: "dismiss_failed"})
	}
}

func (h *Hub) reply(d *device, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case d.out <- data:
	default:
		h.logger.Warn("device queue full, dropping reply", "device_id", d.id, "type", f.Type)
	}
}
