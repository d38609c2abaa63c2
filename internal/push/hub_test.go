package push

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/notify"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialDevice(t *testing.T, srv *httptest.Server, deviceID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?device_id=" + deviceID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func waitForDevices(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.DeviceCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PresentCancelWithoutDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub(true, nil, nil)

	n := notify.Notification{ID: 42, SurveyID: "s1", Target: domain.ScreenSurvey}
	require.NoError(t, h.Present(ctx, n))
	assert.True(t, h.IsActive(ctx, 42))
	assert.Len(t, h.ActiveNotifications(), 1)

	require.NoError(t, h.Cancel(ctx, 42))
	require.NoError(t, h.Cancel(ctx, 42))
	assert.False(t, h.IsActive(ctx, 42))
	assert.True(t, h.Enabled(ctx))
}

func TestHub_DeliversFramesToDevice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub(true, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialDevice(t, srv, "phone-1")
	waitForDevices(t, h, 1)

	require.NoError(t, h.Present(ctx, notify.Notification{ID: 7, SurveyID: "s1", Target: domain.ScreenSurvey}))
	f := readFrame(t, conn)
	assert.Equal(t, framePresent, f.Type)
	require.NotNil(t, f.Notification)
	assert.Equal(t, "s1", f.Notification.SurveyID)

	require.NoError(t, h.Cancel(ctx, 7))
	f = readFrame(t, conn)
	assert.Equal(t, frameCancel, f.Type)
	require.NotNil(t, f.ID)
	assert.Equal(t, int32(7), *f.ID)

	h.NavigateTo(ctx, domain.ScreenLogin)
	f = readFrame(t, conn)
	assert.Equal(t, frameNavigate, f.Type)
	assert.Equal(t, domain.ScreenLogin, f.Screen)
}

func TestHub_ReplaysActiveNotificationsOnConnect(t *testing.T) {
	t.Parallel()
	h := NewHub(true, nil, nil)
	require.NoError(t, h.Present(context.Background(), notify.Notification{ID: 1, SurveyID: "s1"}))

	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dialDevice(t, srv, "phone-1")

	f := readFrame(t, conn)
	assert.Equal(t, framePresent, f.Type)
	require.NotNil(t, f.Notification)
	assert.Equal(t, int32(1), f.Notification.ID)
}

func TestHub_DeviceFrames(t *testing.T) {
	t.Parallel()
	h := NewHub(true, nil, nil)

	var mu sync.Mutex
	var dismissed []string
	h.OnDismiss(func(_ context.Context, surveyID string) error {
		mu.Lock()
		defer mu.Unlock()
		dismissed = append(dismissed, surveyID)
		return nil
	})

	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dialDevice(t, srv, "phone-1")
	ctx := context.Background()

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: framePing}))
	assert.Equal(t, framePong, readFrame(t, conn).Type)

	disabled := false
	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: framePermit, Enabled: &disabled}))
	require.Eventually(t, func() bool { return !h.Enabled(ctx) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: frameDismiss, SurveyID: "s9"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dismissed) == 1 && dismissed[0] == "s9"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: frameDismiss}))
	f := readFrame(t, conn)
	assert.Equal(t, frameError, f.Type)
}

func TestHub_ReplacesDeviceWithSameID(t *testing.T) {
	t.Parallel()
	h := NewHub(true, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	dialDevice(t, srv, "phone-1")
	waitForDevices(t, h, 1)
	dialDevice(t, srv, "phone-1")
	dialDevice(t, srv, "tablet")
	waitForDevices(t, h, 2)
}

func TestSanitizeDeviceID(t *testing.T) {
	assert.Equal(t, DefaultDeviceID, sanitizeDeviceID(""))
	assert.Equal(t, DefaultDeviceID, sanitizeDeviceID("bad id!"))
	assert.Equal(t, "phone-1", sanitizeDeviceID(" phone-1 "))
}

func TestHub_CancelUnknownIDStillReachesDevices(t *testing.T) {
	t.Parallel()
	h := NewHub(true, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialDevice(t, srv, "phone-1")
	waitForDevices(t, h, 1)

	require.NoError(t, h.Cancel(context.Background(), 99))
	f := readFrame(t, conn)
	assert.Equal(t, frameCancel, f.Type)
	require.NotNil(t, f.ID)
	assert.Equal(t, int32(99), *f.ID)
}

// syncBuffer is a bytes.Buffer safe for use from connection goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHub_ConnectionLogsUseHubLogger(t *testing.T) {
	t.Parallel()
	out := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewHub(true, nil, logger)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialDevice(t, srv, "phone-7")
	waitForDevices(t, h, 1)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitForDevices(t, h, 0)

	require.Eventually(t, func() bool {
		logs := out.String()
		return strings.Contains(logs, `"device registered"`) &&
			strings.Contains(logs, `"device unregistered"`) &&
			strings.Contains(logs, `"device_id":"phone-7"`)
	}, 2*time.Second, 10*time.Millisecond)
}
