package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/notify"
	"github.com/ashureev/survey-notify/internal/push"
	"github.com/ashureev/survey-notify/internal/session"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDebugLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *memoryDebugLog) AppendEncrypted(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, message)
}

type testServer struct {
	router     http.Handler
	repo       *store.SQLiteStore
	hub        *push.Hub
	dispatcher *notify.Dispatcher
	debug      *memoryDebugLog
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerAt(t, filepath.Join(t.TempDir(), "api.db"))
}

// newTestServerAt wires a full server over the database at dbPath. Two
// servers built on the same path model a process restart.
func newTestServerAt(t *testing.T, dbPath string) *testServer {
	t.Helper()
	repo, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	hub := push.NewHub(true, nil, nil)
	debug := &memoryDebugLog{}
	dispatcher := notify.New(repo, hub, debug, nil)
	hub.OnDismiss(dispatcher.DismissNotification)
	base := NewHandler(
		repo,
		dispatcher,
		notify.NewMessenger(repo, hub, nil),
		session.NewManager(repo, hub, nil),
		nil,
	)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	NewSurveyHandler(base).RegisterRoutes(r)
	NewSessionHandler(base).RegisterRoutes(r)
	NewMessageHandler(base).RegisterRoutes(r)
	r.Get("/ws/notifications", hub.ServeHTTP)

	return &testServer{router: r, repo: repo, hub: hub, dispatcher: dispatcher, debug: debug}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestSurveys_PutAndGet(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/surveys/s1", `{"name":"Morning","type":"audio_survey","settings":"{\"audio_survey_type\":\"raw\"}"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/surveys/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	decodeBody(t, w, &got)
	assert.Equal(t, "s1", got["id"])
	assert.Equal(t, "Morning", got["name"])
	assert.Equal(t, "audio_survey", got["type"])

	w = s.do(t, http.MethodGet, "/api/surveys/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/surveys/s2", `{"name":"no type"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/surveys/s2", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSurveys_NotificationLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ctx := context.Background()

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/track", `{"type":"tracking_survey"}`).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/odd", `{"type":"image_survey"}`).Code)

	w := s.do(t, http.MethodPost, "/api/surveys/notifications", `{"survey_ids":["track","ghost","odd"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var report notify.Report
	decodeBody(t, w, &report)
	assert.Equal(t, []string{"track"}, report.Presented)
	assert.Equal(t, []string{"odd"}, report.Suppressed)
	assert.Equal(t, []string{"ghost"}, report.Skipped)

	showing, err := s.repo.NotificationShowing(ctx, "track")
	require.NoError(t, err)
	assert.True(t, showing)

	w = s.do(t, http.MethodGet, "/api/surveys/track/notification", "")
	assert.JSONEq(t, `{"survey_id":"track","active":true}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/surveys/track/notification", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/surveys/track/notification", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/surveys/track/notification", "")
	assert.JSONEq(t, `{"survey_id":"track","active":false}`, w.Body.String())

	survey, err := s.repo.GetSurvey(ctx, "track")
	require.NoError(t, err)
	require.NotNil(t, survey)
	assert.False(t, survey.NotificationShowing)
	assert.Equal(t, int64(9223372036854775807), survey.MostRecentAlarmTime)
}

func TestSurveys_AudioVariant(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/a1", `{"type":"audio_survey","settings":"{\"audio_survey_type\":\"raw\"}"}`).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/a2", `{"type":"audio_survey","settings":"garbage"}`).Code)

	w := s.do(t, http.MethodGet, "/api/surveys/a1/audio-variant", "")
	assert.JSONEq(t, `{"survey_id":"a1","variant":"enhanced","screen":"audio_recorder_enhanced"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/surveys/a2/audio-variant", "")
	assert.JSONEq(t, `{"survey_id":"a2","variant":"default","screen":"audio_recorder"}`, w.Body.String())
}

func TestSession_Flow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/session", "")
	assert.JSONEq(t, `{"logged_in":false,"route":"registration_required","screen":"register"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/session/user", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/session/login", `{"username":"p01","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"logged_in":true,"route":"authenticated","screen":"dashboard"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/session/user", "")
	require.Equal(t, http.StatusOK, w.Code)
	var details domain.UserDetails
	decodeBody(t, w, &details)
	assert.Equal(t, domain.UserDetails{Username: "p01", Password: "secret", Registered: true}, details)

	w = s.do(t, http.MethodPost, "/api/session/logout", "")
	assert.JSONEq(t, `{"logged_in":false,"route":"login_required","screen":"login"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/session/check", "")
	assert.JSONEq(t, `{"logged_in":false,"route":"login_required","screen":"login"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/session/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessages(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/messages", `{"content":"Thanks for taking part"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	decodeBody(t, w, &created)
	require.NotEmpty(t, created["id"])
	assert.True(t, s.hub.IsActive(context.Background(), notify.NotificationID(created["id"])))

	w = s.do(t, http.MethodPost, "/api/messages", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/messages/show", `{"id":"`+created["id"]+`"}`)
	assert.JSONEq(t, `{"shown":1}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/messages/show", `{"id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "nope"))

	w = s.do(t, http.MethodPost, "/api/messages/show", "")
	assert.JSONEq(t, `{"shown":1}`, w.Body.String())
}

func TestSurveys_ListTakeable(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/always", `{"type":"tracking_survey","settings":"{\"always_available\":true}"}`).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/track", `{"type":"tracking_survey","settings":"{}"}`).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPut, "/api/surveys/broken", `{"type":"tracking_survey","settings":"{oops"}`).Code)

	w := s.do(t, http.MethodGet, "/api/surveys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"survey_ids":["always"]}`, w.Body.String())

	s.do(t, http.MethodPost, "/api/surveys/notifications", `{"survey_ids":["track","broken"]}`)
	w = s.do(t, http.MethodGet, "/api/surveys", "")
	assert.JSONEq(t, `{"survey_ids":["always","track"]}`, w.Body.String())

	s.do(t, http.MethodDelete, "/api/surveys/track/notification", "")
	w = s.do(t, http.MethodGet, "/api/surveys", "")
	assert.JSONEq(t, `{"survey_ids":["always"]}`, w.Body.String())
}

func TestSurveys_NotificationStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "restart.db")

	first := newTestServerAt(t, dbPath)
	require.Equal(t, http.StatusNoContent, first.do(t, http.MethodPut, "/api/surveys/s1", `{"type":"tracking_survey"}`).Code)
	require.Equal(t, http.StatusOK, first.do(t, http.MethodPost, "/api/surveys/notifications", `{"survey_ids":["s1"]}`).Code)
	require.NoError(t, first.repo.Close())

	second := newTestServerAt(t, dbPath)
	id := notify.NotificationID("s1")
	assert.False(t, second.hub.IsActive(ctx, id))

	assert.Equal(t, []string{"s1"}, second.dispatcher.RestoreNotifications(ctx))
	w := second.do(t, http.MethodGet, "/api/surveys/s1/notification", "")
	assert.JSONEq(t, `{"survey_id":"s1","active":true}`, w.Body.String())

	srv := httptest.NewServer(second.router)
	defer srv.Close()
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/notifications?device_id=phone", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	var replayed struct {
		Type         string               `json:"type"`
		Notification *notify.Notification `json:"notification"`
		ID           *int32               `json:"id"`
	}
	require.NoError(t, wsjson.Read(dialCtx, conn, &replayed))
	assert.Equal(t, "present", replayed.Type)
	require.NotNil(t, replayed.Notification)
	assert.Equal(t, "s1", replayed.Notification.SurveyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, srv.URL+"/api/surveys/s1/notification", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	replayed.ID = nil
	require.NoError(t, wsjson.Read(dialCtx, conn, &replayed))
	assert.Equal(t, "cancel", replayed.Type)
	require.NotNil(t, replayed.ID)
	assert.Equal(t, id, *replayed.ID)

	showing, err := second.repo.NotificationShowing(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, showing)
}
