package notify

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/stretchr/testify/require"
)

type fakePresenter struct {
	mu          sync.Mutex
	presented   []Notification
	cancelled   []int32
	active      map[int32]bool
	disabled    bool
	failPresent error
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{active: make(map[int32]bool)}
}

func (p *fakePresenter) Present(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPresent != nil {
		return p.failPresent
	}
	p.presented = append(p.presented, n)
	p.active[n.ID] = true
	return nil
}

func (p *fakePresenter) Cancel(_ context.Context, id int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, id)
	delete(p.active, id)
	return nil
}

func (p *fakePresenter) IsActive(_ context.Context, id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[id]
}

func (p *fakePresenter) Enabled(context.Context) bool {
	return !p.disabled
}

func (p *fakePresenter) presentedSurveyIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, n := range p.presented {
		ids = append(ids, n.SurveyID)
	}
	return ids
}

type fakeDebugLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *fakeDebugLog) AppendEncrypted(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, message)
}

func (l *fakeDebugLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

var errStoreDown = errors.New("disk I/O error")

// failingWrites wraps a store and fails every notification-state write.
type failingWrites struct {
	store.Surveys
}

func (f failingWrites) SetNotificationShowing(context.Context, string, bool) error {
	return errStoreDown
}

func (f failingWrites) SetMostRecentAlarmTime(context.Context, string, int64) error {
	return errStoreDown
}

func newSurveyStore(t *testing.T, surveys ...domain.Survey) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "surveys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for i := range surveys {
		require.NoError(t, s.UpsertSurvey(context.Background(), &surveys[i]))
	}
	return s
}
