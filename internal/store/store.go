// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"strconv"

	"github.com/ashureev/survey-notify/internal/domain"
)

// Surveys is the survey metadata the dispatcher reads. Lookups that find
// nothing return zero values rather than errors.
type Surveys interface {
	// KnownSurveyIDs returns the index of stored survey IDs in insertion order.
	KnownSurveyIDs(ctx context.Context) ([]string, error)

	// GetSurvey retrieves a full survey record, or nil if it is not stored.
	GetSurvey(ctx context.Context, surveyID string) (*domain.Survey, error)

	// SurveyType returns the decoded type; missing surveys decode as unknown.
	SurveyType(ctx context.Context, surveyID string) (domain.SurveyType, error)

	// SurveySettings returns the raw settings JSON, or "" if not stored.
	SurveySettings(ctx context.Context, surveyID string) (string, error)

	// SurveyName returns the display name, or "" if not stored.
	SurveyName(ctx context.Context, surveyID string) (string, error)

	// UpsertSurvey creates or updates survey metadata. Notification state is
	// preserved on update.
	UpsertSurvey(ctx context.Context, survey *domain.Survey) error

	// NotificationShowing reports the persisted notification flag.
	NotificationShowing(ctx context.Context, surveyID string) (bool, error)

	// SetNotificationShowing updates the notification flag. Unknown surveys
	// are ignored.
	SetNotificationShowing(ctx context.Context, surveyID string, showing bool) error

	// SetMostRecentAlarmTime records when the survey's alarm last fired.
	SetMostRecentAlarmTime(ctx context.Context, surveyID string, unixMillis int64) error
}

// Preferences is a typed key-value store. Absent booleans read as false and
// absent strings report ok=false.
type Preferences interface {
	Bool(ctx context.Context, key string) (bool, error)
	String(ctx context.Context, key string) (value string, ok bool, err error)

	// Commit writes all prefs in one transaction. Either every value is
	// visible to subsequent readers or none is.
	Commit(ctx context.Context, prefs ...Pref) error
}

// Messages stores researcher messages awaiting display.
type Messages interface {
	PutMessage(ctx context.Context, msg domain.StoredMessage) error

	// GetMessage retrieves a message, or nil if it is not stored.
	GetMessage(ctx context.Context, messageID string) (*domain.StoredMessage, error)

	// ListMessages returns all messages ordered by receive time.
	ListMessages(ctx context.Context) ([]domain.StoredMessage, error)
}

// Repository is the full persistent store.
type Repository interface {
	Surveys
	Preferences
	Messages

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

type prefKind string

const (
	prefBool   prefKind = "bool"
	prefString prefKind = "string"
)

// Pref is a single typed preference write.
type Pref struct {
	Key   string
	kind  prefKind
	value string
}

// BoolPref builds a boolean preference write.
func BoolPref(key string, v bool) Pref {
	return Pref{Key: key, kind: prefBool, value: strconv.FormatBool(v)}
}

// StringPref builds a string preference write.
func StringPref(key, v string) Pref {
	return Pref{Key: key, kind: prefString, value: v}
}
