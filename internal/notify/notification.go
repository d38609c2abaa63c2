// Package notify decides which survey and message notifications to present
// and keeps the persisted notification state in step with the device.
package notify

import (
	"context"
	"unicode/utf16"

	"github.com/ashureev/survey-notify/internal/domain"
)

// Channel groups notifications on the device.
type Channel string

const (
	ChannelSurveys  Channel = "surveys"
	ChannelMessages Channel = "messages"
)

// Notification is everything a presentation surface needs to show a prompt
// and to navigate when the participant taps it.
type Notification struct {
	ID        int32         `json:"id"`
	Channel   Channel       `json:"channel"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Ticker    string        `json:"ticker,omitempty"`
	Icon      string        `json:"icon,omitempty"`
	Group     string        `json:"group,omitempty"`
	Target    domain.Screen `json:"target"`
	Action    string        `json:"action,omitempty"`
	SurveyID  string        `json:"survey_id,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Ongoing   bool          `json:"ongoing"`
}

// Presenter is the device-side notification surface.
type Presenter interface {
	// Present shows n, replacing any notification with the same ID.
	Present(ctx context.Context, n Notification) error

	// Cancel removes notification id. Cancelling an absent id is not an error.
	Cancel(ctx context.Context, id int32) error

	// IsActive reports whether notification id is currently shown.
	IsActive(ctx context.Context, id int32) bool

	// Enabled reports whether the participant allows notifications.
	Enabled(ctx context.Context) bool
}

// DebugLog receives diagnostic entries. Implementations must not fail the caller.
type DebugLog interface {
	AppendEncrypted(message string)
}

// NotificationID derives the numeric notification id for a key. It is the
// 31-based polynomial hash over UTF-16 code units, so ids agree with
// notifications created by earlier app versions.
func NotificationID(key string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(key)) {
		h = 31*h + int32(c)
	}
	return h
}
