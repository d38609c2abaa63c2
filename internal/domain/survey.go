// Package domain contains core domain types for survey notifications and sessions.
package domain

import (
	"encoding/json"
	"fmt"
)

// Raw survey type values as they are stored.
const (
	RawTrackingSurvey = "tracking_survey"
	RawAudioSurvey    = "audio_survey"
)

// SurveyKind is the closed set of survey behaviours.
type SurveyKind int

const (
	// KindUnknown is any stored type that matches neither known kind.
	KindUnknown SurveyKind = iota
	// KindTracking is a question-set survey.
	KindTracking
	// KindAudio is an audio-recording survey.
	KindAudio
)

// SurveyType is a survey's declared type, decoded once at the store boundary.
// Raw keeps the stored string so unrecognized values can be reported.
type SurveyType struct {
	Kind SurveyKind
	Raw  string
}

// TrackingSurvey and AudioSurvey are the two recognized survey types.
var (
	TrackingSurvey = SurveyType{Kind: KindTracking, Raw: RawTrackingSurvey}
	AudioSurvey    = SurveyType{Kind: KindAudio, Raw: RawAudioSurvey}
)

// ParseSurveyType decodes a stored type string. It never fails: values other
// than the recognized ones yield KindUnknown.
func ParseSurveyType(raw string) SurveyType {
	switch raw {
	case RawTrackingSurvey:
		return TrackingSurvey
	case RawAudioSurvey:
		return AudioSurvey
	default:
		return SurveyType{Kind: KindUnknown, Raw: raw}
	}
}

// IsKnown reports whether the type is one the dispatcher can present.
func (t SurveyType) IsKnown() bool {
	return t.Kind != KindUnknown
}

func (t SurveyType) String() string {
	return t.Raw
}

// Survey is the stored metadata for a scheduled survey.
type Survey struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name,omitempty"`
	Type                SurveyType `json:"-"`
	Settings            string     `json:"settings,omitempty"`
	NotificationShowing bool       `json:"notification_showing"`
	MostRecentAlarmTime int64      `json:"most_recent_alarm_time"`
}

// AudioVariant selects which audio-capture screen an audio survey opens.
type AudioVariant int

const (
	// AudioDefault is the compressed recorder.
	AudioDefault AudioVariant = iota
	// AudioEnhanced is the raw (uncompressed) recorder.
	AudioEnhanced
)

func (v AudioVariant) String() string {
	if v == AudioEnhanced {
		return "enhanced"
	}
	return "default"
}

// RawAudioSurveyType is the audio_survey_type setting that selects AudioEnhanced.
const RawAudioSurveyType = "raw"

// SurveySettings is the subset of a survey's settings blob the dispatcher reads.
type SurveySettings struct {
	AudioSurveyType string `json:"audio_survey_type"`
	AlwaysAvailable bool   `json:"always_available"`
}

// ParseSurveySettings decodes a settings blob.
func ParseSurveySettings(raw string) (SurveySettings, error) {
	var s SurveySettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return SurveySettings{}, fmt.Errorf("parse survey settings: %w", err)
	}
	return s, nil
}
