package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/containerd/errdefs"
)

const (
	trackingTicker = "A new survey is available"
	trackingBody   = "Please take the survey"
	audioTicker    = "A new audio survey is available"
	audioBody      = "Please record your answer"
	surveyTitle    = "Survey ready"

	actionStartTracking = "start_tracking_survey"
	actionStartAudio    = "start_audio_survey"

	// dismissedAlarmTime parks a dismissed survey's alarm so a survey with
	// no remaining schedule cannot fire again immediately.
	dismissedAlarmTime = math.MaxInt64
)

// OutcomeKind is what happened to one display request.
type OutcomeKind int

const (
	OutcomeSuppressed OutcomeKind = iota
	OutcomeTracking
	OutcomeAudio
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTracking:
		return "tracking"
	case OutcomeAudio:
		return "audio"
	default:
		return "suppressed"
	}
}

// Outcome describes the notification chosen for a survey.
type Outcome struct {
	Kind    OutcomeKind
	Variant domain.AudioVariant
	Screen  domain.Screen
	// Delivered is set once the presenter accepted the notification.
	Delivered bool
}

// Classify picks the notification behaviour for a survey type and its
// settings. Settings are only consulted for audio surveys.
func Classify(t domain.SurveyType, settings string) Outcome {
	switch t.Kind {
	case domain.KindTracking:
		return Outcome{Kind: OutcomeTracking, Screen: domain.ScreenSurvey}
	case domain.KindAudio:
		v := AudioVariantFromSettings(settings)
		return Outcome{Kind: OutcomeAudio, Variant: v, Screen: domain.AudioScreen(v)}
	default:
		return Outcome{Kind: OutcomeSuppressed}
	}
}

// AudioVariantFromSettings returns AudioEnhanced only when settings parse
// and audio_survey_type is "raw". Parse failures resolve to AudioDefault.
func AudioVariantFromSettings(settings string) domain.AudioVariant {
	parsed, err := domain.ParseSurveySettings(settings)
	if err != nil {
		return domain.AudioDefault
	}
	if parsed.AudioSurveyType == domain.RawAudioSurveyType {
		return domain.AudioEnhanced
	}
	return domain.AudioDefault
}

// Report lists what ShowNotifications did with each requested id, in input order.
type Report struct {
	Presented  []string `json:"presented"`
	Suppressed []string `json:"suppressed"`
	Skipped    []string `json:"skipped"`
}

// Dispatcher presents survey notifications.
type Dispatcher struct {
	surveys   store.Surveys
	presenter Presenter
	debug     DebugLog
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(surveys store.Surveys, presenter Presenter, debug DebugLog, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		surveys:   surveys,
		presenter: presenter,
		debug:     debug,
		logger:    logger,
	}
}

// ShowNotifications displays a notification for every id that is stored.
// Unknown ids are logged and skipped; they never stop the batch.
func (d *Dispatcher) ShowNotifications(ctx context.Context, surveyIDs []string) Report {
	var report Report
	if len(surveyIDs) == 0 {
		return report
	}

	known, err := d.surveys.KnownSurveyIDs(ctx)
	if err != nil {
		d.logger.Error("failed to read survey index", "error", err)
	}
	index := make(map[string]struct{}, len(known))
	for _, id := range known {
		index[id] = struct{}{}
	}

	for _, id := range surveyIDs {
		if _, ok := index[id]; !ok {
			msg := fmt.Sprintf("Tried to show notification for survey ID %s but didn't have that survey stored.", id)
			d.logger.Warn("survey not stored, skipping notification", "survey_id", id)
			d.debug.AppendEncrypted(msg)
			report.Skipped = append(report.Skipped, id)
			continue
		}

		if out := d.DisplayNotification(ctx, id); out.Delivered {
			report.Presented = append(report.Presented, id)
		} else {
			report.Suppressed = append(report.Suppressed, id)
		}
	}
	return report
}

// DisplayNotification presents the notification matching the survey's
// stored type. Unrecognized types are logged and nothing is shown.
func (d *Dispatcher) DisplayNotification(ctx context.Context, surveyID string) Outcome {
	surveyType, err := d.surveys.SurveyType(ctx, surveyID)
	if err != nil {
		d.logger.Error("failed to read survey type", "survey_id", surveyID, "error", err)
	}

	var settings string
	if surveyType.Kind == domain.KindAudio {
		settings, err = d.surveys.SurveySettings(ctx, surveyID)
		if err != nil {
			d.logger.Warn("failed to read survey settings", "survey_id", surveyID, "error", err)
		}
	}

	out := Classify(surveyType, settings)
	if out.Kind == OutcomeSuppressed {
		d.debug.AppendEncrypted(fmt.Sprintf(
			"encountered unknown survey type: %s, cannot schedule survey %s.", surveyType.Raw, surveyID))
		d.logger.Warn("unknown survey type", "survey_id", surveyID, "survey_type", surveyType.Raw)
		return out
	}

	name, err := d.surveys.SurveyName(ctx, surveyID)
	if err != nil {
		d.logger.Warn("failed to read survey name", "survey_id", surveyID, "error", err)
	}

	n := d.buildSurveyNotification(surveyID, name, out)
	if err := d.presenter.Cancel(ctx, n.ID); err != nil {
		d.logger.Warn("failed to cancel previous notification", "survey_id", surveyID, "error", err)
	}
	if err := d.presenter.Present(ctx, n); err != nil {
		d.logger.Error("failed to present notification", "survey_id", surveyID, "error", err)
		d.debug.AppendEncrypted(fmt.Sprintf("failed to present notification for survey %s: %v", surveyID, err))
		return out
	}
	out.Delivered = true

	if err := d.surveys.SetNotificationShowing(ctx, surveyID, true); err != nil {
		d.logger.Error("failed to persist notification state", "survey_id", surveyID, "error", err)
	}

	if !d.presenter.Enabled(ctx) {
		d.debug.AppendEncrypted("Participant has blocked notifications")
		d.logger.Warn("participant has blocked notifications", "survey_id", surveyID)
	}

	d.logger.Info("survey notification presented",
		"survey_id", surveyID,
		"kind", out.Kind.String(),
		"target", out.Screen,
	)
	return out
}

func (d *Dispatcher) buildSurveyNotification(surveyID, name string, out Outcome) Notification {
	suffix := ""
	if name != "" {
		suffix = fmt.Sprintf(" %q", name)
	}

	n := Notification{
		ID:       NotificationID(surveyID),
		Channel:  ChannelSurveys,
		Title:    surveyTitle,
		Group:    surveyID,
		Target:   out.Screen,
		SurveyID: surveyID,
		Ongoing:  true,
	}
	if out.Kind == OutcomeAudio {
		n.Ticker = audioTicker
		n.Body = audioBody + suffix
		n.Icon = "voice_recording_icon"
		n.Action = actionStartAudio
	} else {
		n.Ticker = trackingTicker
		n.Body = trackingBody + suffix
		n.Icon = "survey_icon"
		n.Action = actionStartTracking
	}
	return n
}

// DismissNotification cancels the survey's notification and clears its
// persisted state. Dismissing twice, or dismissing a survey that was never
// shown, is not an error. Failing to persist is.
func (d *Dispatcher) DismissNotification(ctx context.Context, surveyID string) error {
	if err := d.presenter.Cancel(ctx, NotificationID(surveyID)); err != nil {
		d.logger.Warn("failed to cancel notification", "survey_id", surveyID, "error", err)
	}

	if err := d.surveys.SetNotificationShowing(ctx, surveyID, false); err != nil {
		return fmt.Errorf("%w: clear notification state for %s: %w", errdefs.ErrUnavailable, surveyID, err)
	}
	if err := d.surveys.SetMostRecentAlarmTime(ctx, surveyID, dismissedAlarmTime); err != nil {
		return fmt.Errorf("%w: reset alarm time for %s: %w", errdefs.ErrUnavailable, surveyID, err)
	}

	d.logger.Info("survey notification dismissed", "survey_id", surveyID)
	return nil
}

// RestoreNotifications re-presents every survey whose persisted flag says its
// notification is showing, so a fresh presenter matches the store after a
// restart. It returns the ids it restored, in store order.
func (d *Dispatcher) RestoreNotifications(ctx context.Context) []string {
	ids, err := d.surveys.KnownSurveyIDs(ctx)
	if err != nil {
		d.logger.Error("failed to read survey index", "error", err)
		return nil
	}

	var restored []string
	for _, id := range ids {
		showing, err := d.surveys.NotificationShowing(ctx, id)
		if err != nil {
			d.logger.Warn("failed to read notification state", "survey_id", id, "error", err)
			continue
		}
		if !showing {
			continue
		}
		if out := d.DisplayNotification(ctx, id); out.Delivered {
			restored = append(restored, id)
		}
	}
	if len(restored) > 0 {
		d.logger.Info("restored survey notifications", "count", len(restored))
	}
	return restored
}

// TakeableSurveys lists the surveys a participant may open from the main
// menu, in store order: those marked always_available and those whose
// notification is showing. Surveys with malformed settings are skipped.
func (d *Dispatcher) TakeableSurveys(ctx context.Context) []string {
	ids, err := d.surveys.KnownSurveyIDs(ctx)
	if err != nil {
		d.logger.Error("failed to read survey index", "error", err)
		return nil
	}

	takeable := make([]string, 0, len(ids))
	for _, id := range ids {
		raw, err := d.surveys.SurveySettings(ctx, id)
		if err != nil {
			d.logger.Warn("failed to read survey settings", "survey_id", id, "error", err)
			continue
		}
		if raw == "" {
			raw = "{}"
		}
		settings, err := domain.ParseSurveySettings(raw)
		if err != nil {
			d.logger.Warn("survey settings are malformed", "survey_id", id, "error", err)
			d.debug.AppendEncrypted(fmt.Sprintf("survey %s broke inside json parsing", id))
			continue
		}

		showing, err := d.surveys.NotificationShowing(ctx, id)
		if err != nil {
			d.logger.Warn("failed to read notification state", "survey_id", id, "error", err)
		}
		if settings.AlwaysAvailable || showing {
			takeable = append(takeable, id)
		}
	}
	return takeable
}

// ResolveAudioVariant reads the survey's settings and picks the recorder
// variant. It always resolves; read failures fall back to AudioDefault.
func (d *Dispatcher) ResolveAudioVariant(ctx context.Context, surveyID string) domain.AudioVariant {
	settings, err := d.surveys.SurveySettings(ctx, surveyID)
	if err != nil {
		d.logger.Warn("failed to read survey settings", "survey_id", surveyID, "error", err)
		return domain.AudioDefault
	}
	return AudioVariantFromSettings(settings)
}

// IsNotificationActive reports whether the survey's notification is on screen.
func (d *Dispatcher) IsNotificationActive(ctx context.Context, surveyID string) bool {
	return d.presenter.IsActive(ctx, NotificationID(surveyID))
}
