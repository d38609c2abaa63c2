package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

// SurveyHandler handles survey notification endpoints.
type SurveyHandler struct {
	*Handler
}

// NewSurveyHandler creates a new survey handler.
func NewSurveyHandler(base *Handler) *SurveyHandler {
	return &SurveyHandler{Handler: base}
}

// RegisterRoutes registers survey routes.
func (h *SurveyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/surveys", func(r chi.Router) {
		r.Get("/", h.ListTakeable)
		r.Post("/notifications", h.ShowNotifications)
		r.Get("/{surveyID}", h.GetSurvey)
		r.Put("/{surveyID}", h.PutSurvey)
		r.Get("/{surveyID}/notification", h.NotificationStatus)
		r.Delete("/{surveyID}/notification", h.Dismiss)
		r.Get("/{surveyID}/audio-variant", h.AudioVariant)
	})
}

type showNotificationsRequest struct {
	SurveyIDs []string `json:"survey_ids"`
}

type surveyRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Settings string `json:"settings"`
}

type surveyResponse struct {
	*domain.Survey
	Type string `json:"type"`
}

// ShowNotifications presents notifications for the given survey IDs.
func (h *SurveyHandler) ShowNotifications(w http.ResponseWriter, r *http.Request) {
	var req showNotificationsRequest
	if !decode(w, r, &req) {
		return
	}
	report := h.dispatcher.ShowNotifications(r.Context(), req.SurveyIDs)
	JSON(w, http.StatusOK, report)
}

// ListTakeable returns the surveys the participant can open right now.
func (h *SurveyHandler) ListTakeable(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string][]string{
		"survey_ids": h.dispatcher.TakeableSurveys(r.Context()),
	})
}

// GetSurvey returns stored survey metadata.
func (h *SurveyHandler) GetSurvey(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")
	survey, err := h.repo.GetSurvey(r.Context(), surveyID)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: get survey %s: %w", errdefs.ErrUnavailable, surveyID, err))
		return
	}
	if survey == nil {
		Error(w, http.StatusNotFound, "survey not found")
		return
	}
	JSON(w, http.StatusOK, surveyResponse{Survey: survey, Type: survey.Type.Raw})
}

// PutSurvey creates or updates survey metadata. Unknown types are stored as
// given; the dispatcher suppresses them at display time.
func (h *SurveyHandler) PutSurvey(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")
	var req surveyRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		Error(w, http.StatusBadRequest, "type is required")
		return
	}

	survey := &domain.Survey{
		ID:       surveyID,
		Name:     req.Name,
		Type:     domain.ParseSurveyType(req.Type),
		Settings: req.Settings,
	}
	if err := h.repo.UpsertSurvey(r.Context(), survey); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", errdefs.ErrUnavailable, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotificationStatus reports whether the survey's notification is displayed.
func (h *SurveyHandler) NotificationStatus(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")
	JSON(w, http.StatusOK, map[string]interface{}{
		"survey_id": surveyID,
		"active":    h.dispatcher.IsNotificationActive(r.Context(), surveyID),
	})
}

// Dismiss removes the survey's notification and parks its alarm.
func (h *SurveyHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")
	if err := h.dispatcher.DismissNotification(r.Context(), surveyID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AudioVariant returns the recorder variant an audio survey opens.
func (h *SurveyHandler) AudioVariant(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyID")
	variant := h.dispatcher.ResolveAudioVariant(r.Context(), surveyID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"survey_id": surveyID,
		"variant":   variant.String(),
		"screen":    domain.AudioScreen(variant),
	})
}
