package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MessageHandler handles researcher message endpoints.
type MessageHandler struct {
	*Handler
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(base *Handler) *MessageHandler {
	return &MessageHandler{Handler: base}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/messages", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Post("/show", h.Show)
	})
}

type createMessageRequest struct {
	Content string `json:"content"`
}

type showMessageRequest struct {
	ID string `json:"id"`
}

// Create stores a new message and notifies devices about it.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.messenger.HandleNewMessage(r.Context(), req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Show re-presents one message, or every stored message when no id is given.
func (h *MessageHandler) Show(w http.ResponseWriter, r *http.Request) {
	var req showMessageRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		JSON(w, http.StatusOK, map[string]int{"shown": h.messenger.ShowAllMessages(r.Context())})
		return
	}
	if err := h.messenger.ShowMessage(r.Context(), req.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"shown": 1})
}
