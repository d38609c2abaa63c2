package api

import (
	"net/http"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles login session endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/check", h.Check)
		r.With(middleware.RequireLogin(h.sessions)).Get("/user", h.User)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type routeResponse struct {
	LoggedIn bool          `json:"logged_in"`
	Route    string        `json:"route"`
	Screen   domain.Screen `json:"screen"`
}

func newRouteResponse(route domain.Route) routeResponse {
	return routeResponse{
		LoggedIn: route == domain.RouteAuthenticated,
		Route:    route.String(),
		Screen:   route.Screen(),
	}
}

// Status reports the current route without navigating any device.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, newRouteResponse(h.sessions.ComputeRoute(r.Context())))
}

// Login persists a new login session. Credentials are accepted as given.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.sessions.CreateLoginSession(r.Context(), req.Username, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newRouteResponse(domain.RouteAuthenticated))
}

// Logout clears the logged-in flag and sends devices to the login screen.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newRouteResponse(domain.RouteLoginRequired))
}

// Check computes the route and navigates connected devices to it.
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, newRouteResponse(h.sessions.CheckLoginAndRoute(r.Context())))
}

// User returns the stored credentials.
func (h *SessionHandler) User(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessions.GetUserDetails(r.Context()))
}
