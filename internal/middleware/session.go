package middleware

import (
	"context"
	"net/http"
)

// LoginChecker reports whether a participant is logged in.
type LoginChecker interface {
	IsLoggedIn(ctx context.Context) bool
}

// RequireLogin rejects requests with 401 unless a login session is active.
func RequireLogin(sessions LoginChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.IsLoggedIn(r.Context()) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"login required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
