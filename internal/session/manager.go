// Package session tracks whether the device user is registered and logged in.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/survey-notify/internal/domain"
	"github.com/ashureev/survey-notify/internal/store"
	"github.com/containerd/errdefs"
)

// Preference keys.
const (
	KeyIsLoggedIn = "IsLoggedIn"
	KeyName       = "name"
	KeyPassword   = "password"
)

// Navigator moves the device to a screen. Navigation is fire-and-forget.
type Navigator interface {
	NavigateTo(ctx context.Context, screen domain.Screen)
}

// Manager is the login state machine over persisted preferences.
type Manager struct {
	prefs  store.Preferences
	nav    Navigator
	logger *slog.Logger
	mu     sync.Mutex // serializes state mutations
}

// NewManager creates a session manager.
func NewManager(prefs store.Preferences, nav Navigator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{prefs: prefs, nav: nav, logger: logger}
}

// CreateLoginSession logs the user in and stores their credentials in one
// commit, whatever the prior state.
func (m *Manager) CreateLoginSession(ctx context.Context, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// TODO: store a credential hash once the server defines the scheme.
	err := m.prefs.Commit(ctx,
		store.BoolPref(KeyIsLoggedIn, true),
		store.StringPref(KeyName, username),
		store.StringPref(KeyPassword, password),
	)
	if err != nil {
		return fmt.Errorf("%w: create login session: %w", errdefs.ErrUnavailable, err)
	}

	m.logger.Info("login session created", "username", username)
	return nil
}

// IsLoggedIn reads the persisted login flag. Read failures count as logged out.
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	loggedIn, err := m.prefs.Bool(ctx, KeyIsLoggedIn)
	if err != nil {
		m.logger.Warn("failed to read login flag", "error", err)
		return false
	}
	return loggedIn
}

func (m *Manager) registered(ctx context.Context) bool {
	_, ok, err := m.prefs.String(ctx, KeyName)
	if err != nil {
		m.logger.Warn("failed to read username", "error", err)
		return false
	}
	return ok
}

// ComputeRoute decides where the user should land without navigating.
func (m *Manager) ComputeRoute(ctx context.Context) domain.Route {
	return domain.ComputeRoute(m.IsLoggedIn(ctx), m.registered(ctx))
}

// CheckLoginAndRoute computes the route and navigates to its screen.
func (m *Manager) CheckLoginAndRoute(ctx context.Context) domain.Route {
	route := m.ComputeRoute(ctx)
	m.logger.Debug("login check", "route", route.String())
	m.nav.NavigateTo(ctx, route.Screen())
	return route
}

// GetUserDetails returns the persisted credentials. Missing values are empty.
func (m *Manager) GetUserDetails(ctx context.Context) domain.UserDetails {
	var details domain.UserDetails

	name, ok, err := m.prefs.String(ctx, KeyName)
	if err != nil {
		m.logger.Warn("failed to read username", "error", err)
	}
	details.Username = name
	details.Registered = ok

	password, _, err := m.prefs.String(ctx, KeyPassword)
	if err != nil {
		m.logger.Warn("failed to read password", "error", err)
	}
	details.Password = password

	return details
}

// Logout clears the login flag and sends the user to the login screen.
// Credentials stay persisted so the next login is quicker.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	err := m.prefs.Commit(ctx, store.BoolPref(KeyIsLoggedIn, false))
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: logout: %w", errdefs.ErrUnavailable, err)
	}

	m.logger.Info("logged out")
	m.nav.NavigateTo(ctx, domain.ScreenLogin)
	return nil
}
