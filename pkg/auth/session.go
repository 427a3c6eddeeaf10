// Package auth handles dashboard logins, server-side sessions and the
// middleware guarding authenticated routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthenticated is returned when a request carries no valid session.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the session's role is insufficient.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrWrongPassword is returned when a password change gives the wrong current password.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// Store is the subset of the registry the auth layer needs.
type Store interface {
	Credentials(ctx context.Context, username string) (model.User, string, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	PasswordHash(ctx context.Context, id string) (string, error)
	UpdateUsername(ctx context.Context, id, username string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	CreateSession(ctx context.Context, s registry.Session) error
	GetSession(ctx context.Context, token string, now time.Time) (registry.Session, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeSessions(ctx context.Context, now time.Time) (int64, error)
}

// Manager issues and validates sessions.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a session manager issuing sessions valid for ttl.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Login verifies credentials and opens a new session.
func (m *Manager) Login(ctx context.Context, username, password string) (model.User, registry.Session, error) {
	user, hash, err := m.store.Credentials(ctx, strings.TrimSpace(username))
	if errors.Is(err, registry.ErrUserNotFound) {
		return model.User{}, registry.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, registry.Session{}, err
	}
	if !CheckPassword(hash, password) {
		return model.User{}, registry.Session{}, ErrInvalidCredentials
	}

	now := m.now()
	session := registry.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return model.User{}, registry.Session{}, fmt.Errorf("failed to open session: %w", err)
	}
	return user, session, nil
}

// Logout ends the session for token.
func (m *Manager) Logout(ctx context.Context, token string) error {
	return m.store.DeleteSession(ctx, token)
}

// Authenticate resolves a token to its live session.
func (m *Manager) Authenticate(ctx context.Context, token string) (registry.Session, error) {
	if token == "" {
		return registry.Session{}, ErrUnauthenticated
	}
	s, err := m.store.GetSession(ctx, token, m.now())
	if errors.Is(err, registry.ErrSessionNotFound) {
		return registry.Session{}, ErrUnauthenticated
	}
	return s, err
}

// PurgeExpired removes expired sessions.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.PurgeSessions(ctx, m.now())
}

// ChangePassword replaces a user's password after checking the current one.
func (m *Manager) ChangePassword(ctx context.Context, userID, current, next string) error {
	hash, err := m.store.PasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(hash, current) {
		return ErrWrongPassword
	}
	newHash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return m.store.UpdatePasswordHash(ctx, userID, newHash)
}
