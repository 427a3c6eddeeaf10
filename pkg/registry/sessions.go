package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/facilityobs/pkg/model"
)

// Session is a server-side login session keyed by an opaque token.
type Session struct {
	Token     string
	UserID    string
	Role      model.Role
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateSession stores a new session.
func (r *Registry) CreateSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, role, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.Token, s.UserID, string(s.Role), toNanos(s.ExpiresAt), toNanos(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns the session for token if it has not expired at now.
func (r *Registry) GetSession(ctx context.Context, token string, now time.Time) (Session, error) {
	var (
		s         Session
		role      string
		expiresAt int64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, role, expires_at, created_at FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &role, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to query session: %w", err)
	}

	s.Role = model.Role(role)
	s.ExpiresAt = fromNanos(expiresAt)
	s.CreatedAt = fromNanos(createdAt)
	if !now.Before(s.ExpiresAt) {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (r *Registry) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeSessions deletes sessions expired at now and returns how many were removed.
func (r *Registry) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
