// Package registry persists users, devices and login sessions in SQLite.
//
// Reading history lives in pkg/storage; the registry only keeps each
// device's heartbeat (last update, last seen, last values) alongside its
// configuration.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrDeviceNotFound is returned when no device matches the lookup.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSessionNotFound is returned for unknown or expired session tokens.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUsernameTaken is returned when a username is already in use.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrDeviceExists is returned when provisioning a duplicate device id.
	ErrDeviceExists = errors.New("device already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
	id                TEXT PRIMARY KEY,
	display_name      TEXT NOT NULL,
	type              TEXT NOT NULL,
	sensors           TEXT NOT NULL,
	owner             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	last_update       INTEGER,
	last_seen         INTEGER,
	last_data         TEXT,
	show_on_dashboard INTEGER NOT NULL DEFAULT 1,
	reset_status      INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
`

// Registry is the SQLite-backed store for users, devices and sessions.
type Registry struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the registry database at path and
// applies the schema.
func Open(path string) (*Registry, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite allows one writer; serialise through a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply registry schema: %w", err)
	}

	return &Registry{db: db, path: path}, nil
}

// Ping checks the database connection.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Path returns the database file location.
func (r *Registry) Path() string {
	return r.path
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n)
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
