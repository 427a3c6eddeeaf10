package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nicktill/facilityobs/pkg/model"
)

// CreateUser inserts a new user with an already hashed password.
func (r *Registry) CreateUser(ctx context.Context, username, passwordHash string, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, fmt.Errorf("invalid role %q", role)
	}

	user := model.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if taken, err := usernameExists(ctx, tx, username, ""); err != nil {
		return model.User{}, err
	} else if taken {
		return model.User{}, ErrUsernameTaken
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, passwordHash, string(user.Role), toNanos(user.CreatedAt))
	if err != nil {
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.User{}, fmt.Errorf("failed to commit user: %w", err)
	}
	return user, nil
}

// GetUser returns the user with the given id.
func (r *Registry) GetUser(ctx context.Context, id string) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Credentials returns the user and password hash for username.
func (r *Registry) Credentials(ctx context.Context, username string) (model.User, string, error) {
	var (
		user      model.User
		role      string
		hash      string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at, password_hash FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, &role, &createdAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, "", ErrUserNotFound
	}
	if err != nil {
		return model.User{}, "", fmt.Errorf("failed to query user: %w", err)
	}
	user.Role = model.Role(role)
	user.CreatedAt = fromNanos(createdAt)
	return user, hash, nil
}

// PasswordHash returns the stored hash for user id.
func (r *Registry) PasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query password: %w", err)
	}
	return hash, nil
}

// ListUsers returns users with the given role ordered by username.
// An empty role lists everyone.
func (r *Registry) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	query := `SELECT id, username, role, created_at FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, string(role))
	}
	query += ` ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUsername renames a user, keeping usernames unique.
func (r *Registry) UpdateUsername(ctx context.Context, id, username string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if taken, err := usernameExists(ctx, tx, username, id); err != nil {
		return err
	} else if taken {
		return ErrUsernameTaken
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, id)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if err := requireAffected(res, ErrUserNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePasswordHash replaces a user's password hash.
func (r *Registry) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		user      model.User
		role      string
		createdAt int64
	)
	err := row.Scan(&user.ID, &user.Username, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Role = model.Role(role)
	user.CreatedAt = fromNanos(createdAt)
	return user, nil
}

func usernameExists(ctx context.Context, tx *sql.Tx, username, exceptID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? AND id != ?`, username, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return n > 0, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
