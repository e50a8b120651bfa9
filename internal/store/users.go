// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
)

const userColumns = `id, email, display_name, password_hash, created_at, updated_at, last_sign_in_at`

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var lastSignIn sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &lastSignIn)
	u.LastSignInAt = timePtr(lastSignIn)
	return u, err
}

// CreateUserParams holds the columns for a new user.
type CreateUserParams struct {
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a user and returns it.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO users (email, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING `+userColumns,
		arg.Email, arg.DisplayName, arg.PasswordHash, arg.CreatedAt.UTC(), arg.CreatedAt.UTC())
	return scanUser(row)
}

// GetUserByID returns the user with id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail returns the user with email, compared case-insensitively.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UpdateUserPassword replaces the password hash of a user.
func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now.UTC(), id)
	return err
}

// TouchUserSignIn records a successful sign-in.
func (q *Queries) TouchUserSignIn(ctx context.Context, id int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET last_sign_in_at = ? WHERE id = ?`, now.UTC(), id)
	return err
}

// GrantAdmin marks a user as administrator. Granting twice is a no-op.
func (q *Queries) GrantAdmin(ctx context.Context, userID int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO admins (user_id, granted_at) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, now.UTC())
	return err
}

// IsAdmin reports whether userID is an administrator.
func (q *Queries) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = ?)`, userID).Scan(&exists)
	return exists, err
}
