// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// PasswordReset is a pending password reset request.
type PasswordReset struct {
	TokenHash  string
	UserID     int64
	RedirectTo string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     sql.NullTime
}

// CreatePasswordReset stores a reset token hash.
func (q *Queries) CreatePasswordReset(ctx context.Context, arg PasswordReset) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO password_resets (token_hash, user_id, redirect_to, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		arg.TokenHash, arg.UserID, arg.RedirectTo, arg.CreatedAt.UTC(), arg.ExpiresAt.UTC())
	return err
}

// ConsumePasswordReset marks an unused, unexpired token as used and returns it.
// Returns sql.ErrNoRows when the token is unknown, used or expired.
func (q *Queries) ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (PasswordReset, error) {
	var r PasswordReset
	err := q.db.QueryRowContext(ctx,
		`UPDATE password_resets SET used_at = ?
		 WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
		 RETURNING token_hash, user_id, redirect_to, created_at, expires_at, used_at`,
		now.UTC(), tokenHash, now.UTC()).
		Scan(&r.TokenHash, &r.UserID, &r.RedirectTo, &r.CreatedAt, &r.ExpiresAt, &r.UsedAt)
	return r, err
}

// DeleteExpiredPasswordResets removes resets that expired before cutoff or were used.
func (q *Queries) DeleteExpiredPasswordResets(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE expires_at < ? OR used_at IS NOT NULL`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
