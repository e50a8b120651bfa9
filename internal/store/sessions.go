// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// SessionRow is a persisted session.
type SessionRow struct {
	ID        string
	UserID    int64
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt sql.NullTime
}

// Active reports whether the session can still authenticate at now.
func (s SessionRow) Active(now time.Time) bool {
	return !s.RevokedAt.Valid && now.Before(s.ExpiresAt)
}

// CreateSessionParams holds the columns for a new session.
type CreateSessionParams struct {
	ID        string
	UserID    int64
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CreateSession inserts a session.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, user_agent, ip_address, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.UserID, arg.UserAgent, arg.IPAddress, arg.CreatedAt.UTC(), arg.ExpiresAt.UTC())
	return err
}

// GetSession returns the session with id.
func (q *Queries) GetSession(ctx context.Context, id string) (SessionRow, error) {
	var s SessionRow
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, user_agent, ip_address, created_at, expires_at, revoked_at
		 FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.UserID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	return s, err
}

// RevokeSession marks a session as revoked.
func (q *Queries) RevokeSession(ctx context.Context, id string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, now.UTC(), id)
	return err
}

// RevokeUserSessions revokes every session of a user except keepID.
func (q *Queries) RevokeUserSessions(ctx context.Context, userID int64, keepID string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND id <> ? AND revoked_at IS NULL`,
		now.UTC(), userID, keepID)
	return err
}

// DeleteExpiredSessions removes sessions that expired or were revoked before cutoff.
func (q *Queries) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ? OR revoked_at < ?`, cutoff.UTC(), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
