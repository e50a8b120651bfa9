// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"

	"github.com/olegiv/voluntr-go/internal/model"
)

const mediaColumns = `id, object_key, kind, identifier, mime_type, size, width, height, uploaded_by, created_at`

func scanMedia(row rowScanner) (model.Media, error) {
	var m model.Media
	err := row.Scan(&m.ID, &m.ObjectKey, &m.Kind, &m.Identifier, &m.MimeType, &m.Size,
		&m.Width, &m.Height, &m.UploadedBy, &m.CreatedAt)
	return m, err
}

// CreateMedia inserts a media record and returns it with its ID.
func (q *Queries) CreateMedia(ctx context.Context, m model.Media) (model.Media, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO media (object_key, kind, identifier, mime_type, size, width, height, uploaded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+mediaColumns,
		m.ObjectKey, m.Kind, m.Identifier, m.MimeType, m.Size, m.Width, m.Height, m.UploadedBy, m.CreatedAt.UTC())
	return scanMedia(row)
}

// GetLatestMediaByIdentifier returns the newest object stored under identifier.
func (q *Queries) GetLatestMediaByIdentifier(ctx context.Context, identifier string) (model.Media, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE identifier = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		identifier)
	return scanMedia(row)
}

// GetMediaByKey returns the object stored under key.
func (q *Queries) GetMediaByKey(ctx context.Context, key string) (model.Media, error) {
	return scanMedia(q.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE object_key = ?`, key))
}
