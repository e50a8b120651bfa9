// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
)

const organizationColumns = `id, slug, name, description, website, location, owner_id, created_at, updated_at`

func scanOrganization(row rowScanner) (model.Organization, error) {
	var o model.Organization
	err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Description, &o.Website, &o.Location,
		&o.OwnerID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrganizationParams holds the columns for a new organization.
type CreateOrganizationParams struct {
	Slug        string
	Name        string
	Description string
	Website     string
	Location    string
	OwnerID     int64
	CreatedAt   time.Time
}

// CreateOrganization inserts an organization and returns it.
func (q *Queries) CreateOrganization(ctx context.Context, arg CreateOrganizationParams) (model.Organization, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO organizations (slug, name, description, website, location, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+organizationColumns,
		arg.Slug, arg.Name, arg.Description, arg.Website, arg.Location, arg.OwnerID,
		arg.CreatedAt.UTC(), arg.CreatedAt.UTC())
	return scanOrganization(row)
}

// GetOrganizationBySlug returns the organization with slug.
func (q *Queries) GetOrganizationBySlug(ctx context.Context, slug string) (model.Organization, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = ?`, slug)
	return scanOrganization(row)
}

// GetOrganizationByID returns the organization with id.
func (q *Queries) GetOrganizationByID(ctx context.Context, id int64) (model.Organization, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = ?`, id)
	return scanOrganization(row)
}

// ListOrganizations returns all organizations ordered by name.
func (q *Queries) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

// slugExists reports whether table already has a row with slug.
// table must be a trusted constant.
func (q *Queries) slugExists(ctx context.Context, table, slug string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE slug = ?)`, slug).Scan(&exists)
	return exists, err
}

// OrganizationSlugExists reports whether an organization uses slug.
func (q *Queries) OrganizationSlugExists(ctx context.Context, slug string) (bool, error) {
	return q.slugExists(ctx, "organizations", slug)
}
