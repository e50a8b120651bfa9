// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
)

const activitySelect = `SELECT a.id, a.organization_id, a.slug, a.title, o.name, a.cause_area, a.location,
	a.date, a.end_date, a.start_time, a.end_time, a.description, a.description_html,
	a.created_by, a.created_at, a.updated_at
	FROM activities a JOIN organizations o ON o.id = a.organization_id`

func scanActivity(row rowScanner) (model.Activity, error) {
	var a model.Activity
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Slug, &a.Title, &a.Organization, &a.CauseArea,
		&a.Location, &a.Date, &a.EndDate, &a.StartTime, &a.EndTime, &a.Description,
		&a.DescriptionHTML, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateActivityParams holds the columns for a new activity.
type CreateActivityParams struct {
	OrganizationID  int64
	Slug            string
	Title           string
	CauseArea       string
	Location        string
	Date            string
	EndDate         string
	StartTime       string
	EndTime         string
	Description     string
	DescriptionHTML string
	CreatedBy       int64
	CreatedAt       time.Time
}

// CreateActivity inserts an activity and returns its ID.
func (q *Queries) CreateActivity(ctx context.Context, arg CreateActivityParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO activities (organization_id, slug, title, cause_area, location, date, end_date,
			start_time, end_time, description, description_html, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		arg.OrganizationID, arg.Slug, arg.Title, arg.CauseArea, arg.Location, arg.Date, arg.EndDate,
		arg.StartTime, arg.EndTime, arg.Description, arg.DescriptionHTML, arg.CreatedBy,
		arg.CreatedAt.UTC(), arg.CreatedAt.UTC()).Scan(&id)
	return id, err
}

// GetActivityByID returns the activity with id.
func (q *Queries) GetActivityByID(ctx context.Context, id int64) (model.Activity, error) {
	return scanActivity(q.db.QueryRowContext(ctx, activitySelect+` WHERE a.id = ?`, id))
}

// GetActivityBySlug returns the activity with slug.
func (q *Queries) GetActivityBySlug(ctx context.Context, slug string) (model.Activity, error) {
	return scanActivity(q.db.QueryRowContext(ctx, activitySelect+` WHERE a.slug = ?`, slug))
}

// ListActivities returns all activities ordered by date.
func (q *Queries) ListActivities(ctx context.Context) ([]model.Activity, error) {
	return q.listActivities(ctx, activitySelect+` ORDER BY a.date, a.id`)
}

// ListActivitiesByOrganization returns the activities of one organization ordered by date.
func (q *Queries) ListActivitiesByOrganization(ctx context.Context, organizationID int64) ([]model.Activity, error) {
	return q.listActivities(ctx, activitySelect+` WHERE a.organization_id = ? ORDER BY a.date, a.id`, organizationID)
}

func (q *Queries) listActivities(ctx context.Context, query string, args ...any) ([]model.Activity, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// ActivitySlugExists reports whether an activity uses slug.
func (q *Queries) ActivitySlugExists(ctx context.Context, slug string) (bool, error) {
	return q.slugExists(ctx, "activities", slug)
}
