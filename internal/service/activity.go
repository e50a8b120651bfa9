// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/events"
	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/util"
)

// activityCachePrefix namespaces every cached activity listing.
const activityCachePrefix = "activities:"

const (
	maxTitleLength       = 200
	maxDescriptionLength = 20000
	timeOfDayLayout      = "15:04"
)

// htmlSanitizer strips anything unsafe from rendered descriptions while
// keeping the usual formatting tags.
var htmlSanitizer = bluemonday.UGCPolicy()

// CreateActivityInput is the data for a new activity.
type CreateActivityInput struct {
	Organization string   `json:"organization"` // organization slug
	Title        string   `json:"title"`
	CauseArea    string   `json:"cause_area"`
	CauseAreas   []string `json:"cause_areas"`
	Location     string   `json:"location"`
	Date         string   `json:"date"`
	EndDate      string   `json:"end_date"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	Description  string   `json:"description"`
}

// ActivityService lists, searches and creates activities.
type ActivityService struct {
	queries *store.Queries
	list    *cache.TypedCache[[]model.Activity]
	admins  AdminChecker
	md      goldmark.Markdown
	logger  *slog.Logger
	now     func() time.Time
}

// NewActivityService creates an ActivityService. Listings are cached in c.
func NewActivityService(db store.DBTX, c cache.Cache, admins AdminChecker, logger *slog.Logger) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityService{
		queries: store.New(db),
		list:    cache.NewTypedCache[[]model.Activity](c, 5*time.Minute),
		admins:  admins,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:  logger,
		now:     time.Now,
	}
}

// List returns every activity ordered by date.
func (s *ActivityService) List(ctx context.Context) ([]model.Activity, error) {
	list, err := s.list.GetOrSet(ctx, activityCachePrefix+"all", func() (*[]model.Activity, error) {
		items, err := s.queries.ListActivities(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing activities: %w", err)
		}
		if items == nil {
			items = []model.Activity{}
		}
		return &items, nil
	})
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// Search returns the activities matching f, narrowed to view.
func (s *ActivityService) Search(ctx context.Context, f events.Filters, view events.View) ([]model.Activity, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return events.Search(list, f, view, s.now()), nil
}

// Categorized splits all activities into active and past ones.
func (s *ActivityService) Categorized(ctx context.Context) (events.Categorized, error) {
	list, err := s.List(ctx)
	if err != nil {
		return events.Categorized{}, err
	}
	return events.Categorize(list, s.now()), nil
}

// Get returns the activity with slug.
func (s *ActivityService) Get(ctx context.Context, slug string) (*model.Activity, error) {
	a, err := s.queries.GetActivityBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	return &a, nil
}

// ListByOrganization returns the activities of the organization with slug.
func (s *ActivityService) ListByOrganization(ctx context.Context, slug string) ([]model.Activity, error) {
	org, err := s.queries.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	items, err := s.queries.ListActivitiesByOrganization(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	if items == nil {
		items = []model.Activity{}
	}
	return items, nil
}

// Create adds an activity to an organization. Only the organization owner
// and administrators may do so.
func (s *ActivityService) Create(ctx context.Context, userID int64, in CreateActivityInput) (*model.Activity, error) {
	in = normalizeActivityInput(in)
	if err := validateActivity(in); err != nil {
		return nil, err
	}

	org, err := s.queries.GetOrganizationBySlug(ctx, in.Organization)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ValidationError{Fields: map[string]string{"organization": "unknown organization"}}
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if err := s.authorize(ctx, &org, userID); err != nil {
		return nil, err
	}

	slug, err := util.UniqueSlug(ctx, in.Title, "activity", s.queries.ActivitySlugExists)
	if err != nil {
		return nil, err
	}
	html, err := s.renderDescription(in.Description)
	if err != nil {
		return nil, err
	}

	id, err := s.queries.CreateActivity(ctx, store.CreateActivityParams{
		OrganizationID:  org.ID,
		Slug:            slug,
		Title:           in.Title,
		CauseArea:       in.CauseArea,
		Location:        in.Location,
		Date:            in.Date,
		EndDate:         in.EndDate,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Description:     in.Description,
		DescriptionHTML: html,
		CreatedBy:       userID,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating activity: %w", err)
	}
	s.invalidate(ctx)

	a, err := s.queries.GetActivityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading created activity: %w", err)
	}
	s.logger.Info("activity created", "category", model.AuditCategoryActivity,
		"activity_id", id, "organization_id", org.ID, "user_id", userID)
	return &a, nil
}

func (s *ActivityService) authorize(ctx context.Context, org *model.Organization, userID int64) error {
	if org.OwnedBy(userID) {
		return nil
	}
	if s.admins != nil {
		isAdmin, err := s.admins.IsAdmin(ctx, userID)
		if err != nil {
			return fmt.Errorf("checking admin: %w", err)
		}
		if isAdmin {
			return nil
		}
	}
	return ErrForbidden
}

// renderDescription converts Markdown to sanitized HTML.
func (s *ActivityService) renderDescription(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering description: %w", err)
	}
	return htmlSanitizer.Sanitize(buf.String()), nil
}

func (s *ActivityService) invalidate(ctx context.Context) {
	if err := s.list.Invalidate(ctx, activityCachePrefix); err != nil {
		s.logger.Warn("failed to invalidate activity cache", "category", model.AuditCategoryCache, "error", err)
	}
}

func normalizeActivityInput(in CreateActivityInput) CreateActivityInput {
	in.Organization = strings.TrimSpace(in.Organization)
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Date = strings.TrimSpace(in.Date)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.Description = strings.TrimSpace(in.Description)
	if len(in.CauseAreas) > 0 {
		in.CauseArea = model.JoinCauseTags(in.CauseAreas)
	} else {
		in.CauseArea = strings.TrimSpace(in.CauseArea)
	}
	return in
}

func validateActivity(in CreateActivityInput) error {
	v := validator{}
	v.check(in.Organization != "", "organization", "is required")
	v.check(in.Title != "", "title", "is required")
	v.check(len(in.Title) <= maxTitleLength, "title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	v.check(len(in.Description) <= maxDescriptionLength, "description", "is too long")

	start, err := events.ParseDate(in.Date)
	v.check(in.Date != "", "date", "is required")
	v.check(err == nil, "date", "must be a date such as 2026-05-01")

	if in.EndDate != "" {
		end, endErr := events.ParseDate(in.EndDate)
		v.check(endErr == nil, "end_date", "must be a date such as 2026-05-01")
		v.check(endErr != nil || err != nil || !end.Before(start), "end_date", "must not be before date")
	}
	for field, value := range map[string]string{"start_time": in.StartTime, "end_time": in.EndTime} {
		if value != "" {
			_, terr := time.Parse(timeOfDayLayout, value)
			v.check(terr == nil, field, "must be a time such as 09:30")
		}
	}
	return v.err()
}
