// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/util"
)

// Bucket prefixes for organization images.
const (
	BannerPrefix  = "banners"
	ProfilePrefix = "profiles"
)

const maxNameLength = 120

// CreateOrganizationInput is the data for a new organization.
type CreateOrganizationInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Location    string `json:"location"`
}

// OrganizationView is an organization with the URLs of its images.
type OrganizationView struct {
	model.Organization
	BannerURL  string `json:"banner_url,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// OrganizationService manages organizations and their images.
type OrganizationService struct {
	queries *store.Queries
	bucket  *storage.Bucket
	admins  AdminChecker
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrganizationService creates an OrganizationService.
func NewOrganizationService(db store.DBTX, bucket *storage.Bucket, admins AdminChecker, logger *slog.Logger) *OrganizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationService{
		queries: store.New(db),
		bucket:  bucket,
		admins:  admins,
		logger:  logger,
		now:     time.Now,
	}
}

// Create registers an organization owned by ownerID.
func (s *OrganizationService) Create(ctx context.Context, ownerID int64, in CreateOrganizationInput) (*model.Organization, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Website = strings.TrimSpace(in.Website)
	in.Location = strings.TrimSpace(in.Location)

	v := validator{}
	v.check(in.Name != "", "name", "is required")
	v.check(len(in.Name) <= maxNameLength, "name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	if in.Website != "" {
		u, err := url.Parse(in.Website)
		v.check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
			"website", "must be an http or https URL")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	slug, err := util.UniqueSlug(ctx, in.Name, "organization", s.queries.OrganizationSlugExists)
	if err != nil {
		return nil, err
	}

	org, err := s.queries.CreateOrganization(ctx, store.CreateOrganizationParams{
		Slug:        slug,
		Name:        in.Name,
		Description: in.Description,
		Website:     in.Website,
		Location:    in.Location,
		OwnerID:     ownerID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	s.logger.Info("organization created", "category", model.AuditCategoryOrganization,
		"organization_id", org.ID, "user_id", ownerID)
	return &org, nil
}

// List returns all organizations.
func (s *OrganizationService) List(ctx context.Context) ([]model.Organization, error) {
	items, err := s.queries.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	if items == nil {
		items = []model.Organization{}
	}
	return items, nil
}

// Get returns the organization with slug and the URLs of its images.
func (s *OrganizationService) Get(ctx context.Context, slug string) (*OrganizationView, error) {
	org, err := s.get(ctx, slug)
	if err != nil {
		return nil, err
	}
	view := &OrganizationView{Organization: *org}
	if view.BannerURL, err = s.imageURL(ctx, BannerPrefix, slug); err != nil {
		return nil, err
	}
	if view.ProfileURL, err = s.imageURL(ctx, ProfilePrefix, slug); err != nil {
		return nil, err
	}
	return view, nil
}

// BannerURL returns the banner URL for id under prefix.
func (s *OrganizationService) BannerURL(ctx context.Context, id, prefix string) (string, error) {
	u, err := s.bucket.BannerURL(ctx, id, prefix)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNotFound
	}
	return u, err
}

// SetBanner stores a new banner image for the organization.
func (s *OrganizationService) SetBanner(ctx context.Context, slug string, userID int64, r io.Reader) (*model.Media, error) {
	return s.putImage(ctx, slug, userID, model.MediaKindBanner, BannerPrefix, r)
}

// SetProfile stores a new profile image for the organization.
func (s *OrganizationService) SetProfile(ctx context.Context, slug string, userID int64, r io.Reader) (*model.Media, error) {
	return s.putImage(ctx, slug, userID, model.MediaKindProfile, ProfilePrefix, r)
}

func (s *OrganizationService) putImage(ctx context.Context, slug string, userID int64, kind, prefix string, r io.Reader) (*model.Media, error) {
	org, err := s.get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !org.OwnedBy(userID) {
		isAdmin := false
		if s.admins != nil {
			if isAdmin, err = s.admins.IsAdmin(ctx, userID); err != nil {
				return nil, fmt.Errorf("checking admin: %w", err)
			}
		}
		if !isAdmin {
			return nil, ErrForbidden
		}
	}
	return s.bucket.PutImage(ctx, kind, storage.Identifier(prefix, org.Slug), userID, r)
}

func (s *OrganizationService) get(ctx context.Context, slug string) (*model.Organization, error) {
	org, err := s.queries.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return &org, nil
}

// imageURL returns "" when no image is stored.
func (s *OrganizationService) imageURL(ctx context.Context, prefix, slug string) (string, error) {
	u, err := s.bucket.BannerURL(ctx, slug, prefix)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return u, err
}
