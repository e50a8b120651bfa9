// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seed loads users, organizations and activities from a YAML file.
// Running the same file twice creates nothing new.
package seed

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/util"
)

// File is the top-level seed document.
type File struct {
	Users         []User         `yaml:"users"`
	Organizations []Organization `yaml:"organizations"`
	Activities    []Activity     `yaml:"activities"`
}

// User is a seeded account.
type User struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"password"`
	Admin       bool   `yaml:"admin"`
}

// Organization is a seeded organization. Owner is the owner's email.
type Organization struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Website     string `yaml:"website"`
	Location    string `yaml:"location"`
	Owner       string `yaml:"owner"`
}

// Activity is a seeded activity. Organization is the organization slug;
// CreatedBy defaults to the organization owner.
type Activity struct {
	Organization string   `yaml:"organization"`
	Title        string   `yaml:"title"`
	Causes       []string `yaml:"causes"`
	Location     string   `yaml:"location"`
	Date         string   `yaml:"date"`
	EndDate      string   `yaml:"end_date"`
	StartTime    string   `yaml:"start_time"`
	EndTime      string   `yaml:"end_time"`
	Description  string   `yaml:"description"`
	CreatedBy    string   `yaml:"created_by"`
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return Parse(data)
}

// Accounts creates user accounts.
type Accounts interface {
	SignUp(ctx context.Context, email, password, displayName string) (*model.User, error)
}

// Result counts what a run created and skipped.
type Result struct {
	Users         int
	Organizations int
	Activities    int
	Skipped       int
}

// Seeder applies seed files through the application services.
type Seeder struct {
	queries       *store.Queries
	accounts      Accounts
	admins        *service.AdminService
	organizations *service.OrganizationService
	activities    *service.ActivityService
	logger        *slog.Logger
}

// New creates a Seeder.
func New(db store.DBTX, accounts Accounts, admins *service.AdminService,
	orgs *service.OrganizationService, activities *service.ActivityService, logger *slog.Logger) *Seeder {
	return &Seeder{
		queries:       store.New(db),
		accounts:      accounts,
		admins:        admins,
		organizations: orgs,
		activities:    activities,
		logger:        logger,
	}
}

// Run creates every entry of f that does not exist yet. Users are matched by
// email, organizations and activities by slug.
func (s *Seeder) Run(ctx context.Context, f *File) (Result, error) {
	var res Result

	for _, u := range f.Users {
		created, err := s.seedUser(ctx, u)
		if err != nil {
			return res, fmt.Errorf("seeding user %q: %w", u.Email, err)
		}
		res.count(created, &res.Users)
	}

	for _, o := range f.Organizations {
		created, err := s.seedOrganization(ctx, o)
		if err != nil {
			return res, fmt.Errorf("seeding organization %q: %w", o.Name, err)
		}
		res.count(created, &res.Organizations)
	}

	for _, a := range f.Activities {
		created, err := s.seedActivity(ctx, a)
		if err != nil {
			return res, fmt.Errorf("seeding activity %q: %w", a.Title, err)
		}
		res.count(created, &res.Activities)
	}

	s.logger.Info("seed applied",
		"users", res.Users, "organizations", res.Organizations,
		"activities", res.Activities, "skipped", res.Skipped)
	return res, nil
}

func (r *Result) count(created bool, n *int) {
	if created {
		*n++
	} else {
		r.Skipped++
	}
}

func (s *Seeder) seedUser(ctx context.Context, u User) (bool, error) {
	existing, err := s.userID(ctx, u.Email)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		user, err := s.accounts.SignUp(ctx, u.Email, u.Password, u.DisplayName)
		if err != nil {
			return false, err
		}
		existing, created = user.ID, true
	default:
		return false, err
	}

	if u.Admin {
		if err := s.admins.Grant(ctx, existing); err != nil {
			return false, fmt.Errorf("granting admin: %w", err)
		}
	}
	return created, nil
}

func (s *Seeder) seedOrganization(ctx context.Context, o Organization) (bool, error) {
	if _, err := s.queries.GetOrganizationBySlug(ctx, util.Slugify(o.Name)); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	ownerID, err := s.userID(ctx, o.Owner)
	if err != nil {
		return false, fmt.Errorf("owner %q: %w", o.Owner, err)
	}
	_, err = s.organizations.Create(ctx, ownerID, service.CreateOrganizationInput{
		Name:        o.Name,
		Description: o.Description,
		Website:     o.Website,
		Location:    o.Location,
	})
	return err == nil, err
}

func (s *Seeder) seedActivity(ctx context.Context, a Activity) (bool, error) {
	org, err := s.queries.GetOrganizationBySlug(ctx, a.Organization)
	if err != nil {
		return false, fmt.Errorf("organization %q: %w", a.Organization, err)
	}

	existing, err := s.queries.GetActivityBySlug(ctx, util.Slugify(a.Title))
	if err == nil && existing.OrganizationID == org.ID {
		return false, nil
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	creator := org.OwnerID
	if a.CreatedBy != "" {
		if creator, err = s.userID(ctx, a.CreatedBy); err != nil {
			return false, fmt.Errorf("creator %q: %w", a.CreatedBy, err)
		}
	}

	_, err = s.activities.Create(ctx, creator, service.CreateActivityInput{
		Organization: a.Organization,
		Title:        a.Title,
		CauseAreas:   a.Causes,
		Location:     a.Location,
		Date:         a.Date,
		EndDate:      a.EndDate,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Description:  a.Description,
	})
	return err == nil, err
}

func (s *Seeder) userID(ctx context.Context, email string) (int64, error) {
	u, err := s.queries.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}
