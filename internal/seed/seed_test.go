// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package seed

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/testutil"
)

const sampleSeed = `
users:
  - email: admin@voluntr.test
    display_name: Site Admin
    password: correct-horse-battery
    admin: true
  - email: Coordinator@Voluntr.test
    display_name: River Coordinator
    password: correct-horse-battery

organizations:
  - name: Green City Trust
    description: Urban greening projects.
    website: https://greencity.example.org
    location: Leeds
    owner: coordinator@voluntr.test

activities:
  - organization: green-city-trust
    title: Canal Clean-up
    causes: [Environment, Community]
    location: Leeds
    date: "2099-05-01"
    start_time: "09:00"
    end_time: "12:30"
    description: Bring **gloves**.
  - organization: green-city-trust
    title: Tree Planting Day
    causes: [Environment]
    location: Bradford
    date: "2020-03-14"
    created_by: admin@voluntr.test
`

func newSeeder(t *testing.T) (*Seeder, *sql.DB) {
	t.Helper()
	db := testutil.DB(t)
	logger := testutil.Logger()

	mem := cache.NewMemoryCache(cache.MemoryOptions{DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = mem.Close() })
	bucket, err := storage.NewBucket(db, storage.Options{Root: t.TempDir(), BaseURL: "/media", Cache: mem}, logger)
	require.NoError(t, err)

	ids := identity.NewService(db, identity.DefaultConfig([]byte("seed-test-secret-0123456789abcdef")),
		identity.LogMailer{Logger: logger}, logger)
	admins := service.NewAdminService(db)
	return New(db, ids, admins,
		service.NewOrganizationService(db, bucket, admins, logger),
		service.NewActivityService(db, mem, admins, logger),
		logger), db
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleSeed))
	require.NoError(t, err)

	require.Len(t, f.Users, 2)
	assert.True(t, f.Users[0].Admin)
	require.Len(t, f.Organizations, 1)
	assert.Equal(t, "coordinator@voluntr.test", f.Organizations[0].Owner)
	require.Len(t, f.Activities, 2)
	assert.Equal(t, []string{"Environment", "Community"}, f.Activities[0].Causes)
	assert.Equal(t, "2099-05-01", f.Activities[0].Date)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("organisations:\n  - name: Typo\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Activities, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, db := newSeeder(t)
	f, err := Parse([]byte(sampleSeed))
	require.NoError(t, err)

	res, err := s.Run(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 2, Organizations: 1, Activities: 2}, res)

	q := store.New(db)
	admin, err := q.GetUserByEmail(ctx, "admin@voluntr.test")
	require.NoError(t, err)
	isAdmin, err := q.IsAdmin(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	org, err := q.GetOrganizationBySlug(ctx, "green-city-trust")
	require.NoError(t, err)
	coordinator, err := q.GetUserByEmail(ctx, "coordinator@voluntr.test")
	require.NoError(t, err)
	assert.Equal(t, coordinator.ID, org.OwnerID)

	cleanup, err := q.GetActivityBySlug(ctx, "canal-clean-up")
	require.NoError(t, err)
	assert.Equal(t, "Environment, Community", cleanup.CauseArea)
	assert.Equal(t, coordinator.ID, cleanup.CreatedBy)
	assert.Contains(t, cleanup.DescriptionHTML, "<strong>gloves</strong>")

	planting, err := q.GetActivityBySlug(ctx, "tree-planting-day")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, planting.CreatedBy)

	res, err = s.Run(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 5}, res)

	all, err := q.ListActivities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown owner",
			doc: `
organizations:
  - name: Orphan Org
    owner: nobody@voluntr.test
`,
		},
		{
			name: "unknown organization",
			doc: `
activities:
  - organization: missing
    title: Lost
    date: "2099-01-01"
`,
		},
		{
			name: "weak password",
			doc: `
users:
  - email: weak@voluntr.test
    password: short
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSeeder(t)
			f, err := Parse([]byte(tt.doc))
			require.NoError(t, err)

			_, err = s.Run(context.Background(), f)
			require.Error(t, err)
		})
	}
}

func TestRun_InvalidActivityIsReported(t *testing.T) {
	s, _ := newSeeder(t)
	f, err := Parse([]byte(sampleSeed))
	require.NoError(t, err)
	f.Activities[1].Date = "14/03/2020"

	res, err := s.Run(context.Background(), f)
	require.Error(t, err)

	var verr *service.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, res.Activities)
}
