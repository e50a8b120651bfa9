// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/testutil"
)

type testEnv struct {
	db      *sql.DB
	cache   *cache.MemoryCache
	admins  *AdminService
	orgs    *OrganizationService
	acts    *ActivityService
	audit   *AuditService
	queries *store.Queries
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	mem := cache.NewMemoryCache(cache.MemoryOptions{DefaultTTL: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })

	bucket, err := storage.NewBucket(db, storage.Options{
		Root:    t.TempDir(),
		BaseURL: "http://localhost:8080/media",
		Cache:   mem,
	}, testutil.Logger())
	require.NoError(t, err)

	admins := NewAdminService(db)
	return &testEnv{
		db:      db,
		cache:   mem,
		admins:  admins,
		orgs:    NewOrganizationService(db, bucket, admins, testutil.Logger()),
		acts:    NewActivityService(db, mem, admins, testutil.Logger()),
		audit:   NewAuditService(db, testutil.Logger()),
		queries: store.New(db),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) int64 {
	t.Helper()
	u, err := e.queries.CreateUser(context.Background(), store.CreateUserParams{
		Email:        email,
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	return u.ID
}

func dayOffset(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func (e *testEnv) seedActivity(t *testing.T, userID int64, org, title, cause, location string, days int) {
	t.Helper()
	_, err := e.acts.Create(context.Background(), userID, CreateActivityInput{
		Organization: org,
		Title:        title,
		CauseArea:    cause,
		Location:     location,
		Date:         dayOffset(days),
	})
	require.NoError(t, err, fmt.Sprintf("seeding %s", title))
}
