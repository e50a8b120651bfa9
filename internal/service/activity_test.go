// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/events"
	"github.com/olegiv/voluntr-go/internal/model"
)

func setupActivities(t *testing.T) (*testEnv, int64) {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "owner@example.com")

	_, err := env.orgs.Create(ctx, owner, CreateOrganizationInput{Name: "GreenOrg"})
	require.NoError(t, err)
	_, err = env.orgs.Create(ctx, owner, CreateOrganizationInput{Name: "FoodOrg"})
	require.NoError(t, err)

	env.seedActivity(t, owner, "greenorg", "Beach Cleanup", "Environment", "Vancouver", -2)
	env.seedActivity(t, owner, "foodorg", "Food Drive", "Poverty", "Burnaby", 1)
	return env, owner
}

func titles(list []model.Activity) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Title)
	}
	return out
}

func TestActivityService_SearchAndCategorize(t *testing.T) {
	env, _ := setupActivities(t)
	ctx := context.Background()

	all, err := env.acts.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beach Cleanup", "Food Drive"}, titles(all))
	assert.Equal(t, "GreenOrg", all[0].Organization)

	got, err := env.acts.Search(ctx, events.Filters{Keyword: "beach"}, events.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beach Cleanup"}, titles(got))

	got, err = env.acts.Search(ctx, events.Filters{Cause: "Environment"}, events.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beach Cleanup"}, titles(got))

	got, err = env.acts.Search(ctx, events.Filters{Organization: "FoodOrg"}, events.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food Drive"}, titles(got))

	got, err = env.acts.Search(ctx, events.Filters{}, events.ViewActive)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food Drive"}, titles(got))

	cat, err := env.acts.Categorized(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food Drive"}, titles(cat.Active))
	assert.Equal(t, []string{"Beach Cleanup"}, titles(cat.Past))
}

func TestActivityService_ListIsCachedAndInvalidated(t *testing.T) {
	env, owner := setupActivities(t)
	ctx := context.Background()

	_, err := env.acts.List(ctx)
	require.NoError(t, err)
	has, err := env.cache.Has(ctx, activityCachePrefix+"all")
	require.NoError(t, err)
	assert.True(t, has)

	env.seedActivity(t, owner, "greenorg", "Tree Planting", "Environment, Education", "Surrey", 5)
	has, err = env.cache.Has(ctx, activityCachePrefix+"all")
	require.NoError(t, err)
	assert.False(t, has, "creating an activity invalidates listings")

	all, err := env.acts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := env.acts.Search(ctx, events.Filters{Cause: "Education"}, events.ViewAll)
	require.NoError(t, err)
	assert.Empty(t, got, "cause matching is against the whole field")

	got, err = env.acts.Search(ctx, events.Filters{Cause: "Education", MatchCauseTags: true}, events.ViewAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tree Planting"}, titles(got))
}

func TestActivityService_Create(t *testing.T) {
	env, owner := setupActivities(t)
	ctx := context.Background()

	a, err := env.acts.Create(ctx, owner, CreateActivityInput{
		Organization: "greenorg",
		Title:        "Beach Cleanup",
		CauseAreas:   []string{" Environment ", "Health"},
		Location:     "Vancouver",
		Date:         "2030-06-01",
		StartTime:    "09:30",
		Description:  "Bring **gloves**.\n\n<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.Equal(t, "beach-cleanup-2", a.Slug)
	assert.Equal(t, "Environment, Health", a.CauseArea)
	assert.Equal(t, "GreenOrg", a.Organization)
	assert.Contains(t, a.DescriptionHTML, "<strong>gloves</strong>")
	assert.NotContains(t, a.DescriptionHTML, "<script>")

	got, err := env.acts.Get(ctx, "beach-cleanup-2")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = env.acts.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := env.acts.ListByOrganization(ctx, "greenorg")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = env.acts.ListByOrganization(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivityService_CreatePermissions(t *testing.T) {
	env, _ := setupActivities(t)
	ctx := context.Background()
	stranger := env.createUser(t, "stranger@example.com")

	in := CreateActivityInput{Organization: "greenorg", Title: "Dune Restoration", Date: "2030-01-01"}
	_, err := env.acts.Create(ctx, stranger, in)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.admins.Grant(ctx, stranger))
	_, err = env.acts.Create(ctx, stranger, in)
	assert.NoError(t, err, "administrators may post for any organization")
}

func TestActivityService_CreateValidation(t *testing.T) {
	env, owner := setupActivities(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateActivityInput
		field string
	}{
		{"missing title", CreateActivityInput{Organization: "greenorg", Date: "2030-01-01"}, "title"},
		{"long title", CreateActivityInput{Organization: "greenorg", Title: strings.Repeat("x", 201), Date: "2030-01-01"}, "title"},
		{"missing date", CreateActivityInput{Organization: "greenorg", Title: "x"}, "date"},
		{"bad date", CreateActivityInput{Organization: "greenorg", Title: "x", Date: "next week"}, "date"},
		{"end before start", CreateActivityInput{Organization: "greenorg", Title: "x", Date: "2030-01-02", EndDate: "2030-01-01"}, "end_date"},
		{"bad time", CreateActivityInput{Organization: "greenorg", Title: "x", Date: "2030-01-02", EndTime: "25:00"}, "end_time"},
		{"unknown organization", CreateActivityInput{Organization: "nope", Title: "x", Date: "2030-01-02"}, "organization"},
		{"missing organization", CreateActivityInput{Title: "x", Date: "2030-01-02"}, "organization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.acts.Create(ctx, owner, tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}
