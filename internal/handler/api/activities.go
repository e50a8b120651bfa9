// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/olegiv/voluntr-go/internal/events"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/service"
)

// ListActivities handles GET /api/v1/activities.
// Query parameters: keyword, cause, location, organization, view
// (all|active|past) and match=tags to match cause against every tag.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	view, err := events.ParseView(q.Get("view"))
	if err != nil {
		WriteBadRequest(w, "Invalid view", map[string]string{"view": "must be one of all, active, past"})
		return
	}

	filters := events.Filters{
		Keyword:        q.Get("keyword"),
		Cause:          q.Get("cause"),
		Location:       q.Get("location"),
		Organization:   q.Get("organization"),
		MatchCauseTags: q.Get("match") == "tags",
	}

	activities, err := h.activities.Search(r.Context(), filters, view)
	if err != nil {
		h.writeServiceError(w, r, err, "Activity")
		return
	}
	h.metrics.ObserveSearch(string(view))

	WriteSuccess(w, activities, &Meta{Total: len(activities)})
}

// CategorizedActivities handles GET /api/v1/activities/categorized.
func (h *Handler) CategorizedActivities(w http.ResponseWriter, r *http.Request) {
	categorized, err := h.activities.Categorized(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Activity")
		return
	}
	WriteSuccess(w, categorized, &Meta{Total: categorized.Total()})
}

// GetActivity handles GET /api/v1/activities/{slug}.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	slug, ok := slugParam(w, r, "slug", "Activity")
	if !ok {
		return
	}
	activity, err := h.activities.Get(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, err, "Activity")
		return
	}
	WriteSuccess(w, activity, nil)
}

// CreateActivity handles POST /api/v1/activities.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var in service.CreateActivityInput
	if !decodeJSON(w, r, &in) {
		return
	}

	userID := middleware.GetUserID(r)
	activity, err := h.activities.Create(r.Context(), userID, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}

	h.logger.Info("activity created", "category", "activity",
		"slug", activity.Slug, "user_id", userID)
	w.Header().Set("Location", "/api/v1/activities/"+activity.Slug)
	WriteCreated(w, activity)
}

// ListOrganizationActivities handles GET /api/v1/organizations/{slug}/activities.
func (h *Handler) ListOrganizationActivities(w http.ResponseWriter, r *http.Request) {
	slug, ok := slugParam(w, r, "slug", "Organization")
	if !ok {
		return
	}
	activities, err := h.activities.ListByOrganization(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(activities)))
	WriteSuccess(w, activities, &Meta{Total: len(activities)})
}
