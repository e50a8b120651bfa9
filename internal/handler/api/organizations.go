// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/util"
)

// multipartOverhead is the allowance for multipart framing on top of the
// upload size limit.
const multipartOverhead = 1 << 20

// imageSetter stores an uploaded image for an organization.
type imageSetter func(ctx context.Context, slug string, userID int64, r io.Reader) (*model.Media, error)

// ListOrganizations handles GET /api/v1/organizations.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.organizations.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}
	WriteSuccess(w, orgs, &Meta{Total: len(orgs)})
}

// GetOrganization handles GET /api/v1/organizations/{slug}.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	slug, ok := slugParam(w, r, "slug", "Organization")
	if !ok {
		return
	}
	org, err := h.organizations.Get(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}
	WriteSuccess(w, org, nil)
}

// CreateOrganization handles POST /api/v1/organizations.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var in service.CreateOrganizationInput
	if !decodeJSON(w, r, &in) {
		return
	}

	userID := middleware.GetUserID(r)
	org, err := h.organizations.Create(r.Context(), userID, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}

	h.logger.Info("organization created", "category", "organization",
		"slug", org.Slug, "user_id", userID)
	w.Header().Set("Location", "/api/v1/organizations/"+org.Slug)
	WriteCreated(w, org)
}

// UploadBanner handles PUT /api/v1/organizations/{slug}/banner.
func (h *Handler) UploadBanner(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.organizations.SetBanner)
}

// UploadProfile handles PUT /api/v1/organizations/{slug}/profile.
func (h *Handler) UploadProfile(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, h.organizations.SetProfile)
}

// uploadImage reads the "file" part of a multipart form and hands it to set.
func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request, set imageSetter) {
	slug, ok := slugParam(w, r, "slug", "Organization")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.bucket.MaxUploadSize()+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Upload exceeds the size limit", nil)
			return
		}
		WriteBadRequest(w, "Multipart form with a \"file\" field is required", nil)
		return
	}
	defer func() { _ = file.Close() }()

	userID := middleware.GetUserID(r)
	media, err := set(r.Context(), slug, userID, file)
	if err != nil {
		h.writeServiceError(w, r, err, "Organization")
		return
	}

	h.logger.Info("organization image uploaded", "category", "media",
		"organization", slug, "kind", media.Kind, "filename", util.DisplayFilename(header.Filename), "user_id", userID)
	WriteSuccess(w, media, nil)
}

// GetBannerURL handles GET /api/v1/media/banner/{id}.
// Without a prefix query parameter the banner prefix is used; an explicit
// empty prefix looks the identifier up unprefixed.
func (h *Handler) GetBannerURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := service.BannerPrefix
	if q.Has("prefix") {
		prefix = q.Get("prefix")
	}

	u, err := h.organizations.BannerURL(r.Context(), chi.URLParam(r, "id"), prefix)
	if err != nil {
		h.writeServiceError(w, r, err, "Image")
		return
	}
	WriteSuccess(w, map[string]string{"url": u}, nil)
}
