// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON API for activities, organizations, media and
// authentication.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/events"
	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/metrics"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/util"
	"github.com/olegiv/voluntr-go/internal/version"
)

// maxJSONBody limits request bodies of JSON endpoints.
const maxJSONBody = 1 << 20

// Deps are the collaborators of the API handlers.
type Deps struct {
	DB            *sql.DB
	Identity      *identity.Service
	Activities    *service.ActivityService
	Organizations *service.OrganizationService
	Audit         *service.AuditService
	Admins        service.AdminChecker
	Bucket        *storage.Bucket
	Cache         cache.Cache
	Protection    *middleware.SignInProtection
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Version       version.Info
	// UploadsDir is checked by the health endpoint.
	UploadsDir string
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	identity      *identity.Service
	activities    *service.ActivityService
	organizations *service.OrganizationService
	audit         *service.AuditService
	admins        service.AdminChecker
	bucket        *storage.Bucket
	protection    *middleware.SignInProtection
	metrics       *metrics.Metrics
	logger        *slog.Logger
	health        *HealthHandler

	// streams is cancelled by CloseStreams to end open event streams.
	streams     context.Context
	stopStreams context.CancelFunc
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var auth middleware.Authenticator
	if d.Identity != nil {
		auth = d.Identity
	}
	health := NewHealthHandler(d.DB, d.UploadsDir, d.Version, auth, d.Admins)
	if d.Cache != nil {
		health.WithCache(d.Cache)
	}
	streams, stopStreams := context.WithCancel(context.Background())
	return &Handler{
		streams:       streams,
		stopStreams:   stopStreams,
		identity:      d.Identity,
		activities:    d.Activities,
		organizations: d.Organizations,
		audit:         d.Audit,
		admins:        d.Admins,
		bucket:        d.Bucket,
		protection:    d.Protection,
		metrics:       d.Metrics,
		logger:        logger,
		health:        health,
	}
}

// CloseStreams ends every open event stream. http.Server.Shutdown does not
// cancel request contexts, so register it with RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.stopStreams()
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains list metadata.
type Meta struct {
	Total int `json:"total"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// WriteForbidden writes a 403 Forbidden response.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusUnprocessableEntity, "validation_error", "Validation failed", fieldErrors)
}

// decodeJSON reads a JSON body into dst and writes a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			WriteBadRequest(w, "Request body is required", nil)
		} else {
			WriteBadRequest(w, "Invalid JSON body", nil)
		}
		return false
	}
	return true
}

// writeServiceError maps domain errors to API errors. entity names the
// resource in not-found messages.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, entity string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteValidationError(w, verr.Fields)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		WriteNotFound(w, entity+" not found")
	case errors.Is(err, service.ErrForbidden):
		WriteForbidden(w, "You are not allowed to modify this "+entity)
	case errors.Is(err, storage.ErrTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Upload exceeds the size limit", nil)
	case errors.Is(err, storage.ErrUnsupportedFormat):
		WriteError(w, http.StatusUnsupportedMediaType, "unsupported_format",
			"Upload must be a JPEG, PNG, GIF or WebP image", nil)
	case errors.Is(err, storage.ErrInvalidIdentifier):
		WriteBadRequest(w, "Invalid object identifier", nil)
	case errors.Is(err, events.ErrInvalidDate):
		WriteValidationError(w, map[string]string{"date": err.Error()})
	case errors.Is(err, identity.ErrInvalidCredentials):
		WriteUnauthorized(w, "Invalid email or password")
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrNoSession):
		WriteUnauthorized(w, "Invalid or expired token")
	case errors.Is(err, identity.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "conflict", "Email already registered", nil)
	case errors.Is(err, identity.ErrInvalidEmail):
		WriteValidationError(w, map[string]string{"email": "must be a valid email address"})
	case errors.Is(err, identity.ErrWeakPassword):
		WriteValidationError(w, map[string]string{"password": err.Error()})
	case errors.Is(err, identity.ErrInvalidRedirect):
		WriteValidationError(w, map[string]string{"redirect_to": "must be an absolute http(s) URL"})
	default:
		h.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteInternalError(w, "Failed to process request")
	}
}

// slugParam returns the named URL parameter and writes a 404 when it is not
// a well-formed slug.
func slugParam(w http.ResponseWriter, r *http.Request, name, entity string) (string, bool) {
	slug := chi.URLParam(r, name)
	if !util.IsValidSlug(slug) {
		WriteNotFound(w, entity+" not found")
		return "", false
	}
	return slug, true
}

// clientMeta describes the caller for session and audit records.
func clientMeta(r *http.Request) identity.ClientMeta {
	return identity.ClientMeta{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}
