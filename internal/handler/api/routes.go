// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/voluntr-go/internal/middleware"
)

// Router defaults.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRateLimit      = 20
	DefaultRateBurst      = 40
	mediaMaxAge           = 365 * 24 * 60 * 60
)

// RouterOptions configures the HTTP router.
type RouterOptions struct {
	IsDevelopment  bool
	RequestTimeout time.Duration
	// RateLimit is the per-IP request rate of /api/v1; zero disables it.
	RateLimit float64
	RateBurst int
	// MediaPath is where stored objects are served; empty disables it.
	MediaPath string
}

// Routes builds the HTTP router serving the API, health checks, metrics
// and stored media.
func (h *Handler) Routes(opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestMetrics(h.metrics))
	r.Use(middleware.SecurityHeaders(opts.IsDevelopment))

	r.Get("/health", h.health.Health)
	r.Get("/health/live", h.health.Liveness)
	r.Get("/health/ready", h.health.Readiness)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	if h.bucket != nil && opts.MediaPath != "" {
		r.With(middleware.ImmutableCache(mediaMaxAge)).
			Handle(opts.MediaPath+"/*", http.StripPrefix(opts.MediaPath, h.bucket.Handler()))
	}

	requireAuth := middleware.RequireAuth(h.identity)

	r.Route("/api/v1", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst).Middleware())
		}

		// The event stream outlives the request timeout.
		r.With(requireAuth).Get("/auth/events", h.Events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.RequestTimeout))

			r.Route("/activities", func(r chi.Router) {
				r.Get("/", h.ListActivities)
				r.Get("/categorized", h.CategorizedActivities)
				r.Get("/{slug}", h.GetActivity)
				r.With(requireAuth).Post("/", h.CreateActivity)
			})

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", h.ListOrganizations)
				r.Get("/{slug}", h.GetOrganization)
				r.Get("/{slug}/activities", h.ListOrganizationActivities)
				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/", h.CreateOrganization)
					r.Put("/{slug}/banner", h.UploadBanner)
					r.Put("/{slug}/profile", h.UploadProfile)
				})
			})

			r.Get("/media/banner/{id}", h.GetBannerURL)

			r.Route("/auth", func(r chi.Router) {
				r.Get("/state", h.State)
				r.Post("/password/exchange", h.ExchangeResetToken)

				r.Group(func(r chi.Router) {
					if h.protection != nil {
						r.Use(h.protection.Middleware())
					}
					r.Post("/signup", h.SignUp)
					r.Post("/signin", h.SignIn)
					r.Post("/password/reset", h.RequestPasswordReset)
				})

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/signout", h.SignOut)
					r.Post("/refresh", h.Refresh)
					r.Put("/password", h.UpdatePassword)
					r.Get("/admin", h.IsAdmin)
				})
			})
		})
	})

	return r
}
