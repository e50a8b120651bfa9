// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/config"
	"github.com/olegiv/voluntr-go/internal/geoip"
	"github.com/olegiv/voluntr-go/internal/handler/api"
	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/logging"
	"github.com/olegiv/voluntr-go/internal/metrics"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/scheduler"
	"github.com/olegiv/voluntr-go/internal/seed"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = ""
	appGitCommit = ""
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	seedFile := flag.String("seed", "", "Load a YAML seed file before starting (overrides VOLUNTR_SEED_FILE)")
	runJob := flag.String("run-job", "", "Run one maintenance job and exit")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "voluntr - volunteering activities API\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_JWT_SECRET     Access token signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_DB_PATH        SQLite database path (default: ./data/voluntr.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_SERVER_PORT    Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_ENV            Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_UPLOADS_DIR    Media bucket directory (default: ./uploads)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_REDIS_URL      Redis URL for distributed caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_SEED_FILE      YAML seed file loaded on startup (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  VOLUNTR_GEOIP_DB_PATH  GeoLite2-Country database for audit entries (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "\nMaintenance jobs: %s, %s, %s\n",
			scheduler.JobPurgeSessions, scheduler.JobPurgeResets, scheduler.JobPurgeAudit)
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}.WithBuildInfo()

	if *showVersion {
		_, _ = fmt.Printf("voluntr %s (commit: %s, built: %s)\n", info, info.GitCommit, info.BuildTime)
		os.Exit(0)
	}

	if err := run(info, *seedFile, *runJob); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info, seedFile, runJob string) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if seedFile != "" {
		cfg.SeedFile = seedFile
	}

	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(textHandler))

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Warnings and errors are also written to the audit log from here on.
	logger := slog.New(logging.NewAuditLogHandler(textHandler, db))
	slog.SetDefault(logger)
	logger.Info("database ready", info.LogAttrs()...)

	ctx := context.Background()

	schedOpts := scheduler.Options{AuditRetention: cfg.AuditRetention()}
	var geo *geoip.Lookup
	if cfg.GeoIPDBPath != "" {
		if geo, err = geoip.Open(cfg.GeoIPDBPath); err != nil {
			logger.Warn("geoip disabled", "path", cfg.GeoIPDBPath, "error", err)
			geo = nil
		} else {
			defer func() { _ = geo.Close() }()
			schedOpts.GeoIP = geo
		}
	}

	sched, err := scheduler.New(db, logger, schedOpts)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if runJob != "" {
		n, err := sched.TriggerNow(ctx, runJob)
		if err != nil {
			return fmt.Errorf("running job %s: %w", runJob, err)
		}
		logger.Info("job finished", "job", runJob, "deleted", n)
		return nil
	}

	appCache := cache.New(cache.Config{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      cfg.CacheTTLDuration(),
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: time.Minute,
	}, logger)
	defer func() { _ = appCache.Close() }()

	m := metrics.New()
	m.RegisterCache("app", appCache)

	bucket, err := storage.NewBucket(db, storage.Options{
		Root:    cfg.UploadsDir,
		BaseURL: cfg.MediaBaseURL,
		Cache:   appCache,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating media bucket: %w", err)
	}

	idCfg := identity.DefaultConfig([]byte(cfg.JWTSecret))
	idCfg.SessionLifetime = cfg.SessionLifetime
	idCfg.ResetLifetime = cfg.ResetLifetime
	idCfg.SiteURL = cfg.SiteURL
	ids := identity.NewService(db, idCfg, identity.LogMailer{Logger: logger}, logger)

	admins := service.NewAdminService(db)
	organizations := service.NewOrganizationService(db, bucket, admins, logger)
	activities := service.NewActivityService(db, appCache, admins, logger)

	if cfg.SeedFile != "" {
		if err := runSeed(ctx, cfg.SeedFile, db, ids, admins, organizations, activities, logger); err != nil {
			return err
		}
	}

	sched.Start()
	defer sched.Stop()

	protection := middleware.NewSignInProtection(middleware.DefaultSignInProtectionConfig())
	defer protection.Close()

	audit := service.NewAuditService(db, logger)
	if geo != nil {
		audit.SetCountryLookup(geo)
	}

	h := api.NewHandler(api.Deps{
		DB:            db,
		Identity:      ids,
		Activities:    activities,
		Organizations: organizations,
		Audit:         audit,
		Admins:        admins,
		Bucket:        bucket,
		Cache:         appCache,
		Protection:    protection,
		Metrics:       m,
		Logger:        logger,
		Version:       info,
		UploadsDir:    cfg.UploadsDir,
	})

	opts := api.RouterOptions{
		IsDevelopment: cfg.IsDevelopment(),
		RateLimit:     api.DefaultRateLimit,
		RateBurst:     api.DefaultRateBurst,
	}
	// Media is served locally unless the base URL points elsewhere.
	if strings.HasPrefix(cfg.MediaBaseURL, "/") {
		opts.MediaPath = strings.TrimSuffix(cfg.MediaBaseURL, "/")
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           h.Routes(opts),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	srv.RegisterOnShutdown(h.CloseStreams)

	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runSeed(ctx context.Context, path string, db *sql.DB, ids *identity.Service, admins *service.AdminService,
	organizations *service.OrganizationService, activities *service.ActivityService, logger *slog.Logger) error {
	f, err := seed.Load(path)
	if err != nil {
		return fmt.Errorf("loading seed file: %w", err)
	}
	res, err := seed.New(db, ids, admins, organizations, activities, logger).Run(ctx, f)
	if err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	logger.Info("seed applied", "file", path,
		"users", res.Users, "organizations", res.Organizations,
		"activities", res.Activities, "skipped", res.Skipped)
	return nil
}
