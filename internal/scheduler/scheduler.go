// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs periodic maintenance jobs for the identity tables and
// the audit log.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
)

// Job names.
const (
	JobPurgeSessions = "purge_sessions"
	JobPurgeResets   = "purge_password_resets"
	JobPurgeAudit    = "purge_audit_log"
	JobReloadGeoIP   = "reload_geoip"
)

// jobTimeout bounds a single job run.
const jobTimeout = 5 * time.Minute

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Options configures the scheduler.
type Options struct {
	// AuditRetention is how long audit log entries are kept.
	AuditRetention time.Duration
	// Schedules overrides the default cron expression of a job by name.
	Schedules map[string]string
	// GeoIP, when set, is reloaded daily so database updates are picked up.
	GeoIP Reloader
}

// Reloader reloads an external data file.
type Reloader interface {
	Reload() error
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
}

type job struct {
	name        string
	description string
	schedule    string
	entryID     cron.EntryID
	run         func(ctx context.Context) (int64, error)
}

// Scheduler purges expired rows on a cron schedule.
type Scheduler struct {
	queries   *store.Queries
	cron      *cron.Cron
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*job
}

// New creates a scheduler and registers the cleanup jobs. It fails when a
// schedule override is not a valid cron expression.
func New(db store.DBTX, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if opts.AuditRetention <= 0 {
		opts.AuditRetention = 90 * 24 * time.Hour
	}
	s := &Scheduler{
		queries:   store.New(db),
		cron:      cron.New(),
		logger:    logger,
		retention: opts.AuditRetention,
		now:       time.Now,
		jobs:      make(map[string]*job),
	}

	defaults := []job{
		{name: JobPurgeSessions, description: "Delete expired and revoked sessions", schedule: "@hourly", run: s.purgeSessions},
		{name: JobPurgeResets, description: "Delete expired and used password reset tokens", schedule: "@hourly", run: s.purgeResets},
		{name: JobPurgeAudit, description: "Delete audit log entries past retention", schedule: "@daily", run: s.purgeAudit},
	}
	if opts.GeoIP != nil {
		geo := opts.GeoIP
		defaults = append(defaults, job{
			name: JobReloadGeoIP, description: "Reload the GeoIP database if it changed", schedule: "@daily",
			run: func(context.Context) (int64, error) { return 0, geo.Reload() },
		})
	}
	for i := range defaults {
		j := defaults[i]
		if override, ok := opts.Schedules[j.name]; ok && override != "" {
			j.schedule = override
		}
		if err := s.register(&j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) register(j *job) error {
	if _, err := cronParser.Parse(j.schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", j.schedule, j.name, err)
	}
	id, err := s.cron.AddFunc(j.schedule, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", j.name, err)
	}
	j.entryID = id
	s.jobs[j.name] = j
	s.logger.Debug("registered scheduled job", "name", j.name, "schedule", j.schedule)
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Jobs returns the registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entryID)
		result = append(result, JobInfo{
			Name:        j.name,
			Description: j.description,
			Schedule:    j.schedule,
			LastRun:     entry.Prev,
			NextRun:     entry.Next,
		})
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result
}

// TriggerNow runs a job immediately and returns the number of deleted rows.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("job not found: %s", name)
	}

	s.logger.Info("manually triggering job", "name", name)
	return j.run(ctx)
}

func (s *Scheduler) execute(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := j.run(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", j.name, "error", err, "category", model.AuditCategorySystem)
		return
	}
	if n > 0 {
		s.logger.Info("scheduled job finished", "job", j.name, "deleted", n)
	}
}

func (s *Scheduler) purgeSessions(ctx context.Context) (int64, error) {
	return s.queries.DeleteExpiredSessions(ctx, s.now())
}

func (s *Scheduler) purgeResets(ctx context.Context) (int64, error) {
	return s.queries.DeleteExpiredPasswordResets(ctx, s.now())
}

func (s *Scheduler) purgeAudit(ctx context.Context) (int64, error) {
	return s.queries.DeleteAuditEntriesBefore(ctx, s.now().Add(-s.retention))
}
