// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SignInProtection combines per-IP rate limiting of the auth endpoints with
// account lockout after repeated failed sign-ins.
type SignInProtection struct {
	ipLimiters *ipLimiters

	failedAttempts map[string]*signInAttempt
	attemptsMu     sync.RWMutex

	maxFailedAttempts int
	lockoutDuration   time.Duration // doubles with each lockout
	attemptWindow     time.Duration

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// signInAttempt tracks failed sign-ins for an account.
type signInAttempt struct {
	count       int
	firstFailed time.Time
	lockedUntil time.Time
	lockouts    int
}

// SignInProtectionConfig holds configuration for sign-in protection.
type SignInProtectionConfig struct {
	// IPRateLimit is requests per second per IP (default: 0.5 = 1 request per 2 seconds)
	IPRateLimit float64
	// IPBurst is the maximum burst size for IP rate limiting (default: 5)
	IPBurst int
	// MaxFailedAttempts before account lockout (default: 5)
	MaxFailedAttempts int
	// LockoutDuration is base lockout time, doubles with each lockout (default: 15 minutes)
	LockoutDuration time.Duration
	// AttemptWindow is the time window for counting failed attempts (default: 15 minutes)
	AttemptWindow time.Duration
}

// DefaultSignInProtectionConfig returns the defaults.
func DefaultSignInProtectionConfig() SignInProtectionConfig {
	return SignInProtectionConfig{
		IPRateLimit:       0.5,
		IPBurst:           5,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
	}
}

// NewSignInProtection creates a new sign-in protection instance. Call Close
// to stop its cleanup goroutine.
func NewSignInProtection(cfg SignInProtectionConfig) *SignInProtection {
	def := DefaultSignInProtectionConfig()
	if cfg.IPRateLimit <= 0 {
		cfg.IPRateLimit = def.IPRateLimit
	}
	if cfg.IPBurst <= 0 {
		cfg.IPBurst = def.IPBurst
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = def.AttemptWindow
	}

	sp := &SignInProtection{
		ipLimiters:        newIPLimiters(cfg.IPRateLimit, cfg.IPBurst),
		failedAttempts:    make(map[string]*signInAttempt),
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutDuration:   cfg.LockoutDuration,
		attemptWindow:     cfg.AttemptWindow,
		now:               time.Now,
		stopCh:            make(chan struct{}),
	}
	go sp.cleanup()
	return sp
}

// Close stops the cleanup goroutine.
func (sp *SignInProtection) Close() {
	sp.once.Do(func() { close(sp.stopCh) })
}

func accountKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAccountLocked checks if an account is currently locked.
// Returns (locked, remainingTime).
func (sp *SignInProtection) IsAccountLocked(email string) (bool, time.Duration) {
	sp.attemptsMu.RLock()
	attempt, exists := sp.failedAttempts[accountKey(email)]
	sp.attemptsMu.RUnlock()

	if !exists {
		return false, 0
	}
	now := sp.now()
	if now.Before(attempt.lockedUntil) {
		return true, attempt.lockedUntil.Sub(now)
	}
	return false, 0
}

// RecordFailedAttempt records a failed sign-in.
// Returns (locked, lockDuration) if the account is now locked.
func (sp *SignInProtection) RecordFailedAttempt(email string) (bool, time.Duration) {
	key := accountKey(email)

	sp.attemptsMu.Lock()
	defer sp.attemptsMu.Unlock()

	now := sp.now()
	attempt, exists := sp.failedAttempts[key]
	if !exists {
		attempt = &signInAttempt{firstFailed: now}
		sp.failedAttempts[key] = attempt
	}

	if now.Sub(attempt.firstFailed) > sp.attemptWindow {
		attempt.count = 0
		attempt.firstFailed = now
	}
	attempt.count++

	if attempt.count < sp.maxFailedAttempts {
		return false, 0
	}

	lockDuration := sp.lockoutDuration
	for i := 0; i < attempt.lockouts; i++ {
		lockDuration *= 2
		if lockDuration > 24*time.Hour {
			lockDuration = 24 * time.Hour
			break
		}
	}

	attempt.lockedUntil = now.Add(lockDuration)
	attempt.lockouts++
	attempt.count = 0

	slog.Warn("account locked due to failed sign-in attempts",
		"category", "auth",
		"lockouts", attempt.lockouts,
		"duration", lockDuration,
	)
	return true, lockDuration
}

// RecordSuccessfulSignIn clears failed attempt tracking for an account.
func (sp *SignInProtection) RecordSuccessfulSignIn(email string) {
	sp.attemptsMu.Lock()
	defer sp.attemptsMu.Unlock()
	delete(sp.failedAttempts, accountKey(email))
}

// RemainingAttempts returns the number of attempts left before lockout.
func (sp *SignInProtection) RemainingAttempts(email string) int {
	sp.attemptsMu.RLock()
	attempt, exists := sp.failedAttempts[accountKey(email)]
	sp.attemptsMu.RUnlock()

	if !exists || sp.now().Sub(attempt.firstFailed) > sp.attemptWindow {
		return sp.maxFailedAttempts
	}
	return max(sp.maxFailedAttempts-attempt.count, 0)
}

func (sp *SignInProtection) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sp.cleanupStaleEntries()
		case <-sp.stopCh:
			return
		}
	}
}

func (sp *SignInProtection) cleanupStaleEntries() {
	now := sp.now()

	if n := sp.ipLimiters.evictIdle(sp.attemptWindow); n > 0 {
		slog.Debug("evicted idle sign-in rate limiters", "count", n)
	}

	sp.attemptsMu.Lock()
	for key, attempt := range sp.failedAttempts {
		if now.After(attempt.lockedUntil) && now.Sub(attempt.firstFailed) > sp.attemptWindow {
			delete(sp.failedAttempts, key)
		}
	}
	sp.attemptsMu.Unlock()
}

// Middleware rate limits POST requests per client IP.
func (sp *SignInProtection) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			if ok, wait := sp.ipLimiters.take(ip); !ok {
				slog.Warn("auth rate limit exceeded", "ip", ip, "path", r.URL.Path)
				writeRateLimited(w, wait, "Too many requests. Please wait a moment and try again.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
