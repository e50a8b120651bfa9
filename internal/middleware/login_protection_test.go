// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestProtection returns a protection with a fast IP limit and a
// controllable clock.
func newTestProtection(t *testing.T, maxAttempts int, lockout, window time.Duration) (*SignInProtection, *time.Time) {
	t.Helper()
	sp := NewSignInProtection(SignInProtectionConfig{
		IPRateLimit:       10,
		IPBurst:           100,
		MaxFailedAttempts: maxAttempts,
		LockoutDuration:   lockout,
		AttemptWindow:     window,
	})
	t.Cleanup(sp.Close)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sp.now = func() time.Time { return now }
	return sp, &now
}

func TestDefaultSignInProtectionConfig(t *testing.T) {
	cfg := DefaultSignInProtectionConfig()

	if cfg.IPRateLimit != 0.5 {
		t.Errorf("IPRateLimit = %v, want 0.5", cfg.IPRateLimit)
	}
	if cfg.IPBurst != 5 {
		t.Errorf("IPBurst = %d, want 5", cfg.IPBurst)
	}
	if cfg.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts = %d, want 5", cfg.MaxFailedAttempts)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Errorf("LockoutDuration = %v, want 15m", cfg.LockoutDuration)
	}
}

func TestNewSignInProtectionDefaultValues(t *testing.T) {
	sp := NewSignInProtection(SignInProtectionConfig{})
	defer sp.Close()

	if sp.maxFailedAttempts != 5 {
		t.Errorf("maxFailedAttempts = %d, want 5", sp.maxFailedAttempts)
	}
	if sp.lockoutDuration != 15*time.Minute {
		t.Errorf("lockoutDuration = %v, want 15m", sp.lockoutDuration)
	}
	if sp.attemptWindow != 15*time.Minute {
		t.Errorf("attemptWindow = %v, want 15m", sp.attemptWindow)
	}
}

func TestSignInProtectionLockout(t *testing.T) {
	sp, now := newTestProtection(t, 3, time.Minute, time.Hour)
	email := "ada@example.org"

	for i := 1; i < 3; i++ {
		if locked, _ := sp.RecordFailedAttempt(email); locked {
			t.Fatalf("locked after %d attempts", i)
		}
	}
	if got := sp.RemainingAttempts(email); got != 1 {
		t.Errorf("RemainingAttempts() = %d, want 1", got)
	}

	locked, d := sp.RecordFailedAttempt(email)
	if !locked || d != time.Minute {
		t.Fatalf("RecordFailedAttempt() = %v, %v; want true, 1m", locked, d)
	}

	// Lookups are case-insensitive.
	if locked, remaining := sp.IsAccountLocked("ADA@example.org"); !locked || remaining != time.Minute {
		t.Errorf("IsAccountLocked() = %v, %v; want true, 1m", locked, remaining)
	}

	*now = now.Add(2 * time.Minute)
	if locked, _ := sp.IsAccountLocked(email); locked {
		t.Error("account should unlock after the lockout duration")
	}
}

func TestSignInProtectionExponentialBackoff(t *testing.T) {
	sp, now := newTestProtection(t, 1, time.Minute, time.Hour)
	email := "grace@example.org"

	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}
	for i, w := range want {
		locked, d := sp.RecordFailedAttempt(email)
		if !locked || d != w {
			t.Errorf("lockout %d = %v, %v; want true, %v", i+1, locked, d, w)
		}
		*now = now.Add(d + time.Second)
	}
}

func TestSignInProtectionBackoffCap(t *testing.T) {
	sp, _ := newTestProtection(t, 1, 10*time.Hour, time.Hour)
	email := "cap@example.org"

	sp.RecordFailedAttempt(email)
	sp.RecordFailedAttempt(email)
	_, d := sp.RecordFailedAttempt(email)
	if d != 24*time.Hour {
		t.Errorf("lock duration = %v, want 24h cap", d)
	}
}

func TestSignInProtectionAttemptWindowReset(t *testing.T) {
	sp, now := newTestProtection(t, 3, time.Minute, 10*time.Minute)
	email := "window@example.org"

	sp.RecordFailedAttempt(email)
	sp.RecordFailedAttempt(email)

	*now = now.Add(11 * time.Minute)
	if got := sp.RemainingAttempts(email); got != 3 {
		t.Errorf("RemainingAttempts() after window = %d, want 3", got)
	}
	if locked, _ := sp.RecordFailedAttempt(email); locked {
		t.Error("attempt after window should start a new count")
	}
	if got := sp.RemainingAttempts(email); got != 2 {
		t.Errorf("RemainingAttempts() = %d, want 2", got)
	}
}

func TestSignInProtectionSuccessClears(t *testing.T) {
	sp, _ := newTestProtection(t, 3, time.Minute, time.Hour)
	email := "ok@example.org"

	sp.RecordFailedAttempt(email)
	sp.RecordFailedAttempt(email)
	sp.RecordSuccessfulSignIn(email)

	if got := sp.RemainingAttempts(email); got != 3 {
		t.Errorf("RemainingAttempts() = %d, want 3", got)
	}
}

func TestSignInProtectionCleanup(t *testing.T) {
	sp, now := newTestProtection(t, 1, time.Minute, time.Minute)
	sp.RecordFailedAttempt("stale@example.org")
	sp.ipLimiters.take("192.0.2.44")

	*now = now.Add(time.Hour)
	sp.ipLimiters.now = func() time.Time { return time.Now().Add(time.Hour) }
	sp.cleanupStaleEntries()

	if n := sp.ipLimiters.len(); n != 0 {
		t.Errorf("ipLimiters = %d entries, want 0", n)
	}

	sp.attemptsMu.RLock()
	defer sp.attemptsMu.RUnlock()
	if len(sp.failedAttempts) != 0 {
		t.Errorf("failedAttempts = %d entries, want 0", len(sp.failedAttempts))
	}
}

func TestSignInProtectionMiddleware(t *testing.T) {
	sp := NewSignInProtection(SignInProtectionConfig{IPRateLimit: 0.001, IPBurst: 2})
	defer sp.Close()

	handler := sp.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method string) int {
		req := httptest.NewRequest(method, "/api/v1/auth/signin", nil)
		req.RemoteAddr = "192.0.2.10:4711"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send(http.MethodPost); code != http.StatusOK {
		t.Errorf("first POST = %d, want 200", code)
	}
	if code := send(http.MethodPost); code != http.StatusOK {
		t.Errorf("second POST = %d, want 200", code)
	}
	if code := send(http.MethodPost); code != http.StatusTooManyRequests {
		t.Errorf("third POST = %d, want 429", code)
	}
	if code := send(http.MethodGet); code != http.StatusOK {
		t.Errorf("GET = %d, want 200 (not limited)", code)
	}
}
