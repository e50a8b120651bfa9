// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/authstate"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/service"
)

func TestSignUp(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", SignUpRequest{
		Email:       "v@example.com",
		Password:    testPassword,
		DisplayName: "Val",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user model.User
	decodeData(t, rec, &user)
	assert.Equal(t, "v@example.com", user.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	tests := []struct {
		name   string
		req    SignUpRequest
		status int
		field  string
	}{
		{"duplicate", SignUpRequest{Email: "V@example.com", Password: testPassword}, http.StatusConflict, ""},
		{"invalid email", SignUpRequest{Email: "nope", Password: testPassword}, http.StatusUnprocessableEntity, "email"},
		{"weak password", SignUpRequest{Email: "w@example.com", Password: "short"}, http.StatusUnprocessableEntity, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				assert.Contains(t, decodeError(t, rec).Details, tt.field)
			}
		})
	}

	entries, err := service.NewAuditService(env.db, nil).Recent(t.Context(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "User signed up", entries[0].Message)
}

func TestSignInSignOut(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.identity.SignUp(t.Context(), "v@example.com", testPassword, "Val")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/signin", "", SignInRequest{Email: "v@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", SignInRequest{Email: "v@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session model.Session
	decodeData(t, rec, &session)
	require.NotEmpty(t, session.AccessToken)
	assert.Equal(t, model.TokenTypeBearer, session.TokenType)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed model.Session
	decodeData(t, rec, &refreshed)
	assert.NotEqual(t, session.ID, refreshed.ID)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signout", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signout", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignIn_Lockout(t *testing.T) {
	env := newTestEnvWithProtection(t, middleware.SignInProtectionConfig{
		IPRateLimit:       1000,
		IPBurst:           1000,
		MaxFailedAttempts: 2,
		LockoutDuration:   time.Minute,
	})
	_, err := env.identity.SignUp(t.Context(), "v@example.com", testPassword, "Val")
	require.NoError(t, err)

	bad := SignInRequest{Email: "v@example.com", Password: "wrong-password"}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/signin", "", bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", bad)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "account_locked", decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", SignInRequest{Email: "V@example.com", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSignIn_IPRateLimit(t *testing.T) {
	env := newTestEnvWithProtection(t, middleware.SignInProtectionConfig{
		IPRateLimit: 0.001,
		IPBurst:     1,
	})

	req := SignInRequest{Email: "nobody@example.com", Password: testPassword}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/signin", "", req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, rec).Code)
}

func TestPasswordRecovery(t *testing.T) {
	env := newTestEnv(t)
	_, oldToken := env.signUpAndIn(t, "v@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/password/reset", "", PasswordResetRequest{
		Email:      "v@example.com",
		RedirectTo: "https://volunteer.example.org/reset",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/auth/password/reset", "", PasswordResetRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/password/reset", "", PasswordResetRequest{
		Email:      "v@example.com",
		RedirectTo: "javascript:alert(1)",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	link, err := url.Parse(env.mailer.link("v@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "volunteer.example.org", link.Host)
	resetToken := link.Query().Get("token")
	require.NotEmpty(t, resetToken)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/password/exchange", "", ExchangeRequest{Token: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/password/exchange", "", ExchangeRequest{Token: resetToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var recovery model.Session
	decodeData(t, rec, &recovery)

	rec = env.do(t, http.MethodPut, "/api/v1/auth/password", recovery.AccessToken, UpdatePasswordRequest{Password: "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/auth/password", recovery.AccessToken, UpdatePasswordRequest{Password: "an0ther-passw0rd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Other sessions are revoked by the password change.
	rec = env.do(t, http.MethodGet, "/api/v1/auth/admin", oldToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/signin", "", SignInRequest{Email: "v@example.com", Password: "an0ther-passw0rd"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIsAdmin(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.signUpAndIn(t, "v@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/admin", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]bool
	decodeData(t, rec, &got)
	assert.False(t, got["is_admin"])

	require.NoError(t, env.admins.Grant(t.Context(), userID))
	rec = env.do(t, http.MethodGet, "/api/v1/auth/admin", token, nil)
	decodeData(t, rec, &got)
	assert.True(t, got["is_admin"])

	rec = env.do(t, http.MethodGet, "/api/v1/auth/admin", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthState(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.signUpAndIn(t, "v@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/state", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st StateResponse
	decodeData(t, rec, &st)
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Equal(t, authstate.StatusAuthenticated, st.Status)
	require.NotNil(t, st.User)
	assert.Equal(t, userID, st.User.ID)
	require.NotNil(t, st.Session)
	assert.Empty(t, st.Session.AccessToken)
	assert.Empty(t, st.Error)
	assert.NotContains(t, rec.Body.String(), token)

	rec = env.do(t, http.MethodGet, "/api/v1/auth/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = StateResponse{}
	decodeData(t, rec, &st)
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, authstate.StatusUnauthenticated, st.Status)
	assert.Nil(t, st.User)
	assert.Nil(t, st.Session)

	// A revoked token reads as signed out rather than as an error.
	require.NoError(t, env.identity.SignOut(t.Context(), token))
	rec = env.do(t, http.MethodGet, "/api/v1/auth/state", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = StateResponse{}
	decodeData(t, rec, &st)
	assert.Equal(t, authstate.StatusUnauthenticated, st.Status)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Contains(t, rec.Body.String(), `voluntr_auth_refreshes_total{outcome="success"} 3`)
}

// readState reads server-sent events until one satisfies match.
func readState(t *testing.T, scanner *bufio.Scanner, match func(StateResponse) bool) StateResponse {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var st StateResponse
		require.NoError(t, json.Unmarshal([]byte(data), &st))
		if match(st) {
			return st
		}
	}
	t.Fatalf("event stream ended: %v", scanner.Err())
	return StateResponse{}
}

func TestAuthEvents(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUpAndIn(t, "v@example.com")

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/auth/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	readState(t, scanner, func(st StateResponse) bool {
		return st.Status == authstate.StatusAuthenticated
	})

	// Signing out elsewhere reaches the stream as a notification. The user
	// and the session are cleared by separate writes.
	require.NoError(t, env.identity.SignOut(context.Background(), token))
	st := readState(t, scanner, func(st StateResponse) bool {
		return st.User == nil && st.Session == nil
	})
	assert.False(t, st.IsAuthenticated)
	assert.Equal(t, authstate.StatusUnauthenticated, st.Status)
}

func TestAuthEvents_ClosedOnServerShutdown(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUpAndIn(t, "v@example.com")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: env.router, ReadHeaderTimeout: 5 * time.Second}
	srv.RegisterOnShutdown(env.handler.CloseStreams)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/v1/auth/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	readState(t, scanner, func(st StateResponse) bool {
		return st.Status == authstate.StatusAuthenticated
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, <-served, http.ErrServerClosed)

	closed := false
	for scanner.Scan() {
		if scanner.Text() == "event: close" {
			closed = true
			break
		}
	}
	assert.True(t, closed, "stream should end with a close event")
}

func TestAuthEvents_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
