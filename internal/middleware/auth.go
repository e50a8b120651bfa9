// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/model"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for request authentication data.
const (
	ContextKeySession ContextKey = "session"
	ContextKeyToken   ContextKey = "access_token"
)

// Authenticator resolves an access token to its session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
// ok is false when the header is missing or malformed.
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// RequireAuth creates middleware that requires a valid bearer token and
// stores the session in the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized",
					"Missing or malformed Authorization header. Use: Bearer <access_token>", nil)
				return
			}

			session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrNoSession) {
					WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired access token", nil)
					return
				}
				slog.Error("failed to authenticate request", "error", err)
				WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to authenticate request", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), token, session)))
		})
	}
}

// OptionalAuth creates middleware that adds the session to the context when
// a valid bearer token is present and otherwise serves the request anonymously.
func OptionalAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			session, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), token, session)))
		})
	}
}

func withSession(ctx context.Context, token string, session *model.Session) context.Context {
	ctx = context.WithValue(ctx, ContextKeySession, session)
	return context.WithValue(ctx, ContextKeyToken, token)
}

// GetSession retrieves the authenticated session from the request context.
func GetSession(r *http.Request) *model.Session {
	s, _ := r.Context().Value(ContextKeySession).(*model.Session)
	return s
}

// GetUser retrieves the authenticated user from the request context.
func GetUser(r *http.Request) *model.User {
	if s := GetSession(r); s != nil {
		return s.User
	}
	return nil
}

// GetUserID returns the authenticated user ID, or 0 for anonymous requests.
func GetUserID(r *http.Request) int64 {
	if u := GetUser(r); u != nil {
		return u.ID
	}
	return 0
}

// GetToken returns the access token the request authenticated with.
func GetToken(r *http.Request) string {
	t, _ := r.Context().Value(ContextKeyToken).(string)
	return t
}
