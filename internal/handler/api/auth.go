// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/olegiv/voluntr-go/internal/authstate"
	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/model"
)

// sseKeepAlive is the interval of comment frames on the events stream.
const sseKeepAlive = 30 * time.Second

// SignUpRequest is the body of POST /api/v1/auth/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// SignInRequest is the body of POST /api/v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest is the body of POST /api/v1/auth/password/reset.
type PasswordResetRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

// ExchangeRequest is the body of POST /api/v1/auth/password/exchange.
type ExchangeRequest struct {
	Token string `json:"token"`
}

// UpdatePasswordRequest is the body of PUT /api/v1/auth/password.
type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

// StateResponse is the JSON form of an auth store snapshot.
type StateResponse struct {
	User            *model.User      `json:"user"`
	Session         *model.Session   `json:"session"`
	IsLoading       bool             `json:"is_loading"`
	IsAuthenticated bool             `json:"is_authenticated"`
	Status          authstate.Status `json:"status"`
	Error           string           `json:"error,omitempty"`
	Revision        uint64           `json:"revision"`
}

func newStateResponse(st authstate.State) StateResponse {
	resp := StateResponse{
		User:            st.User,
		Session:         st.Session,
		IsLoading:       st.IsLoading,
		IsAuthenticated: st.IsAuthenticated,
		Status:          st.Status,
		Revision:        st.Revision,
	}
	if st.LastRefreshErr != nil {
		resp.Error = st.LastRefreshErr.Error()
	}
	// Tokens are never echoed back from the state endpoints.
	if resp.Session != nil {
		s := *resp.Session
		s.AccessToken = ""
		resp.Session = &s
	}
	return resp
}

// SignUp handles POST /api/v1/auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.identity.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.writeServiceError(w, r, err, "User")
		return
	}

	meta := clientMeta(r)
	h.logAuth(r, model.AuditLevelInfo, "User signed up", &user.ID, meta)
	WriteCreated(w, user)
}

// SignIn handles POST /api/v1/auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	meta := clientMeta(r)

	if h.protection != nil {
		if locked, remaining := h.protection.IsAccountLocked(req.Email); locked {
			h.logAuth(r, model.AuditLevelWarning, "Sign-in attempt on locked account", nil, meta)
			writeLocked(w, remaining)
			return
		}
	}

	client := h.client(r)
	defer client.Close()

	session, err := client.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) && h.protection != nil {
			h.logAuth(r, model.AuditLevelWarning, "Failed sign-in attempt", nil, meta)
			if locked, lockDuration := h.protection.RecordFailedAttempt(req.Email); locked {
				writeLocked(w, lockDuration)
				return
			}
		}
		h.writeServiceError(w, r, err, "User")
		return
	}

	if h.protection != nil {
		h.protection.RecordSuccessfulSignIn(req.Email)
	}
	h.logAuth(r, model.AuditLevelInfo, "User signed in", &session.User.ID, meta)
	WriteSuccess(w, session, nil)
}

// SignOut handles POST /api/v1/auth/signout.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	client := h.client(r)
	defer client.Close()

	if err := client.SignOut(r.Context()); err != nil {
		h.writeServiceError(w, r, err, "Session")
		return
	}
	userID := middleware.GetUserID(r)
	h.logAuth(r, model.AuditLevelInfo, "User signed out", &userID, clientMeta(r))
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	client := h.client(r)
	defer client.Close()

	session, err := client.Refresh(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Session")
		return
	}
	WriteSuccess(w, session, nil)
}

// RequestPasswordReset handles POST /api/v1/auth/password/reset.
// The response does not reveal whether the address is registered.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client := h.client(r)
	defer client.Close()

	if err := client.ResetPasswordForEmail(r.Context(), req.Email, req.RedirectTo); err != nil {
		h.writeServiceError(w, r, err, "User")
		return
	}
	h.logAuth(r, model.AuditLevelInfo, "Password reset requested", nil, clientMeta(r))
	WriteJSON(w, http.StatusAccepted, Response{Data: map[string]string{"status": "sent"}})
}

// ExchangeResetToken handles POST /api/v1/auth/password/exchange.
func (h *Handler) ExchangeResetToken(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	meta := clientMeta(r)
	client := h.client(r)
	defer client.Close()

	session, err := client.ExchangeResetToken(r.Context(), req.Token)
	if err != nil {
		h.writeServiceError(w, r, err, "Reset token")
		return
	}
	h.logAuth(r, model.AuditLevelInfo, "Password recovery session opened", &session.User.ID, meta)
	WriteSuccess(w, session, nil)
}

// UpdatePassword handles PUT /api/v1/auth/password.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client := h.client(r)
	defer client.Close()

	user, err := client.UpdateUser(r.Context(), req.Password)
	if err != nil {
		h.writeServiceError(w, r, err, "User")
		return
	}
	h.logAuth(r, model.AuditLevelInfo, "Password changed", &user.ID, clientMeta(r))
	WriteSuccess(w, user, nil)
}

// IsAdmin handles GET /api/v1/auth/admin.
func (h *Handler) IsAdmin(w http.ResponseWriter, r *http.Request) {
	ok, err := h.identity.IsAdmin(r.Context(), middleware.GetUserID(r))
	if err != nil {
		h.writeServiceError(w, r, err, "User")
		return
	}
	WriteSuccess(w, map[string]bool{"is_admin": ok}, nil)
}

// State handles GET /api/v1/auth/state. It builds an auth store for the
// caller, refreshes it once and returns the snapshot. Anonymous callers get
// an unauthenticated state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	client, store := h.newAuthStore(r)
	defer client.Close()

	if err := store.Refresh(r.Context()); err != nil {
		h.logger.Warn("auth state refresh failed", "category", "auth", "error", err)
	}
	WriteSuccess(w, newStateResponse(store.Snapshot()), nil)
}

// Events handles GET /api/v1/auth/events. It streams every state change of
// the caller's auth store as a server-sent "state" event until the client
// disconnects or CloseStreams is called, which sends a final "close" event.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternalError(w, "Streaming is not supported")
		return
	}

	client, store := h.newAuthStore(r)
	defer client.Close()

	states, cancel := store.Subscribe()
	defer cancel()

	ctx := r.Context()
	go func() {
		_ = store.Listen(ctx, client.Notifications())
	}()
	go func() {
		if err := store.Refresh(ctx); err != nil {
			h.logger.Warn("auth state refresh failed", "category", "auth", "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.streams.Done():
			_, _ = fmt.Fprint(w, "event: close\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := writeEvent(w, "state", st.Revision, newStateResponse(st)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// client returns an identity client holding the request's bearer token, if
// any. The caller must close it.
func (h *Handler) client(r *http.Request) *identity.Client {
	token, _ := middleware.BearerToken(r)
	return h.identity.NewClient(r.Context(), token, clientMeta(r))
}

// newAuthStore creates an identity client for the request and an auth store
// reading from it. The caller must close the client.
func (h *Handler) newAuthStore(r *http.Request) (*identity.Client, *authstate.Store) {
	client := h.client(r)
	store := authstate.New(client, h.logger,
		authstate.WithRefreshObserver(h.metrics.ObserveRefresh),
		authstate.WithNotificationObserver(func(kind identity.EventKind) {
			h.metrics.ObserveNotification(string(kind))
		}),
	)
	return client, store
}

func (h *Handler) logAuth(r *http.Request, level, message string, userID *int64, meta identity.ClientMeta) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogAuthEvent(r.Context(), level, message, userID, meta.IPAddress, meta.UserAgent); err != nil {
		h.logger.Error("failed to write audit entry", "message", message, "error", err)
	}
}

func writeLocked(w http.ResponseWriter, remaining time.Duration) {
	seconds := int(math.Ceil(remaining.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, http.StatusTooManyRequests, "account_locked",
		"Too many failed sign-in attempts. Try again later.",
		map[string]string{"retry_after": strconv.Itoa(seconds)})
}

func writeEvent(w http.ResponseWriter, event string, id uint64, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}
