// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package authstate holds the observable authentication state of one caller:
// the current user and session, whether a refresh is in flight, and the
// outcome of the last refresh.
//
// Writes come from three sources: explicit setters, Refresh, and identity
// provider notifications. Every write is serialized through one mutex and
// stamped with an increasing revision. The last write wins per field; a
// refresh that completes after a notification overwrites it, and the other
// way round.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/model"
)

// Provider supplies the current user and session.
// Both methods return nil without error when nobody is signed in.
type Provider interface {
	GetCurrentUser(ctx context.Context) (*model.User, error)
	GetCurrentSession(ctx context.Context) (*model.Session, error)
}

// Status is the lifecycle stage of the store. It stays StatusUninitialized
// until the first Refresh starts, even when setters or notifications have
// already made IsAuthenticated true; IsLoading is only cleared by a refresh.
type Status string

// Store statuses.
const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State is an immutable snapshot of the store.
type State struct {
	User            *model.User
	Session         *model.Session
	IsLoading       bool
	IsAuthenticated bool
	Status          Status
	// LastRefreshErr is the error of the most recent failed refresh. It is
	// reset by a successful one.
	LastRefreshErr error
	Revision       uint64
}

// RefreshError reports which provider call failed during Refresh.
type RefreshError struct {
	Op  string
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("auth refresh: %s: %v", e.Op, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Option configures a Store.
type Option func(*Store)

// WithRefreshObserver registers fn to be called after every refresh with its
// error, nil on success.
func WithRefreshObserver(fn func(err error)) Option {
	return func(s *Store) { s.onRefresh = fn }
}

// WithNotificationObserver registers fn to be called for every applied
// provider notification.
func WithNotificationObserver(fn func(kind identity.EventKind)) Option {
	return func(s *Store) { s.onNotify = fn }
}

// Store is the authentication state container.
type Store struct {
	provider Provider
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	refreshed bool // a refresh has started at least once
	subs      map[int]chan State
	nextSub   int

	onRefresh func(error)
	onNotify  func(identity.EventKind)
}

// New creates a store in its initial state: no user, no session, loading,
// status uninitialized.
func New(provider Provider, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		provider: provider,
		logger:   logger,
		state: State{
			IsLoading: true,
			Status:    StatusUninitialized,
		},
		subs: make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe returns a channel that receives the state after every write.
// Only the latest state is kept for a slow reader. The returned function
// cancels the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// UpdateUser sets the user. IsAuthenticated follows the new value alone.
func (s *Store) UpdateUser(user *model.User) {
	s.commit(func(st *State) {
		st.User = user
		st.IsAuthenticated = user != nil
	})
}

// UpdateSession sets the session. IsAuthenticated follows the new value alone.
func (s *Store) UpdateSession(session *model.Session) {
	s.commit(func(st *State) {
		st.Session = session
		st.IsAuthenticated = session != nil
	})
}

// Clear forgets the user and session.
func (s *Store) Clear() {
	s.commit(func(st *State) {
		st.User = nil
		st.Session = nil
		st.IsAuthenticated = false
	})
}

// Refresh reloads the user and session from the provider and applies both
// in a single write. On failure the user and session are left as they are,
// loading is cleared and the error is returned as a *RefreshError.
func (s *Store) Refresh(ctx context.Context) error {
	s.beginRefresh()

	user, session, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("auth refresh failed", "category", "auth", "error", err)
		s.commit(func(st *State) {
			st.IsLoading = false
			st.LastRefreshErr = err
		})
		s.observeRefresh(err)
		return err
	}

	s.commit(func(st *State) {
		st.User = user
		st.Session = session
		st.IsAuthenticated = user != nil || session != nil
		st.IsLoading = false
		st.LastRefreshErr = nil
	})
	s.observeRefresh(nil)
	return nil
}

func (s *Store) fetch(ctx context.Context) (*model.User, *model.Session, error) {
	if s.provider == nil {
		return nil, nil, &RefreshError{Op: "provider", Err: errors.New("no identity provider configured")}
	}
	user, err := s.provider.GetCurrentUser(ctx)
	if err != nil {
		return nil, nil, &RefreshError{Op: "get current user", Err: err}
	}
	session, err := s.provider.GetCurrentSession(ctx)
	if err != nil {
		return nil, nil, &RefreshError{Op: "get current session", Err: err}
	}
	return user, session, nil
}

// Apply applies one provider notification. SIGNED_IN and USER_UPDATED take
// the user from the embedded session, SIGNED_OUT removes the user, and every
// kind replaces the session.
func (s *Store) Apply(n identity.Notification) {
	switch n.Kind {
	case identity.EventSignedIn, identity.EventUserUpdated:
		var user *model.User
		if n.Session != nil {
			user = n.Session.User
		}
		s.UpdateUser(user)
	case identity.EventSignedOut:
		s.UpdateUser(nil)
	}
	s.UpdateSession(n.Session)

	if s.onNotify != nil {
		s.onNotify(n.Kind)
	}
}

// Listen applies notifications from ch in order until ch is closed or ctx
// is done.
func (s *Store) Listen(ctx context.Context, ch <-chan identity.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			s.Apply(n)
		}
	}
}

func (s *Store) beginRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = true
	s.state.IsLoading = true
	s.publishLocked()
}

// commit applies fn to the state under the lock and publishes the result.
func (s *Store) commit(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.publishLocked()
}

func (s *Store) publishLocked() {
	s.state.Revision++
	s.state.Status = s.status()

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state.clone()
	}
}

func (s *Store) status() Status {
	switch {
	case s.state.IsLoading && !s.refreshed:
		return StatusUninitialized
	case s.state.IsLoading:
		return StatusLoading
	case s.state.IsAuthenticated:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

func (s *Store) observeRefresh(err error) {
	if s.onRefresh != nil {
		s.onRefresh(err)
	}
}

func (st State) clone() State {
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	if st.Session != nil {
		sess := *st.Session
		if sess.User != nil {
			u := *sess.User
			sess.User = &u
		}
		st.Session = &sess
	}
	return st
}
