// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/olegiv/voluntr-go/internal/model"
)

// Client is a per-caller handle on the identity provider. It remembers the
// caller's access token and receives notifications for the signed-in user.
type Client struct {
	svc  *Service
	meta ClientMeta

	mu            sync.Mutex
	token         string
	unsubscribe   func()
	notifications chan Notification
	closed        bool
}

// NewClient creates a client for the caller holding token, which may be empty.
func (s *Service) NewClient(ctx context.Context, token string, meta ClientMeta) *Client {
	c := &Client{
		svc:           s,
		meta:          meta,
		token:         token,
		notifications: make(chan Notification, notificationBuffer),
	}
	if token != "" {
		if session, err := s.Authenticate(ctx, token); err == nil {
			c.attach(session)
		}
	}
	return c
}

// Notifications returns the channel on which state changes for the
// signed-in user are delivered. It is closed by Close.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// AccessToken returns the token the client currently holds.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// GetCurrentSession returns the live session for the held token, or nil when
// the client is signed out or the token is no longer valid.
func (c *Client) GetCurrentSession(ctx context.Context) (*model.Session, error) {
	token := c.AccessToken()
	if token == "" {
		return nil, nil
	}
	session, err := c.svc.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// GetCurrentUser returns the user behind the held token, or nil.
func (c *Client) GetCurrentUser(ctx context.Context) (*model.User, error) {
	session, err := c.GetCurrentSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return session.User, nil
}

// SignIn opens a session and subscribes the client to its user.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.svc.signIn(ctx, email, password, c.meta)
	if err != nil {
		return nil, err
	}
	c.attach(session)
	c.svc.publish(session.User.ID, EventSignedIn, session)
	return session, nil
}

// SignOut revokes the held session.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.AccessToken()
	if token == "" {
		return ErrNoSession
	}
	if err := c.svc.SignOut(ctx, token); err != nil {
		return err
	}
	c.detach()
	return nil
}

// Refresh replaces the held session with a new one.
func (c *Client) Refresh(ctx context.Context) (*model.Session, error) {
	session, err := c.svc.refreshSession(ctx, c.AccessToken(), c.meta)
	if err != nil {
		return nil, err
	}
	c.attach(session)
	c.svc.publish(session.User.ID, EventTokenRefreshed, session)
	return session, nil
}

// ExchangeResetToken signs the client in with a password reset token.
func (c *Client) ExchangeResetToken(ctx context.Context, token string) (*model.Session, error) {
	session, err := c.svc.exchangeResetToken(ctx, token, c.meta)
	if err != nil {
		return nil, err
	}
	c.attach(session)
	c.svc.publish(session.User.ID, EventPasswordRecovery, session)
	return session, nil
}

// ResetPasswordForEmail requests a reset link for email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.svc.ResetPasswordForEmail(ctx, email, redirectTo)
}

// UpdateUser changes the password of the signed-in user.
func (c *Client) UpdateUser(ctx context.Context, password string) (*model.User, error) {
	return c.svc.UpdatePassword(ctx, c.AccessToken(), password)
}

// Close stops notification delivery and closes the notification channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	close(c.notifications)
}

// attach switches the client to session and subscribes it to the session's user.
func (c *Client) attach(session *model.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = session.AccessToken
	if c.closed {
		return
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.unsubscribe = c.svc.hub.Subscribe(session.User.ID, c.notifications)
}

// detach forgets the held token and stops notification delivery.
func (c *Client) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
