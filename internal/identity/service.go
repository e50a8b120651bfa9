// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package identity implements the identity provider: accounts, sessions
// carried by signed access tokens, password resets, and notifications about
// authentication state changes.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/voluntr-go/internal/auth"
	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
)

// Errors returned by the identity provider.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidRedirect    = errors.New("invalid redirect URL")
)

// dummyHash is checked when the email is unknown so that sign-in takes the
// same time whether or not the account exists.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c29tZXNhbHRzb21lc2FsdA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Config holds identity provider settings.
type Config struct {
	Secret          []byte
	Issuer          string
	SessionLifetime time.Duration
	ResetLifetime   time.Duration
	// SiteURL is used as the reset link base when no redirect is given.
	SiteURL string
}

// DefaultConfig returns defaults for everything except the secret.
func DefaultConfig(secret []byte) Config {
	return Config{
		Secret:          secret,
		Issuer:          "voluntr",
		SessionLifetime: 24 * time.Hour,
		ResetLifetime:   time.Hour,
		SiteURL:         "http://localhost:8080/reset-password",
	}
}

// ClientMeta describes the caller of an authentication request.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// Service is the local identity provider.
type Service struct {
	db      *sql.DB
	queries *store.Queries
	cfg     Config
	mailer  Mailer
	hub     *Hub
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an identity provider backed by db.
func NewService(db *sql.DB, cfg Config, mailer Mailer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	def := DefaultConfig(cfg.Secret)
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.SessionLifetime <= 0 {
		cfg.SessionLifetime = def.SessionLifetime
	}
	if cfg.ResetLifetime <= 0 {
		cfg.ResetLifetime = def.ResetLifetime
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = def.SiteURL
	}

	return &Service{
		db:      db,
		queries: store.New(db),
		cfg:     cfg,
		mailer:  mailer,
		hub:     NewHub(logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Hub returns the notification hub of the provider.
func (s *Service) Hub() *Hub {
	return s.hub
}

// SignUp registers a new account.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	if _, err := s.queries.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user signed up", "category", "auth", "user_id", user.ID)
	return &user, nil
}

// signIn verifies credentials and opens a session. Callers go through
// Client, which publishes the notification.
func (s *Service) signIn(ctx context.Context, email, password string, meta ClientMeta) (*model.Session, error) {
	email = strings.TrimSpace(email)
	user, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, _ = auth.CheckPassword(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	ok, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("checking password: %w", err)
	}
	if !ok {
		s.logger.Warn("failed sign-in attempt", "category", "auth", "user_id", user.ID, "ip", meta.IPAddress)
		return nil, ErrInvalidCredentials
	}

	if auth.NeedsRehash(user.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			_ = s.queries.UpdateUserPassword(ctx, user.ID, hash, s.now())
		}
	}

	return s.openSession(ctx, user, meta)
}

// openSession persists a new session for user and signs its access token.
func (s *Service) openSession(ctx context.Context, user model.User, meta ClientMeta) (*model.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.SessionLifetime)
	id := uuid.NewString()

	if err := s.queries.CreateSession(ctx, store.CreateSessionParams{
		ID:        id,
		UserID:    user.ID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	token, err := s.issueToken(id, user, now, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.queries.TouchUserSignIn(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to record sign-in time", "category", "auth", "user_id", user.ID, "error", err)
	} else {
		user.LastSignInAt = &now
	}

	return &model.Session{
		ID:          id,
		AccessToken: token,
		TokenType:   model.TokenTypeBearer,
		ExpiresAt:   expiresAt,
		User:        &user,
	}, nil
}

// Authenticate resolves an access token to its live session.
// Returns ErrInvalidToken for malformed or expired tokens and ErrNoSession
// when the session was revoked or the user no longer exists.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil, err
	}
	userID, err := claims.userID()
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	row, err := s.queries.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if row.UserID != userID || !row.Active(s.now()) {
		return nil, ErrNoSession
	}

	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	return &model.Session{
		ID:          row.ID,
		AccessToken: token,
		TokenType:   model.TokenTypeBearer,
		ExpiresAt:   row.ExpiresAt,
		User:        &user,
	}, nil
}

// SignOut revokes the session behind token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.queries.RevokeSession(ctx, session.ID, s.now()); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	s.logger.Info("user signed out", "category", "auth", "user_id", session.User.ID)
	s.publish(session.User.ID, EventSignedOut, nil)
	return nil
}

// refreshSession replaces the session behind token with a new one.
func (s *Service) refreshSession(ctx context.Context, token string, meta ClientMeta) (*model.Session, error) {
	current, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	next, err := s.openSession(ctx, *current.User, meta)
	if err != nil {
		return nil, err
	}
	if err := s.queries.RevokeSession(ctx, current.ID, s.now()); err != nil {
		return nil, fmt.Errorf("revoking previous session: %w", err)
	}
	return next, nil
}

// ResetPasswordForEmail sends a reset link to email. The link points at
// redirectTo (or the configured site URL) with the token in its query.
// Unknown addresses succeed silently.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	target, err := s.resolveRedirect(redirectTo)
	if err != nil {
		return err
	}

	user, err := s.queries.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("password reset for unknown email", "category", "auth")
			return nil
		}
		return fmt.Errorf("loading user: %w", err)
	}

	token, hash, err := newResetToken()
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.queries.CreatePasswordReset(ctx, store.PasswordReset{
		TokenHash:  hash,
		UserID:     user.ID,
		RedirectTo: target.String(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.ResetLifetime),
	}); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	if err := s.mailer.SendPasswordReset(ctx, user.Email, target.String()); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}
	return nil
}

func (s *Service) resolveRedirect(redirectTo string) (*url.URL, error) {
	raw := strings.TrimSpace(redirectTo)
	if raw == "" {
		raw = s.cfg.SiteURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRedirect, redirectTo)
	}
	return u, nil
}

// exchangeResetToken trades a one-time reset token for a session.
func (s *Service) exchangeResetToken(ctx context.Context, token string, meta ClientMeta) (*model.Session, error) {
	reset, err := s.queries.ConsumePasswordReset(ctx, hashResetToken(strings.TrimSpace(token)), s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("consuming reset token: %w", err)
	}
	user, err := s.queries.GetUserByID(ctx, reset.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return s.openSession(ctx, user, meta)
}

// UpdatePassword sets a new password for the user behind token. Every other
// session of the user is revoked.
func (s *Service) UpdatePassword(ctx context.Context, token, password string) (*model.User, error) {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.queries.WithTx(tx)
	if err := q.UpdateUserPassword(ctx, session.User.ID, hash, now); err != nil {
		return nil, fmt.Errorf("updating password: %w", err)
	}
	if err := q.RevokeUserSessions(ctx, session.User.ID, session.ID, now); err != nil {
		return nil, fmt.Errorf("revoking sessions: %w", err)
	}
	user, err := q.GetUserByID(ctx, session.User.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing password update: %w", err)
	}

	session.User = &user
	s.logger.Info("user password updated", "category", "auth", "user_id", user.ID)
	s.publish(user.ID, EventUserUpdated, session)
	return &user, nil
}

// IsAdmin reports whether userID is an administrator.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.queries.IsAdmin(ctx, userID)
}

func (s *Service) publish(userID int64, kind EventKind, session *model.Session) {
	s.hub.Publish(userID, Notification{Kind: kind, Session: session})
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return addr.Address, nil
}
