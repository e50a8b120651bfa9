// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/identity"
	"github.com/olegiv/voluntr-go/internal/metrics"
	"github.com/olegiv/voluntr-go/internal/middleware"
	"github.com/olegiv/voluntr-go/internal/service"
	"github.com/olegiv/voluntr-go/internal/storage"
	"github.com/olegiv/voluntr-go/internal/testutil"
	"github.com/olegiv/voluntr-go/internal/version"
)

const testPassword = "s3cret-passw0rd"

type recordingMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *recordingMailer) link(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[email]
}

type testEnv struct {
	db       *sql.DB
	identity *identity.Service
	admins   *service.AdminService
	metrics  *metrics.Metrics
	mailer   *recordingMailer
	handler  *Handler
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProtection(t, middleware.SignInProtectionConfig{
		IPRateLimit: 1000,
		IPBurst:     1000,
	})
}

func newTestEnvWithProtection(t *testing.T, cfg middleware.SignInProtectionConfig) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	logger := testutil.Logger()

	mem := cache.NewMemoryCache(cache.MemoryOptions{DefaultTTL: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })

	bucket, err := storage.NewBucket(db, storage.Options{
		Root:    t.TempDir(),
		BaseURL: "/media",
		Cache:   mem,
	}, logger)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	idCfg := identity.DefaultConfig([]byte("0123456789abcdef0123456789abcdef"))
	ids := identity.NewService(db, idCfg, mailer, logger)

	protection := middleware.NewSignInProtection(cfg)
	t.Cleanup(protection.Close)

	m := metrics.New()
	admins := service.NewAdminService(db)

	h := NewHandler(Deps{
		DB:            db,
		Identity:      ids,
		Activities:    service.NewActivityService(db, mem, admins, logger),
		Organizations: service.NewOrganizationService(db, bucket, admins, logger),
		Audit:         service.NewAuditService(db, logger),
		Admins:        admins,
		Bucket:        bucket,
		Cache:         mem,
		Protection:    protection,
		Metrics:       m,
		Logger:        logger,
		Version:       version.Info{Version: "v1.2.3", GitCommit: "abc1234"},
		UploadsDir:    t.TempDir(),
	})

	return &testEnv{
		db:       db,
		identity: ids,
		admins:   admins,
		metrics:  m,
		mailer:   mailer,
		handler:  h,
		router:   h.Routes(RouterOptions{IsDevelopment: true, MediaPath: "/media"}),
	}
}

// do sends a request through the router. body is JSON encoded unless it is
// nil or already an io.Reader.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signUpAndIn registers a user and returns its user ID and access token.
func (e *testEnv) signUpAndIn(t *testing.T, email string) (int64, string) {
	t.Helper()
	ctx := context.Background()
	user, err := e.identity.SignUp(ctx, email, testPassword, "Volunteer")
	require.NoError(t, err)
	client := e.identity.NewClient(ctx, "", identity.ClientMeta{})
	defer client.Close()
	session, err := client.SignIn(ctx, email, testPassword)
	require.NoError(t, err)
	return user.ID, session.AccessToken
}

// decodeData unmarshals the data member of a success envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) *Meta {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
		Meta *Meta           `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst), string(env.Data))
	}
	return env.Meta
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}
