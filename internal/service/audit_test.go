// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/voluntr-go/internal/geoip"
	"github.com/olegiv/voluntr-go/internal/model"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestAuditService_LogAuthEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "v@example.com")

	require.NoError(t, env.audit.LogAuthEvent(ctx, model.AuditLevelInfo, "user signed in", &userID, "10.0.0.1", chromeUA))
	require.NoError(t, env.audit.LogInfo(ctx, model.AuditCategorySystem, "started", nil, "", nil))

	entries, err := env.audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var auth model.AuditEntry
	for _, e := range entries {
		if e.Category == model.AuditCategoryAuth {
			auth = e
		}
	}
	assert.Equal(t, "user signed in", auth.Message)
	assert.True(t, auth.UserID.Valid)
	assert.Equal(t, userID, auth.UserID.Int64)
	assert.Equal(t, "10.0.0.1", auth.IPAddress)

	var meta map[string]string
	require.NoError(t, json.Unmarshal([]byte(auth.Metadata), &meta))
	assert.Equal(t, "Chrome", meta["browser"])
	assert.Equal(t, "Windows", meta["os"])
	assert.Equal(t, "desktop", meta["device"])
}

func TestAuditService_LogAuthEventCountry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lookup, err := geoip.Open("")
	require.NoError(t, err)
	env.audit.SetCountryLookup(lookup)

	require.NoError(t, env.audit.LogAuthEvent(ctx, model.AuditLevelWarning, "failed sign-in", nil, "192.168.1.5", chromeUA))
	require.NoError(t, env.audit.LogAuthEvent(ctx, model.AuditLevelWarning, "failed sign-in", nil, "203.0.113.9", chromeUA))

	entries, err := env.audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	countries := map[string]string{}
	for _, e := range entries {
		var meta map[string]string
		require.NoError(t, json.Unmarshal([]byte(e.Metadata), &meta))
		countries[e.IPAddress] = meta["country"]
	}
	assert.Equal(t, geoip.CountryLocal, countries["192.168.1.5"])
	assert.Empty(t, countries["203.0.113.9"])
}

func TestAuditService_DeleteOlderThan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.audit.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, env.audit.LogWarning(ctx, model.AuditCategorySystem, "old", nil, "", nil))
	env.audit.now = time.Now
	require.NoError(t, env.audit.LogWarning(ctx, model.AuditCategorySystem, "new", nil, "", nil))

	n, err := env.audit.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := env.audit.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Message)
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want ClientInfo
	}{
		{"chrome desktop", chromeUA, ClientInfo{Browser: "Chrome", OS: "Windows", DeviceType: "desktop"}},
		{
			"iphone",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			ClientInfo{Browser: "Safari", OS: "iOS", DeviceType: "mobile"},
		},
		{"empty", "", ClientInfo{Browser: "Unknown", OS: "Unknown", DeviceType: "desktop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUserAgent(tt.ua))
		})
	}
}

func TestAdminService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.createUser(t, "admin@example.com")

	isAdmin, err := env.admins.IsAdmin(ctx, 0)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	isAdmin, err = env.admins.IsAdmin(ctx, userID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, env.admins.Grant(ctx, userID))
	require.NoError(t, env.admins.Grant(ctx, userID))
	isAdmin, err = env.admins.IsAdmin(ctx, userID)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}
