// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geoip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountry_WithoutDatabase(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	assert.False(t, l.Enabled())

	tests := []struct {
		ip   string
		want string
	}{
		{"127.0.0.1", CountryLocal},
		{"::1", CountryLocal},
		{"10.1.2.3", CountryLocal},
		{"172.20.0.1", CountryLocal},
		{"192.168.1.10", CountryLocal},
		{"fd00::1", CountryLocal},
		{"8.8.8.8", ""},
		{"not-an-ip", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.Country(tt.ip), tt.ip)
	}

	assert.NoError(t, l.Reload())
	assert.NoError(t, l.Close())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.mmdb")
	require.NoError(t, os.WriteFile(bogus, []byte("not a maxmind database"), 0o600))
	_, err = Open(bogus)
	assert.Error(t, err)
}
