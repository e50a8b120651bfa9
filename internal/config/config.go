// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
	"voluntr-development-secret-key!!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"VOLUNTR_DB_PATH" envDefault:"./data/voluntr.db"`
	JWTSecret  string `env:"VOLUNTR_JWT_SECRET,required"`
	ServerHost string `env:"VOLUNTR_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"VOLUNTR_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"VOLUNTR_ENV" envDefault:"development"`
	LogLevel   string `env:"VOLUNTR_LOG_LEVEL" envDefault:"info"`

	// Media storage
	UploadsDir   string `env:"VOLUNTR_UPLOADS_DIR" envDefault:"./uploads"`
	MediaBaseURL string `env:"VOLUNTR_MEDIA_BASE_URL" envDefault:"/media"` // Public prefix for stored objects

	// Cache configuration
	RedisURL     string `env:"VOLUNTR_REDIS_URL"`                          // Optional Redis URL for distributed caching
	CachePrefix  string `env:"VOLUNTR_CACHE_PREFIX" envDefault:"voluntr:"` // Redis key prefix
	CacheTTL     int    `env:"VOLUNTR_CACHE_TTL" envDefault:"300"`         // Default cache TTL in seconds
	CacheMaxSize int    `env:"VOLUNTR_CACHE_MAX_SIZE" envDefault:"10000"`  // Max memory cache entries

	// Authentication
	SessionLifetime time.Duration `env:"VOLUNTR_SESSION_LIFETIME" envDefault:"24h"`
	ResetLifetime   time.Duration `env:"VOLUNTR_RESET_LIFETIME" envDefault:"1h"`
	SiteURL         string        `env:"VOLUNTR_SITE_URL" envDefault:"http://localhost:8080/reset-password"`

	AuditRetentionDays int    `env:"VOLUNTR_AUDIT_RETENTION_DAYS" envDefault:"90"`
	GeoIPDBPath        string `env:"VOLUNTR_GEOIP_DB_PATH"` // Optional GeoLite2-Country database for audit entries
	SeedFile           string `env:"VOLUNTR_SEED_FILE"`     // Optional YAML seed file loaded on startup
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// CacheTTLDuration returns CacheTTL as a duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// AuditRetention returns how long audit log entries are kept.
func (c Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MinJWTSecretLength is the minimum required length for the token signing secret.
// HS256 keys should be at least as long as the hash output.
const MinJWTSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("VOLUNTR_JWT_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinJWTSecretLength, len(cfg.JWTSecret))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.JWTSecret == weak {
			return nil, fmt.Errorf("VOLUNTR_JWT_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(cfg.JWTSecret) {
		slog.Warn("VOLUNTR_JWT_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	if cfg.Env != "development" && cfg.Env != "production" {
		return nil, fmt.Errorf("VOLUNTR_ENV must be development or production, got %q", cfg.Env)
	}
	if cfg.SessionLifetime <= 0 || cfg.ResetLifetime <= 0 {
		return nil, fmt.Errorf("session and reset lifetimes must be positive")
	}
	if cfg.AuditRetentionDays < 1 {
		return nil, fmt.Errorf("VOLUNTR_AUDIT_RETENTION_DAYS must be at least 1, got %d", cfg.AuditRetentionDays)
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
