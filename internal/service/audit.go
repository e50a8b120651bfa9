// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
)

// AuditService writes and prunes the audit log.
type AuditService struct {
	queries *store.Queries
	logger  *slog.Logger
	now     func() time.Time
	geo     CountryLookup
}

// CountryLookup resolves an IP address to a country code.
type CountryLookup interface {
	Country(ip string) string
}

// NewAuditService creates an AuditService.
func NewAuditService(db store.DBTX, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		queries: store.New(db),
		logger:  logger,
		now:     time.Now,
	}
}

// SetCountryLookup enables country resolution for auth events.
func (s *AuditService) SetCountryLookup(geo CountryLookup) {
	s.geo = geo
}

// LogEvent creates a new audit log entry.
func (s *AuditService) LogEvent(ctx context.Context, level, category, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	var nullUserID sql.NullInt64
	if userID != nil {
		nullUserID = sql.NullInt64{Int64: *userID, Valid: true}
	}

	metadataJSON := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	err := s.queries.CreateAuditEntry(ctx, store.CreateAuditEntryParams{
		Level:     level,
		Category:  category,
		Message:   message,
		UserID:    nullUserID,
		IPAddress: ipAddress,
		Metadata:  metadataJSON,
		CreatedAt: s.now(),
	})
	if err != nil {
		// Not through the audit handler: that would try this insert again.
		s.logger.Debug("failed to write audit entry", "error", err)
		return err
	}
	return nil
}

// LogInfo logs an info-level entry.
func (s *AuditService) LogInfo(ctx context.Context, category, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, model.AuditLevelInfo, category, message, userID, ipAddress, metadata)
}

// LogWarning logs a warning-level entry.
func (s *AuditService) LogWarning(ctx context.Context, category, message string, userID *int64, ipAddress string, metadata map[string]any) error {
	return s.LogEvent(ctx, model.AuditLevelWarning, category, message, userID, ipAddress, metadata)
}

// LogAuthEvent records an authentication event together with the client
// parsed from its user agent.
func (s *AuditService) LogAuthEvent(ctx context.Context, level, message string, userID *int64, ipAddress, userAgent string) error {
	client := ParseUserAgent(userAgent)
	metadata := map[string]any{
		"browser": client.Browser,
		"os":      client.OS,
		"device":  client.DeviceType,
	}
	if s.geo != nil {
		if country := s.geo.Country(ipAddress); country != "" {
			metadata["country"] = country
		}
	}
	return s.LogEvent(ctx, level, model.AuditCategoryAuth, message, userID, ipAddress, metadata)
}

// Recent returns the newest entries.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queries.ListAuditEntries(ctx, limit)
}

// DeleteOlderThan removes entries older than retention.
func (s *AuditService) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.queries.DeleteAuditEntriesBefore(ctx, s.now().Add(-retention))
}
