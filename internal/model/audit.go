// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"database/sql"
	"time"
)

// Audit levels
const (
	AuditLevelInfo    = "info"
	AuditLevelWarning = "warning"
	AuditLevelError   = "error"
)

// Audit categories
const (
	AuditCategoryAuth         = "auth"
	AuditCategoryActivity     = "activity"
	AuditCategoryOrganization = "organization"
	AuditCategoryMedia        = "media"
	AuditCategoryCache        = "cache"
	AuditCategorySystem       = "system"
)

// AuditEntry is a row in the audit log.
type AuditEntry struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	IPAddress string
	Metadata  string // JSON string
	CreatedAt time.Time
}
