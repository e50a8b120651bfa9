// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that mirrors warnings and errors
// into the audit log table.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
)

// Attribute keys with a dedicated audit log column.
const (
	keyCategory = "category"
	keyUserID   = "user_id"
	keyIP       = "ip"
)

// AuditLogHandler wraps another handler and also writes records at or above
// its level to the audit log.
type AuditLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
	attrs   []slog.Attr
	group   string
}

// NewAuditLogHandler creates a handler that audits WARN and above.
func NewAuditLogHandler(inner slog.Handler, db store.DBTX) *AuditLogHandler {
	return NewAuditLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewAuditLogHandlerWithLevel creates a handler with a custom audit level.
func NewAuditLogHandlerWithLevel(inner slog.Handler, db store.DBTX, level slog.Level) *AuditLogHandler {
	return &AuditLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		h.writeAuditEntry(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *AuditLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *AuditLogHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

// writeAuditEntry stores r. The write uses a fresh context so entries are
// kept even when the request context was cancelled; failures are dropped.
func (h *AuditLogHandler) writeAuditEntry(r slog.Record) {
	attrs := append([]slog.Attr(nil), h.attrs...)
	var recordAttrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, a)
		return true
	})
	attrs = append(attrs, h.qualify(recordAttrs)...)

	params := store.CreateAuditEntryParams{
		Level:     levelName(r.Level),
		Message:   r.Message,
		CreatedAt: r.Time,
	}
	if params.CreatedAt.IsZero() {
		params.CreatedAt = time.Now()
	}

	meta := make(map[string]any, len(attrs))
	for _, a := range attrs {
		v := a.Value.Resolve()
		switch a.Key {
		case keyCategory:
			params.Category = v.String()
		case keyUserID:
			if v.Kind() == slog.KindInt64 {
				params.UserID = sql.NullInt64{Int64: v.Int64(), Valid: true}
			} else {
				meta[a.Key] = v.String()
			}
		case keyIP:
			params.IPAddress = v.String()
		default:
			meta[a.Key] = v.String()
		}
	}
	if params.Category == "" {
		params.Category = inferCategory(r.Message)
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			params.Metadata = string(b)
		}
	}

	_ = h.queries.CreateAuditEntry(context.Background(), params)
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.AuditLevelError
	case level >= slog.LevelWarn:
		return model.AuditLevelWarning
	default:
		return model.AuditLevelInfo
	}
}

// inferCategory guesses a category from the message when none is attached.
func inferCategory(message string) string {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "auth", "sign", "session", "password", "token"):
		return model.AuditCategoryAuth
	case containsAny(msg, "activit"):
		return model.AuditCategoryActivity
	case containsAny(msg, "organization"):
		return model.AuditCategoryOrganization
	case containsAny(msg, "media", "image", "upload"):
		return model.AuditCategoryMedia
	case containsAny(msg, "cache", "redis"):
		return model.AuditCategoryCache
	default:
		return model.AuditCategorySystem
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
