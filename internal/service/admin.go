// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"time"

	"github.com/olegiv/voluntr-go/internal/store"
)

// AdminChecker reports whether a user is an administrator.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AdminService manages administrator grants.
type AdminService struct {
	queries *store.Queries
}

// NewAdminService creates an AdminService.
func NewAdminService(db store.DBTX) *AdminService {
	return &AdminService{queries: store.New(db)}
}

// IsAdmin reports whether userID is an administrator. Anonymous users
// (userID 0) never are.
func (s *AdminService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	return s.queries.IsAdmin(ctx, userID)
}

// Grant makes userID an administrator.
func (s *AdminService) Grant(ctx context.Context, userID int64) error {
	return s.queries.GrantAdmin(ctx, userID, time.Now())
}
