// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// causeSeparator joins multiple cause areas in a single field.
const causeSeparator = ","

// Activity is a volunteering opportunity posted by an organization.
// Date is kept as the raw text it was stored with; it is parsed on demand.
type Activity struct {
	ID              int64     `json:"id"`
	OrganizationID  int64     `json:"organization_id"`
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	Organization    string    `json:"organization"`
	CauseArea       string    `json:"cause_area"`
	Location        string    `json:"location"`
	Date            string    `json:"date"`
	EndDate         string    `json:"end_date,omitempty"`
	StartTime       string    `json:"start_time,omitempty"`
	EndTime         string    `json:"end_time,omitempty"`
	Description     string    `json:"description,omitempty"`
	DescriptionHTML string    `json:"description_html,omitempty"`
	CreatedBy       int64     `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CauseTags splits CauseArea into its individual, trimmed tags.
func (a Activity) CauseTags() []string {
	var tags []string
	for _, part := range strings.Split(a.CauseArea, causeSeparator) {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// JoinCauseTags builds a CauseArea value from individual tags.
func JoinCauseTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			clean = append(clean, tag)
		}
	}
	return strings.Join(clean, causeSeparator+" ")
}
