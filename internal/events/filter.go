// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
)

// Filters narrows a list of activities. Empty fields impose no constraint.
//
// Cause, Location and Organization match the whole field exactly, so an
// activity tagged "Education, Environment" does not match Cause "Education".
// Set MatchCauseTags to compare Cause against individual tags instead.
type Filters struct {
	Keyword        string `json:"keyword,omitempty"`
	Cause          string `json:"cause,omitempty"`
	Location       string `json:"location,omitempty"`
	Organization   string `json:"organization,omitempty"`
	MatchCauseTags bool   `json:"match_cause_tags,omitempty"`
}

// Filter returns the activities that satisfy every active predicate in f,
// in their original order. The input slice is not modified.
func Filter(activities []model.Activity, f Filters) []model.Activity {
	keyword := normalizeKeyword(f.Keyword)
	result := make([]model.Activity, 0, len(activities))
	for _, a := range activities {
		if keyword != "" && !matchesKeyword(a, keyword) {
			continue
		}
		if f.Cause != "" && !matchesCause(a, f.Cause, f.MatchCauseTags) {
			continue
		}
		if f.Location != "" && a.Location != f.Location {
			continue
		}
		if f.Organization != "" && a.Organization != f.Organization {
			continue
		}
		result = append(result, a)
	}
	return result
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

func matchesKeyword(a model.Activity, keyword string) bool {
	return strings.Contains(strings.ToLower(a.Title), keyword) ||
		strings.Contains(strings.ToLower(a.Organization), keyword) ||
		strings.Contains(strings.ToLower(a.CauseArea), keyword)
}

func matchesCause(a model.Activity, cause string, byTag bool) bool {
	if !byTag {
		return a.CauseArea == cause
	}
	for _, tag := range a.CauseTags() {
		if tag == cause {
			return true
		}
	}
	return false
}

// View selects which partition of a search result is returned.
type View string

// Supported views.
const (
	ViewAll    View = "all"
	ViewActive View = "active"
	ViewPast   View = "past"
)

// ParseView parses a view name. The empty string means ViewAll.
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewAll:
		return ViewAll, nil
	case ViewActive:
		return ViewActive, nil
	case ViewPast:
		return ViewPast, nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// Search filters activities and then narrows the result to the view at now.
func Search(activities []model.Activity, f Filters, view View, now time.Time) []model.Activity {
	matched := Filter(activities, f)
	switch view {
	case ViewActive:
		return Categorize(matched, now).Active
	case ViewPast:
		return Categorize(matched, now).Past
	default:
		return matched
	}
}
