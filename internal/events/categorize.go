// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package events provides filtering and time-based categorization of
// volunteering activities. All functions are pure: they never mutate their
// input and depend only on their arguments.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/voluntr-go/internal/model"
)

// PassedGrace is how long an activity stays active after its nominal date.
const PassedGrace = 24 * time.Hour

// ErrInvalidDate is returned when an activity date cannot be parsed.
var ErrInvalidDate = errors.New("invalid activity date")

// dateLayouts are tried in order. Values without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses a stored activity date.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// CheckPassed reports whether an activity dated raw is over at now.
// Unlike IsPassed it returns ErrInvalidDate for values it cannot parse.
func CheckPassed(raw string, now time.Time) (bool, error) {
	date, err := ParseDate(raw)
	if err != nil {
		return false, err
	}
	return date.Add(PassedGrace).Before(now), nil
}

// IsPassed reports whether an activity dated raw is over at now.
// Unparseable dates are never considered passed.
func IsPassed(raw string, now time.Time) bool {
	passed, err := CheckPassed(raw, now)
	return err == nil && passed
}

// Categorized is a partition of activities into upcoming and finished ones.
type Categorized struct {
	Active []model.Activity `json:"active"`
	Past   []model.Activity `json:"past"`
}

// Total returns the number of activities in both partitions.
func (c Categorized) Total() int {
	return len(c.Active) + len(c.Past)
}

// Categorize splits activities into active and past at now.
// Every activity lands in exactly one partition, and relative order is kept.
func Categorize(activities []model.Activity, now time.Time) Categorized {
	result := Categorized{
		Active: make([]model.Activity, 0, len(activities)),
		Past:   make([]model.Activity, 0),
	}
	for _, a := range activities {
		if IsPassed(a.Date, now) {
			result.Past = append(result.Past, a)
		} else {
			result.Active = append(result.Active, a)
		}
	}
	return result
}
