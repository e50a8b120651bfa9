// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version provides build-time version information.
package version

import "runtime/debug"

// Info contains build-time version information injected via ldflags.
type Info struct {
	Version   string // Semantic version from git tags (e.g., "v1.2.3")
	GitCommit string // Short git commit hash (e.g., "abc1234")
	BuildTime string // Build timestamp in RFC3339 format
}

// String returns the version, or "dev" for builds without one.
func (i Info) String() string {
	if i.Version == "" {
		return "dev"
	}
	return i.Version
}

// WithBuildInfo fills an empty GitCommit from the VCS stamp embedded by the
// Go toolchain.
func (i Info) WithBuildInfo() Info {
	if i.GitCommit != "" {
		return i
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			i.GitCommit = s.Value
			if len(i.GitCommit) > 7 {
				i.GitCommit = i.GitCommit[:7]
			}
		}
	}
	return i
}

// LogAttrs returns the info as slog key-value pairs.
func (i Info) LogAttrs() []any {
	return []any{"version", i.String(), "commit", i.GitCommit, "built", i.BuildTime}
}
