// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrUnsafeKey is returned for object keys that would resolve outside the
// storage root.
var ErrUnsafeKey = errors.New("unsafe object key")

// DisplayFilename reduces a client-supplied upload name to a base name that
// is safe to log. Control characters are dropped; an empty result becomes
// "(unnamed)".
func DisplayFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	if base == "." || base == ".." || base == "/" || base == "" {
		return "(unnamed)"
	}
	return base
}

// HasDotSegment reports whether a slash-separated key contains a "." or
// ".." segment, a leading slash or an empty segment.
func HasDotSegment(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return true
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// ResolveKey maps a slash-separated object key to a file path under root.
func ResolveKey(root, key string) (string, error) {
	if HasDotSegment(key) || strings.ContainsRune(key, '\\') {
		return "", ErrUnsafeKey
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(absRoot, filepath.FromSlash(key))
	if !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
		return "", ErrUnsafeKey
	}
	return target, nil
}
