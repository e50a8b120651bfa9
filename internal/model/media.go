// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"time"
)

// Media kinds
const (
	MediaKindBanner  = "banner"
	MediaKindProfile = "profile"
)

// Supported MIME types
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
)

// ImageVariantConfig defines the stored rendition of an uploaded image.
type ImageVariantConfig struct {
	Width   int
	Height  int
	Quality int
}

// ImageVariants maps a media kind to its stored rendition.
var ImageVariants = map[string]ImageVariantConfig{
	MediaKindBanner:  {Width: 1600, Height: 400, Quality: 85},
	MediaKindProfile: {Width: 400, Height: 400, Quality: 85},
}

// Media is a stored object in the media bucket.
// Identifier is the lookup key including any prefix, e.g. "banners/green-org".
type Media struct {
	ID         int64     `json:"id"`
	ObjectKey  string    `json:"object_key"`
	Kind       string    `json:"kind"`
	Identifier string    `json:"identifier"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	UploadedBy int64     `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}
