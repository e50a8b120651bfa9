// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage is the object bucket for organization banner and profile
// images. Objects live on local disk and are described by rows in the media
// table; lookups by identifier are cached.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/voluntr-go/internal/cache"
	"github.com/olegiv/voluntr-go/internal/model"
	"github.com/olegiv/voluntr-go/internal/store"
	"github.com/olegiv/voluntr-go/internal/util"
)

// Errors returned by the bucket.
var (
	ErrNotFound          = errors.New("object not found")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooLarge          = errors.New("upload too large")
	ErrInvalidIdentifier = errors.New("invalid object identifier")
	ErrUnknownKind       = errors.New("unknown media kind")
)

// DefaultMaxUploadSize is the upload limit when none is configured.
const DefaultMaxUploadSize = 10 << 20

const urlCachePrefix = "media:url:"

var segmentRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Options configures a Bucket.
type Options struct {
	// Root is the directory objects are written to.
	Root string
	// BaseURL is the public URL under which Root is served.
	BaseURL       string
	MaxUploadSize int64
	// Cache holds identifier to URL lookups; nil disables caching.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Bucket stores processed images and resolves their public URLs.
type Bucket struct {
	root    string
	baseURL string
	maxSize int64
	queries *store.Queries
	urls    *cache.TypedCache[string]
	logger  *slog.Logger
	now     func() time.Time
}

// NewBucket creates the bucket, making sure its root directory exists.
func NewBucket(db store.DBTX, opts Options, logger *slog.Logger) (*Bucket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}

	b := &Bucket{
		root:    opts.Root,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		maxSize: opts.MaxUploadSize,
		queries: store.New(db),
		logger:  logger,
		now:     time.Now,
	}
	if opts.Cache != nil {
		b.urls = cache.NewTypedCache[string](opts.Cache, opts.CacheTTL)
	}
	return b, nil
}

// Identifier builds the lookup key for id under an optional prefix.
func Identifier(prefix, id string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return id
	}
	return prefix + "/" + id
}

// PutImage processes an uploaded image into the rendition for kind and
// stores it as the newest object for identifier.
func (b *Bucket) PutImage(ctx context.Context, kind, identifier string, uploadedBy int64, r io.Reader) (*model.Media, error) {
	variant, ok := model.ImageVariants[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, b.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > b.maxSize {
		return nil, ErrTooLarge
	}

	img, err := renderImage(data, variant)
	if err != nil {
		return nil, err
	}

	key := path.Join(identifier, uuid.NewString()+".jpg")
	if err := b.writeObject(key, img.data); err != nil {
		return nil, err
	}

	media, err := b.queries.CreateMedia(ctx, model.Media{
		ObjectKey:  key,
		Kind:       kind,
		Identifier: identifier,
		MimeType:   model.MimeTypeJPEG,
		Size:       int64(len(img.data)),
		Width:      img.width,
		Height:     img.height,
		UploadedBy: uploadedBy,
		CreatedAt:  b.now(),
	})
	if err != nil {
		_ = os.Remove(b.objectPath(key))
		return nil, fmt.Errorf("recording media: %w", err)
	}

	if b.urls != nil {
		if err := b.urls.Delete(ctx, urlCachePrefix+identifier); err != nil {
			b.logger.Warn("failed to invalidate media URL", "category", "cache", "identifier", identifier, "error", err)
		}
	}

	b.logger.Info("media stored", "category", "media", "kind", kind, "key", key, "size", media.Size)
	return &media, nil
}

// BannerURL returns the public URL of the newest image stored for id under
// prefix. It returns ErrNotFound when nothing is stored.
func (b *Bucket) BannerURL(ctx context.Context, id, prefix string) (string, error) {
	identifier := Identifier(prefix, id)
	if err := validateIdentifier(identifier); err != nil {
		return "", err
	}

	lookup := func() (*string, error) {
		media, err := b.queries.GetLatestMediaByIdentifier(ctx, identifier)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("loading media: %w", err)
		}
		u := b.URL(media.ObjectKey)
		return &u, nil
	}

	var (
		u   *string
		err error
	)
	if b.urls != nil {
		u, err = b.urls.GetOrSet(ctx, urlCachePrefix+identifier, lookup)
	} else {
		u, err = lookup()
	}
	if err != nil {
		return "", err
	}
	return *u, nil
}

// MaxUploadSize returns the largest accepted upload in bytes.
func (b *Bucket) MaxUploadSize() int64 {
	return b.maxSize
}

// URL returns the public URL of key.
func (b *Bucket) URL(key string) string {
	return b.baseURL + "/" + key
}

// Handler serves stored objects without directory listings. Mount it under
// the path of BaseURL.
func (b *Bucket) Handler() http.Handler {
	files := http.FileServer(http.Dir(b.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (b *Bucket) objectPath(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// writeObject writes data atomically under key.
func (b *Bucket) writeObject(key string, data []byte) error {
	target, err := util.ResolveKey(b.root, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("committing object: %w", err)
	}
	return nil
}

// validateIdentifier accepts slash-separated segments of letters, digits,
// dots, underscores and hyphens.
func validateIdentifier(identifier string) error {
	if identifier == "" || util.HasDotSegment(identifier) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}
	for _, seg := range strings.Split(identifier, "/") {
		if !segmentRegex.MatchString(seg) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
		}
	}
	return nil
}
