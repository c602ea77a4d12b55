// Package imagehost re-hosts logo images and returns their public URLs.
package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/hash/sha256"
	"github.com/JakeFAU/product-directory/internal/storage"
)

// DefaultPrefix is the object prefix logos are written under.
const DefaultPrefix = "logos"

const digestLength = 12

var extensions = map[string]string{
	"image/png":                "png",
	"image/jpeg":               "jpg",
	"image/jpg":                "jpg",
	"image/gif":                "gif",
	"image/webp":               "webp",
	"image/svg+xml":            "svg",
	"image/x-icon":             "ico",
	"image/vnd.microsoft.icon": "ico",
	"image/avif":               "avif",
}

// Config controls object naming and the URLs BlobHost hands back.
type Config struct {
	Prefix string
	// PublicBaseURL is joined with the object path; empty returns the store URI as-is.
	PublicBaseURL string
}

// BlobHost implements backfill.ImageHost on top of a storage.BlobStore.
type BlobHost struct {
	store  storage.BlobStore
	hasher *sha256.Hasher
	cfg    Config
}

// NewBlobHost wraps store.
func NewBlobHost(store storage.BlobStore, cfg Config) (*BlobHost, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &BlobHost{store: store, hasher: sha256.New(), cfg: cfg}, nil
}

// Upload writes img under a content-addressed path and returns its URL.
func (h *BlobHost) Upload(ctx context.Context, img backfill.Image, name string) (string, error) {
	if len(img.Body) == 0 {
		return "", errors.New("image body is empty")
	}
	path := h.ObjectPath(img, name)
	uri, err := h.store.PutObject(ctx, path, img.ContentType, bytes.NewReader(img.Body))
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", path, err)
	}
	if h.cfg.PublicBaseURL == "" {
		return uri, nil
	}
	return h.cfg.PublicBaseURL + "/" + path, nil
}

// ObjectPath returns <prefix>/<name>-<digest>.<ext> for img.
func (h *BlobHost) ObjectPath(img backfill.Image, name string) string {
	digest := h.hasher.Short(img.Body, digestLength)
	return fmt.Sprintf("%s/%s-%s.%s", h.cfg.Prefix, slug(name), digest, Extension(img.ContentType))
}

// Extension maps an image content type to a file extension, falling back to "img".
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return "img"
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "logo"
	}
	return out
}
