// Package storage defines the blob store contract used to re-host logo images.
package storage

import (
	"context"
	"io"
)

// BlobStore persists an object and returns a URI describing where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
