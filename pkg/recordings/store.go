// Package recordings implements recording media storage: an ObjectStore
// abstraction over a local disk or an S3-compatible bucket, and an
// HTTP range-request server for streaming playback, per base spec §4.7 and
// §6/§8 property 7 (partial content).
package recordings

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Stat/OpenRange when the key doesn't exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore persists and serves recording media, independent of backend.
// Every method is keyed by an opaque object key — callers never see local
// paths or bucket names directly.
type ObjectStore interface {
	// Put uploads size bytes from r under key, recording contentType.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Stat reports an object's size and content type without reading it.
	Stat(ctx context.Context, key string) (size int64, contentType string, modTime time.Time, err error)

	// OpenRange opens key for reading starting at offset, for length bytes
	// (length < 0 means "to the end"). Used by the HTTP range server so a
	// client resuming a large recording download never re-fetches bytes it
	// already has.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
