// Package blob provides durable object storage for generated artifacts and
// cached images. References are opaque keys; only the component that created
// a blob ever deletes it.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists for a key.
var ErrNotFound = errors.New("blob: not found")

// Store is the storage contract shared by all backends.
type Store interface {
	// Put stores data under key and returns the reference to it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited download URL for key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
