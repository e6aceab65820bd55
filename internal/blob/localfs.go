package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalFS stores blobs under a root directory. Intended for development and
// tests; production deployments use the s3 store.
type LocalFS struct {
	Root string
}

// NewLocalFS creates the root directory if needed.
func NewLocalFS(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &LocalFS{Root: root}, nil
}

func (l *LocalFS) abs(key string) string {
	return filepath.Join(l.Root, filepath.Clean(key))
}

// Put stores data under key.
func (l *LocalFS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	abs := l.abs(key)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob dir for %s: %w", key, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return filepath.Clean(key), nil
}

// Get returns the bytes stored under key.
func (l *LocalFS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored under key.
func (l *LocalFS) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.abs(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Presign returns a file:// URL. There is no expiry on the local filesystem;
// ttl is accepted for interface parity.
func (l *LocalFS) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	abs, err := filepath.Abs(l.abs(key))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return "file://" + abs, nil
}
