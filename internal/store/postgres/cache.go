package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"decksmith/internal/store"

	"github.com/google/uuid"
)

// GetCacheEntry returns the cache entry for key. Expired entries report
// ErrNotFound so callers regenerate and supersede them.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error) {
	query := `
		SELECT cache_key, blob_ref, created_at, expires_at
		FROM image_cache
		WHERE cache_key = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var e store.CacheEntry
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&e.CacheKey, &e.BlobRef, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	return &e, nil
}

// PutCacheEntry stores an entry. Entries are append-only: on a concurrent
// duplicate write the first one wins and the conflict is silently dropped,
// so all readers converge on a single entry per key.
func (s *Store) PutCacheEntry(ctx context.Context, entry *store.CacheEntry) error {
	query := `
		INSERT INTO image_cache (cache_key, blob_ref, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (cache_key) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, entry.CacheKey, entry.BlobRef, entry.ExpiresAt); err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", entry.CacheKey, err)
	}
	return nil
}

// PutArtifact records the compiled artifact for a task, exactly once.
func (s *Store) PutArtifact(ctx context.Context, artifact *store.Artifact) error {
	query := `
		INSERT INTO artifacts (task_id, blob_ref, size_bytes, slide_count, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		artifact.TaskID, artifact.BlobRef, artifact.SizeBytes, artifact.SlideCount)
	if err != nil {
		return fmt.Errorf("failed to record artifact for task %s: %w", artifact.TaskID, err)
	}
	return nil
}

// GetArtifact returns the artifact for a task.
func (s *Store) GetArtifact(ctx context.Context, taskID uuid.UUID) (*store.Artifact, error) {
	query := `
		SELECT task_id, blob_ref, size_bytes, slide_count, created_at
		FROM artifacts
		WHERE task_id = $1
	`

	var a store.Artifact
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(
		&a.TaskID, &a.BlobRef, &a.SizeBytes, &a.SlideCount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact for task %s: %w", taskID, err)
	}

	return &a, nil
}
