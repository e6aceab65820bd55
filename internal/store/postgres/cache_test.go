package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"decksmith/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestGetCacheEntry_Hit(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	key := "9f8e7d"
	now := time.Now()

	mock.ExpectQuery(`SELECT cache_key, blob_ref`).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"cache_key", "blob_ref", "created_at", "expires_at"}).
			AddRow(key, "cache/9f8e7d.png", now, nil))

	entry, err := s.GetCacheEntry(context.Background(), key)
	if err != nil {
		t.Fatalf("GetCacheEntry failed: %v", err)
	}
	if entry.BlobRef != "cache/9f8e7d.png" {
		t.Errorf("got blob ref %q", entry.BlobRef)
	}
}

func TestGetCacheEntry_Miss(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT cache_key, blob_ref`).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCacheEntry(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPutCacheEntry_ConflictIsSilent(t *testing.T) {
	// Append-only cache: a concurrent duplicate write affects zero rows and
	// is not an error.
	s, mock := newMockStore(t)
	defer s.db.Close()

	entry := &store.CacheEntry{CacheKey: "9f8e7d", BlobRef: "cache/9f8e7d.png"}

	mock.ExpectExec(`INSERT INTO image_cache`).
		WithArgs(entry.CacheKey, entry.BlobRef, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.PutCacheEntry(context.Background(), entry); err != nil {
		t.Fatalf("PutCacheEntry failed: %v", err)
	}
}

func TestPutArtifact_And_GetArtifact(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	taskID := uuid.New()
	artifact := &store.Artifact{
		TaskID:     taskID,
		BlobRef:    "tasks/" + taskID.String() + "/deck.zip",
		SizeBytes:  123456,
		SlideCount: 5,
	}

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs(artifact.TaskID, artifact.BlobRef, artifact.SizeBytes, artifact.SlideCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.PutArtifact(context.Background(), artifact); err != nil {
		t.Fatalf("PutArtifact failed: %v", err)
	}

	mock.ExpectQuery(`SELECT task_id, blob_ref`).
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "blob_ref", "size_bytes", "slide_count", "created_at"}).
			AddRow(taskID, artifact.BlobRef, artifact.SizeBytes, artifact.SlideCount, time.Now()))

	got, err := s.GetArtifact(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if got.SlideCount != 5 {
		t.Errorf("got slide count %d, want 5", got.SlideCount)
	}
}
