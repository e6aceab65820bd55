package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"decksmith/internal/store"

	"github.com/google/uuid"
)

// attemptColumn maps a pipeline stage to its attempt-counter column.
// Columns are fixed strings, never user input.
func attemptColumn(stage store.TaskStatus) (string, error) {
	switch stage {
	case store.StatusOutline:
		return "outline_attempts", nil
	case store.StatusContent:
		return "content_attempts", nil
	case store.StatusImages:
		return "images_attempts", nil
	case store.StatusCompile:
		return "compile_attempts", nil
	default:
		return "", fmt.Errorf("stage %s has no attempt counter", stage)
	}
}

// CreateTask inserts a new task in PENDING state.
func (s *Store) CreateTask(ctx context.Context, task *store.Task) error {
	query := `
		INSERT INTO tasks (id, status, topic, page_count, style, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.Status, task.Topic, task.PageCount, task.Style, task.Progress)
	if err != nil {
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask returns a task by its ID.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	query := `
		SELECT id, status, topic, page_count, style, progress,
		       outline_ref, content_ref, artifact_ref,
		       error_kind, error_message,
		       outline_attempts, content_attempts, images_attempts, compile_attempts,
		       created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	var t store.Task
	var errKind, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Status, &t.Topic, &t.PageCount, &t.Style, &t.Progress,
		&t.OutlineRef, &t.ContentRef, &t.ArtifactRef,
		&errKind, &errMsg,
		&t.OutlineAttempts, &t.ContentAttempts, &t.ImagesAttempts, &t.CompileAttempts,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	if errKind.Valid {
		t.Error = &store.TaskError{Kind: errKind.String, Message: errMsg.String}
	}

	return &t, nil
}

// AdvanceStatus transitions a task with an optimistic-concurrency guard on
// the expected previous status. A stale duplicate delivery affects zero rows
// and surfaces as ErrStaleStatus instead of regressing progress.
func (s *Store) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to store.TaskStatus, update store.TaskUpdate) error {
	query := `
		UPDATE tasks
		SET status = $1,
		    progress = $2,
		    outline_ref = COALESCE($3, outline_ref),
		    content_ref = COALESCE($4, content_ref),
		    artifact_ref = COALESCE($5, artifact_ref),
		    updated_at = NOW()
		WHERE id = $6 AND status = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		to, to.Progress(), update.OutlineRef, update.ContentRef, update.ArtifactRef, id, from)
	if err != nil {
		return fmt.Errorf("failed to advance task %s to %s: %w", id, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrStaleStatus
	}
	return nil
}

// IncrementAttempt bumps the attempt counter for the given stage.
func (s *Store) IncrementAttempt(ctx context.Context, id uuid.UUID, stage store.TaskStatus) (int, error) {
	col, err := attemptColumn(stage)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET %s = %s + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, col, col, col)

	var count int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment %s attempts for task %s: %w", stage, id, err)
	}
	return count, nil
}

// MarkFailed terminally fails a task unless it already reached a terminal
// state. Terminal statuses are immutable.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, taskErr *store.TaskError) error {
	query := `
		UPDATE tasks
		SET status = $1, error_kind = $2, error_message = $3, updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($5, $6)
	`
	res, err := s.db.ExecContext(ctx, query,
		store.StatusFailed, taskErr.Kind, taskErr.Message, id,
		store.StatusCompleted, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrStaleStatus
	}
	return nil
}
