package postgres

import (
	"context"
	"fmt"
	"time"

	"decksmith/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// VisibilityTimeout is how long a claimed message stays hidden before it is
// considered abandoned and redelivered.
const VisibilityTimeout = 5 * time.Minute

// Enqueue adds a task message to the queue.
func (s *Store) Enqueue(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	if visibleAfter.IsZero() {
		visibleAfter = time.Now()
	}

	query := `
		INSERT INTO task_queue (task_id, visible_after)
		VALUES ($1, $2)
	`
	if _, err := s.db.ExecContext(ctx, query, taskID, visibleAfter); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskID, err)
	}
	return nil
}

// Dequeue claims up to 'limit' visible messages atomically using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never claim the
// same delivery. Each claim hides the message for the visibility timeout and
// bumps its delivery counter.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]store.QueueItem, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, task_id, deliveries
		FROM task_queue
		WHERE visible_after <= NOW()
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`

	rows, err := tx.QueryContext(ctx, selectQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue query failed: %w", err)
	}
	defer rows.Close()

	var items []store.QueueItem
	var queueIDs []int64

	for rows.Next() {
		var queueID int64
		var item store.QueueItem
		if err := rows.Scan(&queueID, &item.TaskID, &item.Deliveries); err != nil {
			return nil, fmt.Errorf("dequeue scan failed: %w", err)
		}
		item.Deliveries++ // reflect the claim we are about to record
		items = append(items, item)
		queueIDs = append(queueIDs, queueID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dequeue rows error: %w", err)
	}

	if len(items) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'),
		    deliveries = deliveries + 1
		WHERE id = ANY($2)
	`, VisibilityTimeout.Seconds(), pq.Array(queueIDs))
	if err != nil {
		return nil, fmt.Errorf("visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return items, nil
}

// Ack removes a message once its task reached a terminal state.
func (s *Store) Ack(ctx context.Context, taskID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM task_queue WHERE task_id = $1", taskID)
	if err != nil {
		return fmt.Errorf("failed to ack task %s: %w", taskID, err)
	}
	return nil
}

// Release makes a claimed message visible again after delay, so queue
// redelivery retries the stage.
func (s *Store) Release(ctx context.Context, taskID uuid.UUID, delay time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second')
		WHERE task_id = $2
	`, delay.Seconds(), taskID)
	if err != nil {
		return fmt.Errorf("failed to release task %s: %w", taskID, err)
	}
	return nil
}

// ExtendVisibility pushes back the redelivery deadline (heartbeat).
func (s *Store) ExtendVisibility(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = $1
		WHERE task_id = $2
	`, visibleAfter, taskID)
	return err
}

// Deadletter parks a poison message so it stops redelivering.
func (s *Store) Deadletter(ctx context.Context, taskID uuid.UUID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dead_letters (task_id, reason, deliveries, failed_at)
		SELECT task_id, $1, deliveries, NOW()
		FROM task_queue
		WHERE task_id = $2
	`, reason, taskID)
	if err != nil {
		return fmt.Errorf("failed to deadletter task %s: %w", taskID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_queue WHERE task_id = $1", taskID); err != nil {
		return fmt.Errorf("failed to remove deadlettered task %s from queue: %w", taskID, err)
	}

	return tx.Commit()
}

// ListDeadletters pages through parked messages, newest first.
func (s *Store) ListDeadletters(ctx context.Context, limit, offset int) ([]store.DeadLetter, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, reason, deliveries, failed_at
		FROM dead_letters
		ORDER BY failed_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []store.DeadLetter
	for rows.Next() {
		var dl store.DeadLetter
		if err := rows.Scan(&dl.TaskID, &dl.Reason, &dl.Deliveries, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("dead letter scan failed: %w", err)
		}
		letters = append(letters, dl)
	}

	return letters, rows.Err()
}

// RetryDeadletter re-enqueues a parked message.
func (s *Store) RetryDeadletter(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM dead_letters WHERE task_id = $1", taskID)
	if err != nil {
		return fmt.Errorf("failed to remove dead letter for task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_queue (task_id, visible_after)
		VALUES ($1, NOW())
	`, taskID)
	if err != nil {
		return fmt.Errorf("failed to re-enqueue task %s: %w", taskID, err)
	}

	return tx.Commit()
}

// Depth returns the number of queued messages.
func (s *Store) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_queue").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return count, nil
}
