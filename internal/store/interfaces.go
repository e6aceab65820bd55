package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleStatus is returned by a conditional write whose expected previous
// status no longer matches. A duplicate delivery observing this must re-read
// instead of regressing progress.
var ErrStaleStatus = errors.New("store: stale status condition")

// TaskUpdate carries the optional fields applied together with a status
// transition.
type TaskUpdate struct {
	OutlineRef  *string
	ContentRef  *string
	ArtifactRef *string
}

// TaskStore handles persistence of task records. Optimistic concurrency
// (expected-previous-status conditions) is the only locking discipline.
type TaskStore interface {
	// CreateTask inserts a new task in PENDING state.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask returns a task by its ID.
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)

	// AdvanceStatus transitions a task from the expected previous status to
	// the next one, applying update atomically. Returns ErrStaleStatus when
	// the stored status is not 'from'.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to TaskStatus, update TaskUpdate) error

	// IncrementAttempt bumps the attempt counter for the given stage and
	// returns the new count.
	IncrementAttempt(ctx context.Context, id uuid.UUID, stage TaskStatus) (int, error)

	// MarkFailed terminally fails a task with a structured error. It is a
	// no-op (ErrStaleStatus) if the task is already terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, taskErr *TaskError) error
}

// CacheStore handles the shared image cache. Entries are append-only;
// concurrent writers of the same key must converge on one entry.
type CacheStore interface {
	// GetCacheEntry returns the entry for key, or ErrNotFound on miss or
	// expiry.
	GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error)

	// PutCacheEntry stores an entry; the first write for a key wins.
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error
}

// ArtifactStore records compiled deck artifacts.
type ArtifactStore interface {
	// PutArtifact records the compiled artifact for a task, exactly once.
	PutArtifact(ctx context.Context, artifact *Artifact) error

	// GetArtifact returns the artifact for a task.
	GetArtifact(ctx context.Context, taskID uuid.UUID) (*Artifact, error)
}

// QueueItem is one claimed delivery from the task queue.
type QueueItem struct {
	TaskID     uuid.UUID
	Deliveries int
}

// DeadLetter is a poison message parked after exhausting redelivery.
type DeadLetter struct {
	TaskID     uuid.UUID
	Reason     string
	Deliveries int
	FailedAt   time.Time
}

// Queue defines the at-least-once task queue feeding the orchestrator.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics so
// concurrent workers never claim the same delivery.
type Queue interface {
	// Enqueue adds a task message, visible from visibleAfter.
	Enqueue(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error

	// Dequeue claims up to limit visible messages, hiding each for the
	// visibility timeout. Returns a nil slice when the queue is empty.
	Dequeue(ctx context.Context, limit int) ([]QueueItem, error)

	// Ack removes a message after the task reached a terminal state.
	Ack(ctx context.Context, taskID uuid.UUID) error

	// Release leaves a message for redelivery after delay.
	Release(ctx context.Context, taskID uuid.UUID, delay time.Duration) error

	// ExtendVisibility pushes back the redelivery deadline (heartbeat).
	ExtendVisibility(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error

	// Deadletter parks a poison message so it stops redelivering.
	Deadletter(ctx context.Context, taskID uuid.UUID, reason string) error

	// ListDeadletters pages through parked messages, newest first.
	ListDeadletters(ctx context.Context, limit, offset int) ([]DeadLetter, error)

	// RetryDeadletter re-enqueues a parked message.
	RetryDeadletter(ctx context.Context, taskID uuid.UUID) error

	// Depth returns the number of queued messages.
	Depth(ctx context.Context) (int64, error)
}
