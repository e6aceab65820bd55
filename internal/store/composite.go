package store

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the full persistence surface a single driver can provide.
type Backend interface {
	TaskStore
	CacheStore
	ArtifactStore
	Queue
	Ping(ctx context.Context) error
}

// Overlay routes task-record operations to a dedicated TaskStore while the
// queue, cache and artifacts stay on the base backend. Used when task status
// lives in DynamoDB but everything else remains on Postgres.
type Overlay struct {
	Backend
	Tasks TaskStore
}

func (o Overlay) CreateTask(ctx context.Context, task *Task) error {
	return o.Tasks.CreateTask(ctx, task)
}

func (o Overlay) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return o.Tasks.GetTask(ctx, id)
}

func (o Overlay) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to TaskStatus, update TaskUpdate) error {
	return o.Tasks.AdvanceStatus(ctx, id, from, to, update)
}

func (o Overlay) IncrementAttempt(ctx context.Context, id uuid.UUID, stage TaskStatus) (int, error) {
	return o.Tasks.IncrementAttempt(ctx, id, stage)
}

func (o Overlay) MarkFailed(ctx context.Context, id uuid.UUID, taskErr *TaskError) error {
	return o.Tasks.MarkFailed(ctx, id, taskErr)
}
