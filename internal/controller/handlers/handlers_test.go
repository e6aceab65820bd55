package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"decksmith/internal/blob"
	"decksmith/internal/store"
)

// mockStore implements Store with per-call error injection.
type mockStore struct {
	mu sync.Mutex

	tasks     map[uuid.UUID]*store.Task
	artifacts map[uuid.UUID]*store.Artifact
	dead      []store.DeadLetter

	EnqueueCalls []uuid.UUID
	RetryCalls   []uuid.UUID

	createTaskErr error
	enqueueErr    error
	getTaskErr    error
	retryErr      error
	pingErr       error
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:     map[uuid.UUID]*store.Task{},
		artifacts: map[uuid.UUID]*store.Artifact{},
	}
}

func (m *mockStore) CreateTask(ctx context.Context, task *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTaskErr != nil {
		return m.createTaskErr
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getTaskErr != nil {
		return nil, m.getTaskErr
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *mockStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to store.TaskStatus, update store.TaskUpdate) error {
	return nil
}

func (m *mockStore) IncrementAttempt(ctx context.Context, id uuid.UUID, stage store.TaskStatus) (int, error) {
	return 0, nil
}

func (m *mockStore) MarkFailed(ctx context.Context, id uuid.UUID, taskErr *store.TaskError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok && !task.Status.Terminal() {
		task.Status = store.StatusFailed
		task.Error = taskErr
	}
	return nil
}

func (m *mockStore) PutArtifact(ctx context.Context, artifact *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact.TaskID] = artifact
	return nil
}

func (m *mockStore) GetArtifact(ctx context.Context, taskID uuid.UUID) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return artifact, nil
}

func (m *mockStore) Enqueue(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.EnqueueCalls = append(m.EnqueueCalls, taskID)
	return nil
}

func (m *mockStore) Dequeue(ctx context.Context, limit int) ([]store.QueueItem, error) {
	return nil, nil
}

func (m *mockStore) Ack(ctx context.Context, taskID uuid.UUID) error { return nil }

func (m *mockStore) Release(ctx context.Context, taskID uuid.UUID, delay time.Duration) error {
	return nil
}

func (m *mockStore) ExtendVisibility(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	return nil
}

func (m *mockStore) Deadletter(ctx context.Context, taskID uuid.UUID, reason string) error {
	return nil
}

func (m *mockStore) ListDeadletters(ctx context.Context, limit, offset int) ([]store.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dead, nil
}

func (m *mockStore) RetryDeadletter(ctx context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retryErr != nil {
		return m.retryErr
	}
	m.RetryCalls = append(m.RetryCalls, taskID)
	return nil
}

func (m *mockStore) Depth(ctx context.Context) (int64, error) { return 0, nil }

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

// mockBlobStore implements blob.Store for handler tests.
type mockBlobStore struct {
	objects    map[string][]byte
	presignErr error
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{objects: map[string][]byte{}}
}

func (m *mockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.objects[key] = data
	return key, nil
}

func (m *mockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *mockBlobStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return "https://files.example.test/" + key + "?signed", nil
}
