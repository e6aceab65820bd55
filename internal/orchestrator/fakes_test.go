package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"decksmith/internal/blob"
	"decksmith/internal/store"
)

// memTaskStore implements store.TaskStore with the same conditional-write
// semantics as the durable backends.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*store.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: map[uuid.UUID]*store.Task{}}
}

func (m *memTaskStore) CreateTask(ctx context.Context, task *store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *memTaskStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to store.TaskStatus, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if task.Status != from {
		return store.ErrStaleStatus
	}
	task.Status = to
	task.Progress = to.Progress()
	if update.OutlineRef != nil {
		task.OutlineRef = update.OutlineRef
	}
	if update.ContentRef != nil {
		task.ContentRef = update.ContentRef
	}
	if update.ArtifactRef != nil {
		task.ArtifactRef = update.ArtifactRef
	}
	task.UpdatedAt = time.Now()
	return nil
}

func (m *memTaskStore) IncrementAttempt(ctx context.Context, id uuid.UUID, stage store.TaskStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	switch stage {
	case store.StatusOutline:
		task.OutlineAttempts++
		return task.OutlineAttempts, nil
	case store.StatusContent:
		task.ContentAttempts++
		return task.ContentAttempts, nil
	case store.StatusImages:
		task.ImagesAttempts++
		return task.ImagesAttempts, nil
	case store.StatusCompile:
		task.CompileAttempts++
		return task.CompileAttempts, nil
	}
	return 0, fmt.Errorf("no attempt counter for %s", stage)
}

func (m *memTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, taskErr *store.TaskError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	if task.Status.Terminal() {
		return store.ErrStaleStatus
	}
	task.Status = store.StatusFailed
	task.Error = taskErr
	return nil
}

type queueMessage struct {
	visibleAfter time.Time
	deliveries   int
}

// memQueue implements store.Queue with visibility semantics in memory.
type memQueue struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*queueMessage
	dead     map[uuid.UUID]store.DeadLetter
	acks     int
}

func newMemQueue() *memQueue {
	return &memQueue{
		messages: map[uuid.UUID]*queueMessage{},
		dead:     map[uuid.UUID]store.DeadLetter{},
	}
}

func (q *memQueue) Enqueue(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages[taskID] = &queueMessage{visibleAfter: visibleAfter}
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context, limit int) ([]store.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var items []store.QueueItem
	for id, msg := range q.messages {
		if len(items) >= limit {
			break
		}
		if msg.visibleAfter.After(now) {
			continue
		}
		msg.visibleAfter = now.Add(5 * time.Minute)
		msg.deliveries++
		items = append(items, store.QueueItem{TaskID: id, Deliveries: msg.deliveries})
	}
	return items, nil
}

func (q *memQueue) Ack(ctx context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.messages, taskID)
	q.acks++
	return nil
}

func (q *memQueue) Release(ctx context.Context, taskID uuid.UUID, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg, ok := q.messages[taskID]; ok {
		msg.visibleAfter = time.Now().Add(delay)
	}
	return nil
}

func (q *memQueue) ExtendVisibility(ctx context.Context, taskID uuid.UUID, visibleAfter time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg, ok := q.messages[taskID]; ok {
		msg.visibleAfter = visibleAfter
	}
	return nil
}

func (q *memQueue) Deadletter(ctx context.Context, taskID uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.messages[taskID]
	if !ok {
		return store.ErrNotFound
	}
	q.dead[taskID] = store.DeadLetter{
		TaskID:     taskID,
		Reason:     reason,
		Deliveries: msg.deliveries,
		FailedAt:   time.Now(),
	}
	delete(q.messages, taskID)
	return nil
}

func (q *memQueue) ListDeadletters(ctx context.Context, limit, offset int) ([]store.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []store.DeadLetter
	for _, dl := range q.dead {
		out = append(out, dl)
	}
	return out, nil
}

func (q *memQueue) RetryDeadletter(ctx context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.dead[taskID]; !ok {
		return store.ErrNotFound
	}
	delete(q.dead, taskID)
	q.messages[taskID] = &queueMessage{visibleAfter: time.Now()}
	return nil
}

func (q *memQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.messages)), nil
}

func (q *memQueue) pending(taskID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.messages[taskID]
	return ok
}

// memBlobStore implements blob.Store in memory.
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}}
}

func (m *memBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *memBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

type memCacheStore struct {
	mu      sync.Mutex
	entries map[string]*store.CacheEntry
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{entries: map[string]*store.CacheEntry{}}
}

func (m *memCacheStore) GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return entry, nil
}

func (m *memCacheStore) PutCacheEntry(ctx context.Context, entry *store.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.CacheKey]; exists {
		return nil
	}
	m.entries[entry.CacheKey] = entry
	return nil
}

type memArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*store.Artifact
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{artifacts: map[uuid.UUID]*store.Artifact{}}
}

func (m *memArtifactStore) PutArtifact(ctx context.Context, artifact *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.artifacts[artifact.TaskID]; exists {
		return nil
	}
	m.artifacts[artifact.TaskID] = artifact
	return nil
}

func (m *memArtifactStore) GetArtifact(ctx context.Context, taskID uuid.UUID) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	artifact, ok := m.artifacts[taskID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return artifact, nil
}

// scriptedTextEndpoint answers outline and slide prompts with well-formed
// JSON, or a fixed error when set.
type scriptedTextEndpoint struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *scriptedTextEndpoint) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return "", err
	}

	if strings.Contains(prompt, "presentation outline") {
		var count int
		fmt.Sscanf(prompt, "Create a %d-slide", &count)
		type stub struct {
			Title string `json:"title"`
			Brief string `json:"brief"`
			Order int    `json:"order"`
		}
		var slides []stub
		for i := 1; i <= count; i++ {
			slides = append(slides, stub{Title: fmt.Sprintf("Section %d", i), Brief: "focus", Order: i})
		}
		out, _ := json.Marshal(map[string]any{"slides": slides})
		return string(out), nil
	}

	out, _ := json.Marshal(map[string]any{
		"title":         "Generated Slide",
		"bullets":       []string{"first point", "second point"},
		"speaker_notes": "some notes",
		"image_prompt":  "an illustration",
	})
	return string(out), nil
}

func (f *scriptedTextEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type scriptedImageEndpoint struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *scriptedImageEndpoint) Generate(ctx context.Context, prompt, style string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("img:" + prompt), nil
}
