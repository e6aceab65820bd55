// Package orchestrator drives tasks through the generation pipeline. It owns
// the task state machine and is the only writer of task records.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"decksmith/internal/blob"
	"decksmith/internal/compiler"
	"decksmith/internal/generate"
	"decksmith/internal/observability"
	"decksmith/internal/store"
	"decksmith/internal/taskerr"

	"github.com/google/uuid"
)

// maxDeliveries caps redelivery of a single message independent of stage
// attempt accounting, catching poison messages whose handler dies before it
// can record an attempt.
const maxDeliveries = 10

// Pipeline executes the stages of a claimed task and persists transitions
// through conditional writes.
type Pipeline struct {
	tasks       store.TaskStore
	queue       store.Queue
	blobs       blob.Store
	content     *generate.ContentGenerator
	images      *generate.ImageService
	compiler    *compiler.Compiler
	maxAttempts int
	metrics     *observability.PipelineMetrics
	logger      *slog.Logger
}

// PipelineConfig wires a Pipeline. Metrics may be nil.
type PipelineConfig struct {
	Tasks       store.TaskStore
	Queue       store.Queue
	Blobs       blob.Store
	Content     *generate.ContentGenerator
	Images      *generate.ImageService
	Compiler    *compiler.Compiler
	MaxAttempts int
	Metrics     *observability.PipelineMetrics
	Logger      *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		tasks:       cfg.Tasks,
		queue:       cfg.Queue,
		blobs:       cfg.Blobs,
		content:     cfg.Content,
		images:      cfg.Images,
		compiler:    cfg.Compiler,
		maxAttempts: cfg.MaxAttempts,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Process handles one claimed delivery, driving the task as far as it can go
// in this invocation. Duplicate deliveries are harmless: stages already
// passed are skipped, and every transition is guarded by the previously
// observed status so a stale worker can never regress progress.
func (p *Pipeline) Process(ctx context.Context, item store.QueueItem) {
	log := p.logger.With("task_id", item.TaskID, "deliveries", item.Deliveries)

	task, err := p.tasks.GetTask(ctx, item.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("queued task record missing, dropping message")
			if err := p.queue.Ack(ctx, item.TaskID); err != nil {
				log.Error("failed to drop orphan message", "error", err)
			}
			return
		}
		log.Error("failed to load task, leaving for redelivery", "error", err)
		p.release(ctx, item.TaskID, item.Deliveries, log)
		return
	}

	if task.Status.Terminal() {
		// Duplicate delivery of an already-finished task.
		if err := p.queue.Ack(ctx, item.TaskID); err != nil {
			log.Error("failed to ack finished task", "error", err)
		}
		return
	}

	if item.Deliveries > maxDeliveries {
		log.Error("delivery ceiling exceeded, parking message")
		p.failTask(ctx, task, taskerr.New(taskerr.KindRetryableUpstream,
			"task redelivered too many times"), log)
		return
	}

	for !task.Status.Terminal() {
		stage := task.Status
		started := time.Now()
		err := p.runStage(ctx, task)
		p.metrics.RecordStage(ctx, string(stage), time.Since(started), err)

		if err == nil {
			continue
		}
		if errors.Is(err, store.ErrStaleStatus) {
			// Another worker advanced the task; re-read and let the skip
			// rule decide what is left to do.
			fresh, gerr := p.tasks.GetTask(ctx, task.ID)
			if gerr != nil {
				log.Error("failed to re-read task after stale write", "error", gerr)
				p.release(ctx, task.ID, item.Deliveries, log)
				return
			}
			if fresh.Status.Rank() <= task.Status.Rank() && !fresh.Status.Terminal() {
				// Not actually advanced; avoid a hot loop.
				p.release(ctx, task.ID, item.Deliveries, log)
				return
			}
			task = fresh
			continue
		}

		p.handleStageFailure(ctx, task, stage, err, log)
		return
	}

	if err := p.queue.Ack(ctx, task.ID); err != nil {
		log.Error("failed to ack terminal task", "error", err)
	}
	log.Info("task reached terminal state", "status", task.Status)
}

// runStage executes the stage named by the task's current status, advancing
// the record on success and mutating task in place to match.
func (p *Pipeline) runStage(ctx context.Context, task *store.Task) error {
	switch task.Status {
	case store.StatusPending:
		return p.advance(ctx, task, store.StatusOutline, store.TaskUpdate{})
	case store.StatusOutline:
		return p.runOutline(ctx, task)
	case store.StatusContent:
		return p.runContent(ctx, task)
	case store.StatusImages:
		return p.runImages(ctx, task)
	case store.StatusCompile:
		return p.runCompile(ctx, task)
	default:
		return fmt.Errorf("no stage for status %s", task.Status)
	}
}

func (p *Pipeline) runOutline(ctx context.Context, task *store.Task) error {
	outline, err := p.content.GenerateOutline(ctx, task.Topic, task.PageCount, task.Style)
	if err != nil {
		return err
	}

	ref, err := p.putJSON(ctx, outlineKey(task.ID), outline)
	if err != nil {
		return err
	}
	return p.advance(ctx, task, store.StatusContent, store.TaskUpdate{OutlineRef: &ref})
}

func (p *Pipeline) runContent(ctx context.Context, task *store.Task) error {
	var outline store.Outline
	if err := p.getJSON(ctx, task.OutlineRef, &outline); err != nil {
		return err
	}

	deck := &store.DeckContent{}
	for _, stub := range outline.Slides {
		slide, err := p.content.GenerateSlideContent(ctx, stub, task.Topic, task.Style)
		if err != nil {
			return err
		}
		deck.Slides = append(deck.Slides, *slide)
	}

	ref, err := p.putJSON(ctx, contentKey(task.ID), deck)
	if err != nil {
		return err
	}
	return p.advance(ctx, task, store.StatusImages, store.TaskUpdate{ContentRef: &ref})
}

func (p *Pipeline) runImages(ctx context.Context, task *store.Task) error {
	var deck store.DeckContent
	if err := p.getJSON(ctx, task.ContentRef, &deck); err != nil {
		return err
	}

	if err := p.images.ResolveImages(ctx, &deck, task.Style); err != nil {
		return err
	}

	// Rewriting the same key is idempotent under redelivery; cached image
	// refs make the second pass cheap.
	ref, err := p.putJSON(ctx, contentKey(task.ID), deck)
	if err != nil {
		return err
	}
	return p.advance(ctx, task, store.StatusCompile, store.TaskUpdate{ContentRef: &ref})
}

func (p *Pipeline) runCompile(ctx context.Context, task *store.Task) error {
	artifact, err := p.compiler.Compile(ctx, task)
	if err != nil {
		return err
	}
	return p.advance(ctx, task, store.StatusCompleted, store.TaskUpdate{ArtifactRef: &artifact.BlobRef})
}

// advance applies the conditional transition and, on success, updates the
// in-memory task to match what was persisted.
func (p *Pipeline) advance(ctx context.Context, task *store.Task, to store.TaskStatus, update store.TaskUpdate) error {
	if err := p.tasks.AdvanceStatus(ctx, task.ID, task.Status, to, update); err != nil {
		return err
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
	return nil
}

// handleStageFailure applies the per-stage retry accounting. Recoverable
// failures leave the task in place for redelivery; ceiling-exhausted and
// permanent-class failures terminally fail the task and park the message so
// it never loops.
func (p *Pipeline) handleStageFailure(ctx context.Context, task *store.Task, stage store.TaskStatus, stageErr error, log *slog.Logger) {
	attempts, err := p.tasks.IncrementAttempt(ctx, task.ID, stage)
	if err != nil {
		log.Error("failed to record stage attempt", "stage", stage, "error", err)
		attempts = task.Attempts(stage) + 1
	}

	kind := taskerr.KindOf(stageErr)
	log = log.With("stage", stage, "attempt", attempts, "kind", string(kind))

	retryable := kind == taskerr.KindRetryableUpstream
	if retryable && attempts < p.maxAttempts {
		log.Warn("stage failed, leaving for redelivery", "error", stageErr)
		p.release(ctx, task.ID, attempts, log)
		return
	}

	if retryable {
		log.Error("stage failed at retry ceiling", "error", stageErr)
	} else {
		log.Error("stage failed permanently", "error", stageErr)
	}
	p.failTask(ctx, task, stageErr, log)
}

// failTask records the structured failure and parks the message in the dead
// letter table. Clients polling the task see the stable kind and a short
// message, never upstream error bodies.
func (p *Pipeline) failTask(ctx context.Context, task *store.Task, cause error, log *slog.Logger) {
	taskErr := &store.TaskError{
		Kind:    string(taskerr.KindOf(cause)),
		Message: taskerr.MessageOf(cause),
	}
	if err := p.tasks.MarkFailed(ctx, task.ID, taskErr); err != nil && !errors.Is(err, store.ErrStaleStatus) {
		log.Error("failed to mark task failed", "error", err)
	}
	if err := p.queue.Deadletter(ctx, task.ID, taskErr.Kind+": "+taskErr.Message); err != nil {
		log.Error("failed to park message", "error", err)
	}
}

// release leaves the message for redelivery with a delay growing in the
// attempt count.
func (p *Pipeline) release(ctx context.Context, taskID uuid.UUID, attempts int, log *slog.Logger) {
	delay := redeliveryDelay(attempts)
	if err := p.queue.Release(ctx, taskID, delay); err != nil {
		log.Error("failed to release message", "error", err)
	}
}

// redeliveryDelay doubles per attempt from 5s, capped at 5 minutes.
func redeliveryDelay(attempts int) time.Duration {
	delay := 5 * time.Second
	for i := 1; i < attempts && delay < 5*time.Minute; i++ {
		delay *= 2
	}
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}

func outlineKey(id uuid.UUID) string {
	return fmt.Sprintf("tasks/%s/outline.json", id)
}

func contentKey(id uuid.UUID) string {
	return fmt.Sprintf("tasks/%s/content.json", id)
}

func (p *Pipeline) putJSON(ctx context.Context, key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", key, err)
	}
	ref, err := p.blobs.Put(ctx, key, data, "application/json")
	if err != nil {
		return "", taskerr.Wrap(taskerr.KindRetryableUpstream, "blob write failed", err)
	}
	return ref, nil
}

func (p *Pipeline) getJSON(ctx context.Context, ref *string, out any) error {
	if ref == nil {
		return taskerr.New(taskerr.KindResolution, "required blob reference is missing")
	}
	loc, err := blob.Resolve(*ref)
	if err != nil {
		return taskerr.Wrap(taskerr.KindResolution, "unresolvable blob reference", err)
	}
	data, err := p.blobs.Get(ctx, loc.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return taskerr.Wrap(taskerr.KindResolution, "blob is missing", err)
		}
		return taskerr.Wrap(taskerr.KindRetryableUpstream, "blob read failed", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return taskerr.Wrap(taskerr.KindResolution, "blob is not valid JSON", err)
	}
	return nil
}
