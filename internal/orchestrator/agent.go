package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"decksmith/internal/store"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval   time.Duration // Interval between visibility extensions (default: 1m)
	VisibilityExtension time.Duration // How far each heartbeat pushes the deadline (default: 5m)
}

// Agent runs the pull loop that claims task messages and hands each to the
// pipeline. Each delivery drives one task at a time; throughput comes from
// many concurrent deliveries across distinct tasks, never from parallel
// stages of one task.
type Agent struct {
	queue    store.Queue
	pipeline *Pipeline
	config   AgentConfig
	logger   *slog.Logger
	done     chan struct{}
}

func NewAgent(q store.Queue, pipeline *Pipeline, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 1 * time.Minute
	}
	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		queue:    q,
		pipeline: pipeline,
		config:   config,
		logger:   logger.With("agent_id", config.ID),
		done:     make(chan struct{}),
	}
}

// Run starts the pull loop. It blocks until the context is cancelled; on
// shutdown it stops dequeuing and lets in-flight tasks finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "concurrency", a.config.Concurrency)

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Signal channel for adaptive polling: freed slots trigger an immediate
	// re-poll instead of waiting out the backoff timer.
	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}
	triggerPoll()

	currentBackoff := a.config.PollInterval

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown requested, draining in-flight tasks")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			items, err := a.queue.Dequeue(ctx, availableSlots)
			if err != nil {
				a.logger.Error("dequeue failed", "error", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue: back off exponentially, capped.
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval
			a.logger.Debug("claimed deliveries", "count", len(items))

			for _, item := range items {
				sem <- struct{}{}
				wg.Add(1)
				go func(item store.QueueItem) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.processItem(ctx, item)
				}(item)
			}

			if len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel closed once the agent has fully drained.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processItem drives one claimed delivery through the pipeline under a
// heartbeat that keeps the message invisible to other workers.
func (a *Agent) processItem(ctx context.Context, item store.QueueItem) {
	tracer := otel.Tracer("orchestrator-agent")
	spanCtx, span := tracer.Start(ctx, "process_task",
		trace.WithAttributes(
			attribute.String("task.id", item.TaskID.String()),
			attribute.Int("task.deliveries", item.Deliveries),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go a.runHeartbeat(heartbeatCtx, item.TaskID)

	// The task runs to its next persistence point even if shutdown begins
	// mid-stage; redelivery covers whatever is left.
	a.pipeline.Process(spanCtx, item)
}

// runHeartbeat extends the message visibility while a task is being worked,
// so a slow stage is not claimed twice.
func (a *Agent) runHeartbeat(ctx context.Context, taskID uuid.UUID) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visibleAfter := time.Now().Add(a.config.VisibilityExtension)
			if err := a.queue.ExtendVisibility(context.Background(), taskID, visibleAfter); err != nil {
				a.logger.Warn("heartbeat failed", "task_id", taskID, "error", err)
			}
		}
	}
}
