package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// PipelineMetrics holds instruments shared by orchestrator workers.
type PipelineMetrics struct {
	StageDuration metric.Float64Histogram
	StageFailures metric.Int64Counter
	CacheHits     metric.Int64Counter
	CacheMisses   metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline-level instruments.
func NewPipelineMetrics(meterName string) (*PipelineMetrics, error) {
	meter := otel.Meter(meterName)

	stageDuration, err := meter.Float64Histogram("decksmith.stage.duration",
		metric.WithDescription("Wall time spent per pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageFailures, err := meter.Int64Counter("decksmith.stage.failures",
		metric.WithDescription("Stage executions that ended in error"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter("decksmith.imagecache.hits",
		metric.WithDescription("Image requests served from the cache"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter("decksmith.imagecache.misses",
		metric.WithDescription("Image requests that reached the generation endpoint"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		StageDuration: stageDuration,
		StageFailures: stageFailures,
		CacheHits:     cacheHits,
		CacheMisses:   cacheMisses,
	}, nil
}

// RecordStage records a single stage execution.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.StageDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.StageFailures.Add(ctx, 1, attrs)
	}
}

// RecordCacheHit counts an image request served without touching the endpoint.
func (m *PipelineMetrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss counts an image request that fell through to generation.
func (m *PipelineMetrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
