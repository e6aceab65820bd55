// Package main is the entry point for the decksmith controller.
// The controller owns the front door: submissions, status polls, artifact
// downloads and dead-letter operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"decksmith/internal/blob"
	"decksmith/internal/config"
	"decksmith/internal/controller"
	"decksmith/internal/controller/handlers"
	"decksmith/internal/logger"
	"decksmith/internal/observability"
	"decksmith/internal/store"
	"decksmith/internal/store/dynamo"
	"decksmith/internal/store/postgres"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: decksmith.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(slog.LevelInfo)
	slog.SetDefault(logg)

	ctx := context.Background()

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	if *migrateFlag {
		logg.Info("running database migrations")
		if err := postgres.Migrate(pg.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		logg.Info("migrations completed")
	}

	backend, err := buildBackend(ctx, cfg, pg)
	if err != nil {
		log.Fatalf("Failed to build store: %v", err)
	}

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build blob store: %v", err)
	}

	shutdownTracer, err := observability.InitTracer(ctx, "decksmith-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Observable gauge: hits the DB only when scraped.
	meter := otel.Meter("decksmith-controller")
	_, err = meter.Int64ObservableGauge("decksmith.queue.depth",
		metric.WithDescription("Current number of queued task messages"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			depth, err := backend.Depth(ctx)
			if err != nil {
				logg.Error("failed to read queue depth", "error", err)
				return nil // Don't crash a metrics scrape on DB error
			}
			obs.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		logg.Error("failed to register queue depth metric", "error", err)
	}

	h := handlers.New(backend, blobs, cfg.PresignTTL, logg)
	srv := controller.New(controller.Config{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		SubmitRPS:   5,
		SubmitBurst: 10,
	}, h, metricsHandler, logg)

	go func() {
		logg.Info("controller starting", "port", cfg.HTTPPort)
		if err := srv.Run(ctx); err != nil {
			logg.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logg.Info("server exited properly")
}

// buildBackend selects the task-record store by driver. The queue, cache and
// artifact records always live on Postgres.
func buildBackend(ctx context.Context, cfg *config.Config, pg *postgres.Store) (store.Backend, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return pg, nil
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		tasks := dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		return store.Overlay{Backend: pg, Tasks: tasks}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobDriver {
	case "localfs":
		return blob.NewLocalFS(cfg.BlobRoot)
	case "s3":
		return blob.NewS3(ctx, cfg.BlobBucket)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
