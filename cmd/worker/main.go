// Package main is the entry point for the decksmith worker.
// The worker pulls task messages and drives each claimed task through the
// generation pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"golang.org/x/time/rate"

	"decksmith/internal/blob"
	"decksmith/internal/compiler"
	"decksmith/internal/config"
	"decksmith/internal/generate"
	"decksmith/internal/logger"
	"decksmith/internal/observability"
	"decksmith/internal/orchestrator"
	"decksmith/internal/store"
	"decksmith/internal/store/dynamo"
	"decksmith/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: decksmith.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(slog.LevelInfo)
	slog.SetDefault(logg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, "decksmith-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Error("failed to shutdown tracer", "error", err)
		}
	}()

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	var tasks store.TaskStore = pg
	if cfg.StoreDriver == "dynamo" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		tasks = dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	}

	var blobs blob.Store
	switch cfg.BlobDriver {
	case "s3":
		blobs, err = blob.NewS3(ctx, cfg.BlobBucket)
	default:
		blobs, err = blob.NewLocalFS(cfg.BlobRoot)
	}
	if err != nil {
		log.Fatalf("Failed to build blob store: %v", err)
	}

	limiter := rate.NewLimiter(rate.Every(cfg.RateInterval), 1)
	textEndpoint := generate.NewHTTPEndpoint(cfg.TextEndpointURL, cfg.EndpointAPIKey, cfg.CallTimeout)
	imageEndpoint := generate.NewHTTPEndpoint(cfg.ImageEndpointURL, cfg.EndpointAPIKey, cfg.CallTimeout)

	pipelineMetrics, err := observability.NewPipelineMetrics("decksmith-worker")
	if err != nil {
		logg.Error("failed to register pipeline metrics", "error", err)
	}

	content := generate.NewContentGenerator(textEndpoint, limiter, cfg.MaxStageAttempts, logg)
	images := generate.NewImageService(imageEndpoint, blobs, pg, generate.ImageServiceConfig{
		RateLimit:   limiter,
		MaxAttempts: cfg.MaxStageAttempts,
		CallTimeout: cfg.CallTimeout,
		Concurrency: cfg.ImageConcurrency,
		Metrics:     pipelineMetrics,
	}, logg)
	comp := compiler.New(blobs, pg, cfg.BlobBucket, logg)

	pipeline := orchestrator.NewPipeline(orchestrator.PipelineConfig{
		Tasks:       tasks,
		Queue:       pg,
		Blobs:       blobs,
		Content:     content,
		Images:      images,
		Compiler:    comp,
		MaxAttempts: cfg.MaxStageAttempts,
		Metrics:     pipelineMetrics,
		Logger:      logg,
	})

	hostname, _ := os.Hostname()
	agent := orchestrator.NewAgent(pg, pipeline, orchestrator.AgentConfig{
		ID:                  hostname,
		Concurrency:         cfg.WorkerConcurrency,
		PollInterval:        cfg.WorkerPollInterval,
		MaxBackoff:          cfg.WorkerMaxBackoff,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		VisibilityExtension: cfg.VisibilityExtension,
	}, logg)

	logg.Info("worker started", "concurrency", cfg.WorkerConcurrency)
	go agent.Run(ctx)

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Dedicated metrics listener; the worker serves no other HTTP traffic.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		addr := fmt.Sprintf(":%d", cfg.HTTPPort+1)
		logg.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logg.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down worker")
	cancel()

	<-agent.Done()
}
