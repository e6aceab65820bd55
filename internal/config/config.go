// Package config handles configuration loading for the controller and worker.
// Values come from an optional YAML file with DECKSMITH_* environment
// variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string for the Postgres store.
	DatabaseURL string

	// Store driver: "postgres" (default) or "dynamo".
	StoreDriver string

	// DynamoDB table name, used when StoreDriver is "dynamo".
	DynamoTable string

	// HTTP server port for the controller.
	HTTPPort int

	// Blob driver: "localfs" (default) or "s3".
	BlobDriver string

	// Root directory for the localfs blob store.
	BlobRoot string

	// Bucket name for the s3 blob store.
	BlobBucket string

	// Lifetime of presigned artifact download URLs.
	PresignTTL time.Duration

	// Worker-specific configuration.
	WorkerConcurrency   int
	WorkerPollInterval  time.Duration
	WorkerMaxBackoff    time.Duration
	HeartbeatInterval   time.Duration
	VisibilityExtension time.Duration

	// Maximum attempts per pipeline stage before a task is terminally failed.
	MaxStageAttempts int

	// Bounded pool size for per-task slide image generation.
	ImageConcurrency int

	// Timeout applied to each generation-endpoint and storage call.
	CallTimeout time.Duration

	// Generation endpoint addresses and credentials.
	TextEndpointURL  string
	ImageEndpointURL string
	EndpointAPIKey   string

	// Minimum interval between generation-endpoint requests.
	RateInterval time.Duration

	// OTLP collector address for traces.
	OTELEndpoint string
}

// Load reads configuration from the given file path (optional) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("http.port", 7070)
	v.SetDefault("blob.driver", "localfs")
	v.SetDefault("blob.root", "./data/blobs")
	v.SetDefault("blob.presign_ttl", "15m")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.max_backoff", "30s")
	v.SetDefault("worker.heartbeat_interval", "2m")
	v.SetDefault("worker.visibility_extension", "5m")
	v.SetDefault("pipeline.max_stage_attempts", 3)
	v.SetDefault("pipeline.image_concurrency", 4)
	v.SetDefault("pipeline.call_timeout", "60s")
	v.SetDefault("generation.rate_interval", "500ms")

	v.SetEnvPrefix("DECKSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("decksmith")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:         v.GetString("database.url"),
		StoreDriver:         v.GetString("store.driver"),
		DynamoTable:         v.GetString("store.dynamo_table"),
		HTTPPort:            v.GetInt("http.port"),
		BlobDriver:          v.GetString("blob.driver"),
		BlobRoot:            v.GetString("blob.root"),
		BlobBucket:          v.GetString("blob.bucket"),
		PresignTTL:          v.GetDuration("blob.presign_ttl"),
		WorkerConcurrency:   v.GetInt("worker.concurrency"),
		WorkerPollInterval:  v.GetDuration("worker.poll_interval"),
		WorkerMaxBackoff:    v.GetDuration("worker.max_backoff"),
		HeartbeatInterval:   v.GetDuration("worker.heartbeat_interval"),
		VisibilityExtension: v.GetDuration("worker.visibility_extension"),
		MaxStageAttempts:    v.GetInt("pipeline.max_stage_attempts"),
		ImageConcurrency:    v.GetInt("pipeline.image_concurrency"),
		CallTimeout:         v.GetDuration("pipeline.call_timeout"),
		TextEndpointURL:     v.GetString("generation.text_endpoint"),
		ImageEndpointURL:    v.GetString("generation.image_endpoint"),
		EndpointAPIKey:      v.GetString("generation.api_key"),
		RateInterval:        v.GetDuration("generation.rate_interval"),
		OTELEndpoint:        v.GetString("otel.endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database.url is required for the postgres store")
		}
	case "dynamo":
		if c.DynamoTable == "" {
			return fmt.Errorf("store.dynamo_table is required for the dynamo store")
		}
		if c.DatabaseURL == "" {
			// The queue and image cache stay on Postgres even when task
			// status lives in DynamoDB.
			return fmt.Errorf("database.url is required for the queue")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case "localfs":
		if c.BlobRoot == "" {
			return fmt.Errorf("blob.root is required for the localfs blob store")
		}
	case "s3":
		if c.BlobBucket == "" {
			return fmt.Errorf("blob.bucket is required for the s3 blob store")
		}
	default:
		return fmt.Errorf("unknown blob.driver %q", c.BlobDriver)
	}

	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.MaxStageAttempts <= 0 {
		return fmt.Errorf("pipeline.max_stage_attempts must be positive")
	}
	if c.ImageConcurrency <= 0 {
		return fmt.Errorf("pipeline.image_concurrency must be positive")
	}

	return nil
}
