package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DECKSMITH_DATABASE_URL", "postgres://localhost/decksmith_test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d, want 7070", cfg.HTTPPort)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q, want postgres", cfg.StoreDriver)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.WorkerPollInterval != time.Second {
		t.Errorf("WorkerPollInterval = %v, want 1s", cfg.WorkerPollInterval)
	}
	if cfg.MaxStageAttempts != 3 {
		t.Errorf("MaxStageAttempts = %d, want 3", cfg.MaxStageAttempts)
	}
	if cfg.ImageConcurrency != 4 {
		t.Errorf("ImageConcurrency = %d, want 4", cfg.ImageConcurrency)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error when database.url is missing")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DECKSMITH_DATABASE_URL", "postgres://localhost/decksmith_test")
	t.Setenv("DECKSMITH_WORKER_CONCURRENCY", "8")
	t.Setenv("DECKSMITH_PIPELINE_IMAGE_CONCURRENCY", "6")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.ImageConcurrency != 6 {
		t.Errorf("ImageConcurrency = %d, want 6", cfg.ImageConcurrency)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decksmith.yaml")
	content := []byte(`
database:
  url: postgres://localhost/from_file
http:
  port: 9090
blob:
  driver: s3
  bucket: deck-artifacts
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DatabaseURL != "postgres://localhost/from_file" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.BlobBucket != "deck-artifacts" {
		t.Errorf("BlobBucket = %q, want deck-artifacts", cfg.BlobBucket)
	}
}

func TestLoad_InvalidDrivers(t *testing.T) {
	t.Setenv("DECKSMITH_DATABASE_URL", "postgres://localhost/decksmith_test")
	t.Setenv("DECKSMITH_STORE_DRIVER", "mongo")

	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown store driver")
	}
}

func TestLoad_DynamoRequiresTable(t *testing.T) {
	t.Setenv("DECKSMITH_DATABASE_URL", "postgres://localhost/decksmith_test")
	t.Setenv("DECKSMITH_STORE_DRIVER", "dynamo")

	if _, err := Load(""); err == nil {
		t.Error("expected error when dynamo table is missing")
	}
}
