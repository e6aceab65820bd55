package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"decksmith/pkg/api"

	"github.com/spf13/viper"
)

func TestArtifactCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/v1/decks/task-123/artifact") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.ArtifactResponse{
			TaskID:      "task-123",
			DownloadURL: "https://decks.example.com/artifacts/task-123.zip?sig=abc",
			SizeBytes:   204800,
			SlideCount:  8,
			ExpiresAt:   time.Now().Add(15 * time.Minute),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"artifact", "task-123"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "task-123") {
		t.Errorf("expected task ID in output, got: %s", output)
	}
	if !strings.Contains(output, "artifacts/task-123.zip") {
		t.Errorf("expected download URL in output, got: %s", output)
	}
	if !strings.Contains(output, "204800") {
		t.Errorf("expected size in output, got: %s", output)
	}
}

func TestArtifactCommand_NotReady(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "Artifact is only available for completed tasks",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"artifact", "task-456"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Artifact unavailable (409)") {
		t.Errorf("expected 409 message, got: %s", output)
	}
	if !strings.Contains(output, "only available for completed tasks") {
		t.Errorf("expected conflict detail, got: %s", output)
	}
}

func TestArtifactCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"artifact", "missing"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "Artifact unavailable (404)") {
		t.Errorf("expected 404 message, got: %s", stdout.String())
	}
}

func TestArtifactCommand_RequiresTaskIDArgument(t *testing.T) {
	resetViper()

	var stderr bytes.Buffer
	rootCmd.SetOut(&stderr)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"artifact"})

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error when no task ID provided")
	}
}
