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

func TestStatusCommand_Completed(t *testing.T) {
	resetViper()

	created := time.Now().Add(-10 * time.Minute)
	updated := time.Now().Add(-9 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/v1/decks/task-123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.TaskResponse{
			ID:        "task-123",
			Status:    "COMPLETED",
			Topic:     "Kubernetes networking",
			PageCount: 8,
			Progress:  100,
			CreatedAt: created,
			UpdatedAt: updated,
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "task-123"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "task-123") {
		t.Errorf("expected task ID in output, got: %s", output)
	}
	if !strings.Contains(output, "COMPLETED") {
		t.Errorf("expected COMPLETED status, got: %s", output)
	}
	if !strings.Contains(output, "Kubernetes networking") {
		t.Errorf("expected topic in output, got: %s", output)
	}
	if !strings.Contains(output, "100%") {
		t.Errorf("expected full progress, got: %s", output)
	}
	if strings.Contains(output, "Error:") {
		t.Errorf("expected no Error line for a completed task, got: %s", output)
	}
}

func TestStatusCommand_FailedTask(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := api.TaskResponse{
			ID:        "task-456",
			Status:    "FAILED",
			Topic:     "Doomed deck",
			PageCount: 5,
			Progress:  30,
			Error: &api.TaskError{
				Kind:    "RetryableUpstreamError",
				Message: "text service unavailable",
			},
			CreatedAt: time.Now().Add(-5 * time.Minute),
			UpdatedAt: time.Now().Add(-4 * time.Minute),
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "task-456"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "FAILED") {
		t.Errorf("expected FAILED status, got: %s", output)
	}
	if !strings.Contains(output, "RetryableUpstreamError") {
		t.Errorf("expected error kind, got: %s", output)
	}
	if !strings.Contains(output, "text service unavailable") {
		t.Errorf("expected error message, got: %s", output)
	}
}

func TestStatusCommand_InFlightStages(t *testing.T) {
	for _, status := range []string{"PENDING", "OUTLINE", "CONTENT", "IMAGES", "COMPILE"} {
		t.Run(status, func(t *testing.T) {
			resetViper()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				resp := api.TaskResponse{
					ID:        "task-789",
					Status:    status,
					Topic:     "Work in progress",
					PageCount: 6,
					CreatedAt: time.Now().Add(-1 * time.Minute),
					UpdatedAt: time.Now(),
				}
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()

			viper.Set("url", server.URL)

			var stdout bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stdout)
			rootCmd.SetArgs([]string{"status", "task-789"})

			err := rootCmd.Execute()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !strings.Contains(stdout.String(), status) {
				t.Errorf("expected %s status, got: %s", status, stdout.String())
			}
		})
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"status", "non-existent"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Request failed with status code: 404") {
		t.Errorf("expected 404 error, got: %s", output)
	}
}

func TestStatusCommand_RequiresTaskIDArgument(t *testing.T) {
	resetViper()

	var stderr bytes.Buffer
	rootCmd.SetOut(&stderr)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"status"}) // No task ID

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error when no task ID provided")
	}
}

func TestColorizeStatus(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"COMPLETED", "COMPLETED"},
		{"FAILED", "FAILED"},
		{"IMAGES", "IMAGES"},
		{"PENDING", "PENDING"},
		{"UNKNOWN", "UNKNOWN"},
	}

	for _, tt := range tests {
		result := colorizeStatus(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("colorizeStatus(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"COMPLETED", "✓"},
		{"FAILED", "✗"},
		{"OUTLINE", "⏳"},
		{"CONTENT", "⏳"},
		{"IMAGES", "⏳"},
		{"COMPILE", "⏳"},
		{"PENDING", "◯"},
		{"UNKNOWN", "•"},
	}

	for _, tt := range tests {
		result := statusIcon(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("statusIcon(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct      int
		contains string
	}{
		{0, "0%"},
		{55, "55%"},
		{100, "100%"},
		{150, "100%"},
		{-5, "0%"},
	}

	for _, tt := range tests {
		result := progressBar(tt.pct)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("progressBar(%d) should contain %s, got: %s", tt.pct, tt.contains, result)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m 5s"},
		{125 * time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		offset   time.Duration
		contains string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2 days"},
	}

	for _, tt := range tests {
		testTime := time.Now().Add(-tt.offset)
		result := relativeTime(testTime)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("relativeTime(%v ago) should contain %s, got: %s", tt.offset, tt.contains, result)
		}
	}
}
