// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"decksmith/internal/blob"
	"decksmith/internal/store"
	"decksmith/pkg/api"
)

// Store combines the persistence interfaces the controller needs.
type Store interface {
	store.TaskStore
	store.ArtifactStore
	store.Queue
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store      Store
	blobs      blob.Store
	presignTTL time.Duration
	logger     *slog.Logger
}

// New creates a new Handlers instance.
func New(s Store, blobs blob.Store, presignTTL time.Duration, logger *slog.Logger) *Handlers {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: s, blobs: blobs, presignTTL: presignTTL, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func taskResponse(task *store.Task) api.TaskResponse {
	resp := api.TaskResponse{
		ID:        task.ID.String(),
		Status:    string(task.Status),
		Topic:     task.Topic,
		PageCount: task.PageCount,
		Style:     task.Style,
		Progress:  task.Status.Progress(),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	if task.Error != nil {
		resp.Error = &api.TaskError{Kind: task.Error.Kind, Message: task.Error.Message}
	}
	return resp
}
