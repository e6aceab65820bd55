package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"decksmith/internal/generate"
	"decksmith/internal/logger"
	"decksmith/internal/store"
	"decksmith/internal/taskerr"
	"decksmith/pkg/api"
)

const defaultStyle = "professional"

// SubmitDeck handles POST /v1/decks.
// Validation happens here, before anything is persisted: a bad submission is
// rejected immediately and never becomes an enqueued task.
func (h *Handlers) SubmitDeck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := generate.ValidateSubmission(req.Topic, req.PageCount); err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error: taskerr.MessageOf(err),
			Code:  string(taskerr.KindOf(err)),
		})
		return
	}

	style := req.Style
	if style == "" {
		style = defaultStyle
	}

	task := &store.Task{
		ID:        uuid.New(),
		Status:    store.StatusPending,
		Topic:     req.Topic,
		PageCount: req.PageCount,
		Style:     style,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateTask(ctx, task); err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to create task", "error", err)
		h.httpError(w, "Failed to create task", http.StatusInternalServerError)
		return
	}

	if err := h.store.Enqueue(ctx, task.ID, time.Now()); err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to enqueue task",
			"task_id", task.ID, "error", err)
		// No message exists for this record, so no worker will ever pick
		// it up; fail it rather than strand it PENDING.
		if ferr := h.store.MarkFailed(ctx, task.ID, &store.TaskError{
			Kind:    string(taskerr.KindRetryableUpstream),
			Message: "task was never queued",
		}); ferr != nil {
			logger.FromContext(ctx, h.logger).Error("failed to fail unqueued task",
				"task_id", task.ID, "error", ferr)
		}
		h.httpError(w, "Failed to enqueue task", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.SubmitResponse{
		TaskID: task.ID.String(),
		Status: string(task.Status),
	})
}

// GetDeck handles GET /v1/decks/{id}.
func (h *Handlers) GetDeck(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Task not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, taskResponse(task))
}

// GetArtifact handles GET /v1/decks/{id}/artifact.
// A presigned URL is only issued once the task is COMPLETED.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	task, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Task not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	if task.Status != store.StatusCompleted {
		h.httpError(w, "Artifact is only available for completed tasks", http.StatusConflict)
		return
	}

	artifact, err := h.store.GetArtifact(ctx, taskID)
	if err != nil {
		h.httpError(w, "Artifact record not found", http.StatusNotFound)
		return
	}

	url, err := h.blobs.Presign(ctx, artifact.BlobRef, h.presignTTL)
	if err != nil {
		logger.FromContext(ctx, h.logger).Error("failed to presign artifact",
			"task_id", taskID, "error", err)
		h.httpError(w, "Failed to create download URL", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.ArtifactResponse{
		TaskID:      taskID.String(),
		DownloadURL: url,
		SizeBytes:   artifact.SizeBytes,
		SlideCount:  artifact.SlideCount,
		ExpiresAt:   time.Now().Add(h.presignTTL).UTC(),
	})
}
