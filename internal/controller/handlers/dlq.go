package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"decksmith/internal/store"
	"decksmith/pkg/api"
)

// ListDeadletters handles GET /v1/dlq.
func (h *Handlers) ListDeadletters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.httpError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.httpError(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		offset = n
	}

	letters, err := h.store.ListDeadletters(r.Context(), limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list dead letters", http.StatusInternalServerError)
		return
	}

	resp := api.DeadLetterListResponse{Items: []api.DeadLetterResponse{}}
	for _, dl := range letters {
		resp.Items = append(resp.Items, api.DeadLetterResponse{
			TaskID:     dl.TaskID.String(),
			Reason:     dl.Reason,
			Deliveries: dl.Deliveries,
			FailedAt:   dl.FailedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// RetryDeadletter handles POST /v1/dlq/{id}/retry.
// The parked message is re-enqueued with its delivery count reset. Task
// records stay monotonic: if the task already reached a terminal state the
// redelivered message is dropped on its next claim.
func (h *Handlers) RetryDeadletter(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid task id", http.StatusBadRequest)
		return
	}

	if err := h.store.RetryDeadletter(r.Context(), taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Dead letter not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to retry dead letter", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}
