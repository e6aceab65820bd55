// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// SubmitRequest is the request body for submitting a new deck.
type SubmitRequest struct {
	Topic     string `json:"topic"`
	PageCount int    `json:"page_count"`
	Style     string `json:"style,omitempty"`
}

// SubmitResponse is the response body after submitting a deck.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskError is the client-visible failure recorded on a failed task.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskResponse is the response body for status polls.
type TaskResponse struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Topic     string     `json:"topic"`
	PageCount int        `json:"page_count"`
	Style     string     `json:"style,omitempty"`
	Progress  int        `json:"progress"`
	Error     *TaskError `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ArtifactResponse carries the time-limited download URL for a compiled deck.
type ArtifactResponse struct {
	TaskID      string    `json:"task_id"`
	DownloadURL string    `json:"download_url"`
	SizeBytes   int64     `json:"size_bytes"`
	SlideCount  int       `json:"slide_count"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// DeadLetterResponse is one parked message in a DLQ listing.
type DeadLetterResponse struct {
	TaskID     string    `json:"task_id"`
	Reason     string    `json:"reason"`
	Deliveries int       `json:"deliveries"`
	FailedAt   time.Time `json:"failed_at"`
}

// DeadLetterListResponse is the response body for DLQ listings.
type DeadLetterListResponse struct {
	Items []DeadLetterResponse `json:"items"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
