// Package taskerr defines the internal error taxonomy for the pipeline.
// Upstream/vendor errors are mapped into this taxonomy at adapter boundaries
// so that no vendor-specific error type crosses a component boundary.
package taskerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a stable, client-visible error classification.
type Kind string

const (
	// KindValidation marks bad input, rejected at submission before enqueue.
	KindValidation Kind = "ValidationError"

	// KindRetryableUpstream marks throttling/timeouts from a generation
	// endpoint or storage; retried with backoff up to a ceiling.
	KindRetryableUpstream Kind = "RetryableUpstreamError"

	// KindPermanentUpstream marks malformed requests or auth failures;
	// retried at most once before escalating.
	KindPermanentUpstream Kind = "PermanentUpstreamError"

	// KindResolution marks a reference that cannot be located; degrades to
	// a placeholder rather than failing the task.
	KindResolution Kind = "ResolutionError"

	// KindCompilation marks artifact assembly failure; fails the task since
	// there is no meaningful degraded output.
	KindCompilation Kind = "CompilationError"
)

// Error is the structured pipeline error. The Kind field is what polling
// clients see; the wrapped cause never leaves the server.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a taxonomy error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a taxonomy error around an upstream cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validationf creates a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err. Unclassified errors map to
// KindPermanentUpstream: unknown error types get one retry at most, to
// avoid infinite backoff loops.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetryableUpstream
	}
	return KindPermanentUpstream
}

// IsRetryable reports whether err belongs to the throttling/timeout class.
// A stage timeout counts as a failure for retry accounting, not a hang.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryableUpstream
}

// MessageOf returns the client-safe message for err. Internal details and
// upstream vendor bodies are never surfaced.
func MessageOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Message
	}
	return "internal error"
}
