// Package middleware contains HTTP middleware for the controller API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"decksmith/internal/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request ID to the context and response. An inbound
// header is trusted if present so IDs survive proxy hops.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
