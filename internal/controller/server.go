// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"decksmith/internal/controller/handlers"
	"decksmith/internal/controller/middleware"
)

// Config holds the server-level knobs.
type Config struct {
	Addr        string
	SubmitRPS   float64
	SubmitBurst int
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(cfg Config, h *handlers.Handlers, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	rateLimit := middleware.RateLimit(cfg.SubmitRPS, cfg.SubmitBurst)

	mux := http.NewServeMux()

	mux.Handle("POST /v1/decks", rateLimit(http.HandlerFunc(h.SubmitDeck)))
	mux.HandleFunc("GET /v1/decks/{id}", h.GetDeck)
	mux.HandleFunc("GET /v1/decks/{id}/artifact", h.GetArtifact)

	// Operational endpoints.
	mux.HandleFunc("GET /v1/dlq", h.ListDeadletters)
	mux.HandleFunc("POST /v1/dlq/{id}/retry", h.RetryDeadletter)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
