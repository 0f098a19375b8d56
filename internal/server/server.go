// Package server exposes the peer review API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sevigo/peer-warden/internal/config"
)

const shutdownGrace = 30 * time.Second

// Server runs the API until Stop drains in-flight completions.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer serves handler on the configured port. Request contexts derive
// from ctx, and writes may run slightly past the per-request timeout so a
// completion that triggers a report can still answer.
func NewServer(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		},
		logger: logger.With("component", "http"),
	}
}

// Start blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("peer review API listening", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("peer review API stopped: %w", err)
	}
	return nil
}

// Stop refuses new requests and waits up to shutdownGrace for open ones.
func (s *Server) Stop() error {
	s.logger.Info("draining peer review API", "grace", shutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to drain peer review API: %w", err)
	}
	return nil
}
