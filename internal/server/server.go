// Package server hosts the HTTP API on top of the wired application.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/app"
)

// Server wraps the HTTP server and its routes
type Server struct {
	app    *app.App
	logger arbor.ILogger
	server *http.Server
}

// New creates a server for the given application
func New(application *app.App, logger arbor.ILogger) *Server {
	s := &Server{
		app:    application,
		logger: logger,
	}

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Turns block on OCR and LLM calls
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening and blocks until the server stops
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
