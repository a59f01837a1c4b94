package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rexpump/mediad/internal/logger"
)

// shutdownTimeout bounds how long graceful shutdown may drain requests.
const shutdownTimeout = 10 * time.Second

// Server wraps one HTTP listener with graceful lifecycle management.
// The service runs two of these: the public listener and the loopback
// admin listener.
type Server struct {
	name         string
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates a named server for the given address and handler.
// The server is created stopped; call Start to begin serving.
func NewServer(name, addr string, handler http.Handler) *Server {
	return &Server{
		name: name,
		server: &http.Server{
			Addr:        addr,
			Handler:     handler,
			IdleTimeout: 120 * time.Second,
		},
	}
}

// Start serves until the context is cancelled or the listener fails.
// Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "name", s.name, "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("http server shutdown requested", "name", s.name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s server shutdown: %w", s.name, err)
			logger.Error("http server shutdown error", "name", s.name, "error", err)
		} else {
			logger.Info("http server stopped", "name", s.name)
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
