package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is the HTTP front of the service. Shutdown drains requests first,
// then closes the metadata store.
type Server struct {
	httpServer      *http.Server
	deps            *Deps
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

func New(d *Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              d.Config.Addr(),
			Handler:           NewRouter(d),
			ReadHeaderTimeout: d.Config.Server.ReadHeaderTimeout,
			IdleTimeout:       120 * time.Second,
		},
		deps:            d,
		logger:          d.Logger.With(slog.String("component", "server")),
		shutdownTimeout: d.Config.Server.ShutdownTimeout,
	}
}

// Run serves until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server started", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case err, ok := <-errCh:
		if ok && err != nil {
			s.closeDeps()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	s.closeDeps()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) closeDeps() {
	if err := s.deps.Close(); err != nil {
		s.logger.Error("close failed", slog.String("error", err.Error()))
	}
}
