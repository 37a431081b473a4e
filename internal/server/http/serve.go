package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"docforge/internal/async"
	"docforge/internal/logging"
)

// ServerConfig configures the listening socket.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer wraps handler in an http.Server.
func NewServer(handler http.Handler, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Serve listens on server.Addr until ctx is done, then shuts down within
// shutdownTimeout.
func Serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger logging.Logger) error {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	return ServeListener(ctx, server, listener, shutdownTimeout, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		logger.Info("Server listening on %s", listener.Addr())
		errCh <- server.Serve(listener)
	})

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := server.Shutdown(shutdownCtx)

		serveErr := <-errCh
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}
		logger.Info("Server stopped")
		return nil
	}
}
