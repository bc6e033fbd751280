package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cvcoach/internal/observability"
)

// Start starts the HTTP server with all configured components and blocks
// until SIGINT or SIGTERM.
func (s *Server) Start() error {
	om := s.Observability
	if om == nil {
		var err error
		om, err = s.initializeObservability()
		if err != nil {
			return err
		}
		s.Observability = om
	}
	defer s.shutdownObservability(om)

	httpServer, err := s.setupHTTPServer(om)
	if err != nil {
		return err
	}

	if err := s.configureTLS(httpServer); err != nil {
		return err
	}

	s.startWatchers()
	s.displayServerInfo()

	return s.startWithGracefulShutdown(httpServer)
}

// initializeObservability sets up observability components
func (s *Server) initializeObservability() (*observability.ObservabilityManager, error) {
	obsConfig := observability.GetObservabilityConfig(s.AppConfig, s.Version)

	om, err := observability.NewObservabilityManager(obsConfig, s.AppConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	return om, nil
}

// shutdownObservability handles observability cleanup
func (s *Server) shutdownObservability(om *observability.ObservabilityManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := om.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer(om *observability.ObservabilityManager) (*http.Server, error) {
	mux := s.setupRoutes(om)
	handler := om.HTTPMiddleware()(mux)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.ReadTimeout,
		WriteTimeout:      s.WriteTimeout,
		IdleTimeout:       s.IdleTimeout,
	}, nil
}

// configureTLS sets the TLS config for "server" mode
func (s *Server) configureTLS(httpServer *http.Server) error {
	switch s.TLSConfig.Mode {
	case "", "disabled":
		fmt.Printf("Starting server on http://%s\n", httpServer.Addr)
		return nil
	case "server":
		minVersion := uint16(tls.VersionTLS12)
		if s.TLSConfig.MinVersion == "1.3" {
			minVersion = tls.VersionTLS13
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: minVersion}
		fmt.Printf("Starting server with HTTPS on https://%s\n", httpServer.Addr)
		return nil
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled' or 'server')", s.TLSConfig.Mode)
	}
}

// startWatchers starts API key rotation and prompt hot reload when configured
func (s *Server) startWatchers() {
	if s.KeyWatcher != nil {
		if err := s.KeyWatcher.Start(); err != nil {
			s.Logger.LogError(err, "Failed to start API key watcher")
		}
	}
	if s.PromptWatcher != nil {
		if err := s.PromptWatcher.Start(); err != nil {
			s.Logger.LogError(err, "Failed to start prompt watcher")
		}
	}
}

// stopWatchers stops both watchers
func (s *Server) stopWatchers() {
	if s.KeyWatcher != nil {
		if err := s.KeyWatcher.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop API key watcher")
		}
	}
	if s.PromptWatcher != nil {
		if err := s.PromptWatcher.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop prompt watcher")
		}
	}
}

// startWithGracefulShutdown starts the HTTP server and handles graceful shutdown
func (s *Server) startWithGracefulShutdown(server *http.Server) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", server.Addr,
			"tls_enabled", server.TLSConfig != nil)

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS(s.TLSConfig.CertFile, s.TLSConfig.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		s.stopWatchers()
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-quit:
		s.Logger.Info("Received shutdown signal, starting graceful shutdown",
			"signal", sig.String())

		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.stopWatchers()
	s.cleanupRateLimiter()

	// In-flight suggestion runs finish before the server returns
	s.Logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// cleanupRateLimiter cleans up the rate limiter resources
func (s *Server) cleanupRateLimiter() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}
}
