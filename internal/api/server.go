// Package api provides the HTTP API server for loglite.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loglite/loglite/internal/api/middleware"
	"github.com/loglite/loglite/internal/ingest"
	"github.com/loglite/loglite/internal/query"
	"github.com/loglite/loglite/internal/storage"
)

// Server is the HTTP API server: it owns the mux, the middleware chain,
// and the handles to every component a handler may call.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time

	apps     storage.AppStore
	sources  storage.SourceStore
	ingestor *ingest.Ingestor
	planner  *query.Planner
}

// Deps bundles the components Server dispatches requests to.
type Deps struct {
	Apps     storage.AppStore
	Sources  storage.SourceStore
	Ingestor *ingest.Ingestor
	Planner  *query.Planner
}

// NewServer creates a new HTTP server instance with structured logging and
// the middleware stack applied.
func NewServer(cfg *ServerConfig, deps Deps) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if deps.Apps == nil || deps.Sources == nil || deps.Ingestor == nil || deps.Planner == nil {
		logger.Error("loglite: cannot start server without all core dependencies")
		panic("loglite: Deps fields must all be non-nil")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:   logger,
		config:   cfg,
		apps:     deps.Apps,
		sources:  deps.Sources,
		ingestor: deps.Ingestor,
		planner:  deps.Planner,
	}

	server.setupRoutes(mux)

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RequestLogger - structured access log
	//   4. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown. It handles
// graceful shutdown on SIGINT and SIGTERM.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting loglite API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the HTTP server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server shutdown completed successfully")

	return nil
}
