// Package web provides the HTTP inspection surface for the engine.
//
// EDUCATIONAL NOTES:
// ------------------
// This package sets up an HTTP server using the chi router, which is a
// lightweight, idiomatic Go router. Key concepts:
//
// 1. Middleware: Functions that wrap handlers to add cross-cutting concerns
//    like logging, recovery from panics, and request timeouts.
//
// 2. Graceful shutdown: When the server receives a termination signal,
//    it stops accepting new connections but finishes processing in-flight
//    requests before shutting down.
//
// 3. Dependency injection: the Executor is passed into the server so
//    handlers can run SQL against the database; every handler that
//    touches the executor serializes through one mutex, since the storage layer below is not itself
//    safe for concurrent statement execution.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cabewaldrop/pagestore/internal/sql/executor"
)

// Server is the HTTP inspection surface: POST /exec, GET /tables,
// GET /tables/{name}/schema, GET /healthz.
type Server struct {
	router   *chi.Mux
	port     int
	executor *executor.Executor
	mu       sync.Mutex
	log      zerolog.Logger
}

// NewServer creates a new HTTP server with the given port and executor.
// If executor is nil, database operations will not be available.
func NewServer(port int, exec *executor.Executor, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		router:   r,
		port:     port,
		executor: exec,
		log:      log,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(WithExecutor(s.executor))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/tables", s.handleTables)
	s.router.Get("/tables/{name}/schema", s.handleTableSchema)
	s.router.Post("/exec", s.handleExec)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until shutdown, handling
// graceful shutdown on SIGTERM/SIGINT.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.port).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-done:
		s.log.Info().Msg("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info().Msg("server stopped")
	return nil
}
