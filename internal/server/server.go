package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/vektor/pkg/engine"
)

// Store is the operation contract the HTTP layer drives.
type Store interface {
	Insert(ctx context.Context, id string, vector []float32, metadata any) error
	Delete(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, vector []float32, k int, opts engine.SearchOptions) ([]engine.Result, error)
	Optimize(ctx context.Context) error
	Stats(ctx context.Context) (engine.Stats, error)
}

// Server holds the HTTP interface and the database it serves.
type Server struct {
	store      Store
	dimension  int
	authToken  string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires the routes and middleware. An empty authToken disables
// authentication.
func NewServer(store Store, dimension int, httpAddr, authToken string, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		dimension: dimension,
		authToken: authToken,
		logger:    logger,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> RequestID -> Logging -> Auth -> Mux.
	// Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RequestIDMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /up", s.handleUp)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           rootMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits up to five seconds for
// in-flight ones.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown of HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
}
