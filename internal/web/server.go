// Package web runs the HTTP review API over the detection engine.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/photo-dedupe/internal/config"
	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/photostore"
	"github.com/kozaktomas/photo-dedupe/internal/web/handlers"
	"github.com/kozaktomas/photo-dedupe/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	engine     *engine.Engine
	photos     photostore.Store
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, eng *engine.Engine, photos photostore.Store) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		engine:     eng,
		photos:     photos,
		router:     r,
		jobManager: handlers.NewJobManager(),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Web.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
