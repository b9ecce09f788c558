// Package api exposes the dashboard, directory, and alerting HTTP
// surface over chi.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openmfb/kestrel/internal/alerts"
	"github.com/openmfb/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, dashboard Dashboard, directory Directory, repo domain.Repository, store domain.Store, engine *alerts.Engine, version string) *Server {
	handler := NewHandler(dashboard, directory, repo, store, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Dashboard
	router.Get("/dashboard/kpis", handler.GetDashboardKPIs)
	router.Get("/dashboard/branch-performance", handler.GetBranchPerformance)
	router.Delete("/cache", handler.ClearCache)

	// User directory
	router.Get("/users", handler.ListUsers)
	router.Get("/users/all", handler.ListAllUsers)
	router.Post("/users", handler.CreateUser)
	router.Put("/users/{id}", handler.UpdateUser)
	router.Delete("/users/{id}", handler.DeleteUser)

	// Snapshot history
	router.Get("/snapshots", handler.ListSnapshots)
	router.Get("/snapshots/{id}", handler.GetSnapshot)

	// Alerting
	router.Get("/alert-rules", handler.ListAlertRules)
	router.Post("/alert-rules", handler.CreateAlertRule)
	router.Post("/alert-rules/reload", handler.ReloadAlertRules)
	router.Get("/alert-rules/{id}", handler.GetAlertRule)
	router.Put("/alert-rules/{id}", handler.UpdateAlertRule)
	router.Delete("/alert-rules/{id}", handler.DeleteAlertRule)
	router.Get("/alert-events", handler.ListAlertEvents)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
