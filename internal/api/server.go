package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/safv/internal/domain"
)

// Options carries the settings the API needs beyond its dependencies.
type Options struct {
	Version   string
	Financial domain.FinancialDefaults
	RateLimit domain.RateLimitConfig
	IndexTTL  time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, opts Options) *Server {
	handler := NewHandler(repo, cache, bus, opts)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression
	if opts.RateLimit.Enabled && cache != nil {
		router.Use(NewRateLimiter(cache, opts.RateLimit).Middleware)
	}

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Tenant-scoped routes
	router.Route("/t/{"+TenantIDParam+"}", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Plan simulation
		r.Post("/simulations", handler.Simulate)

		// Portfolio valuation
		r.Post("/valuations/snapshots/{snapshotID}/results", handler.EvaluateSnapshot)

		// Anonymized benchmarking
		r.Post("/benchmarking/batches/{batchID}/ingest", handler.IngestBenchmark)
		r.Get("/benchmarking/batches/{batchID}/aggregations", handler.ListBenchmarkAggregations)

		// Financial indexes
		r.Get("/indexes/{indexCode}/values", handler.ListIndexValues)
		r.Post("/indexes/{indexCode}/values", handler.UpsertIndexValues)

		// Tenant settings
		r.Get("/settings/financial", handler.GetFinancialSettings)
		r.Put("/settings/financial", handler.PutFinancialSettings)

		// Payment plan templates
		r.Get("/plan-templates", handler.ListPlanTemplates)
		r.Post("/plan-templates", handler.CreatePlanTemplate)
		r.Get("/plan-templates/{id}", handler.GetPlanTemplate)
	})

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
