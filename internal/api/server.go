package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/ledger-reconciler/internal/api/handlers"
	"github.com/eshaffer321/ledger-reconciler/internal/api/middleware"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/metrics"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// RateLimit is the number of mutating requests allowed per client IP per
	// minute. 0 disables the limit.
	RateLimit int

	InvoiceCSV ingest.CSVOptions
	BankCSV    ingest.CSVOptions
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		RateLimit:      60,
		InvoiceCSV:     ingest.InvoiceCSVOptions(),
		BankCSV:        ingest.BankCSVOptions(ledger.DefaultBankColumns()),
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *service.Service
	metrics    *metrics.Metrics
}

// NewServer creates a new API server over the service. metrics may be nil.
func NewServer(cfg Config, svc *service.Service, mtr *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		logger:  logger,
		svc:     svc,
		metrics: mtr,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(s.metrics.Middleware)

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = s.config.AllowedOrigins
	}
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	base := handlers.NewBase(s.svc, s.logger)

	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler(base).ServeHTTP)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		statusHandler := handlers.NewStatusHandler(base)
		r.Get("/status", statusHandler.Get)

		// Views
		ledgerHandler := handlers.NewLedgerHandler(base)
		r.Get("/invoices", ledgerHandler.Invoices)
		r.Get("/bank", ledgerHandler.Bank)
		r.Get("/resolved", ledgerHandler.Resolved)
		r.Get("/stats", ledgerHandler.Stats)
		r.Get("/backup", ledgerHandler.Backup)

		// Commands
		r.Group(func(r chi.Router) {
			if s.config.RateLimit > 0 {
				r.Use(httprate.Limit(s.config.RateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP)))
			}

			ingestHandler := handlers.NewIngestHandler(base, s.config.InvoiceCSV, s.config.BankCSV)
			r.Post("/ingest/{source}", ingestHandler.Ingest)

			commands := handlers.NewCommandsHandler(base)
			r.Post("/reload", commands.Reload)
			r.Post("/auto-match", commands.AutoMatch)
			r.Post("/links", commands.Link)
			r.Delete("/links/{hash}", commands.Unlink)
			r.Put("/invoices/{hash}/cash", commands.MarkCash)
			r.Delete("/invoices/{hash}/cash", commands.UnmarkCash)
			r.Put("/bank/{hash}/exclusion", commands.Exclude)
			r.Delete("/bank/{hash}/exclusion", commands.Include)
			r.Post("/records/delete", commands.DeleteRecords)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
