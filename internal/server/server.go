// Package server provides the HTTP server and routing for Quartermaster.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/config"
	"github.com/aristath/quartermaster/internal/di"
	cataloghandlers "github.com/aristath/quartermaster/internal/modules/catalog/handlers"
	customerhandlers "github.com/aristath/quartermaster/internal/modules/customers/handlers"
	inventoryhandlers "github.com/aristath/quartermaster/internal/modules/inventory/handlers"
	purchasinghandlers "github.com/aristath/quartermaster/internal/modules/purchasing/handlers"
	rentalhandlers "github.com/aristath/quartermaster/internal/modules/rental/handlers"
	transactionhandlers "github.com/aristath/quartermaster/internal/modules/transactions/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	Port      int
	DevMode   bool
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE stream of committed journal events.
		eventsStream := NewEventsStreamHandler(c.EventBus, s.log)
		r.Get("/events/stream", eventsStream.ServeHTTP)

		systemHandlers := NewSystemHandlers(
			s.cfg.DataDir, c.RentalDB, c.CacheDB, c.Scheduler, c.JobHistory, s.log)
		systemHandlers.RegisterRoutes(r)

		cataloghandlers.NewHandler(c.CatalogRepo, s.log).RegisterRoutes(r)
		customerhandlers.NewHandler(c.CustomerRepo, s.log).RegisterRoutes(r)
		inventoryhandlers.NewHandler(c.Ledger, s.log).RegisterRoutes(r)
		transactionhandlers.NewHandler(c.Store, c.Journal, s.cfg.Location(), s.log).RegisterRoutes(r)
		rentalhandlers.NewHandler(c.RentalService, s.log).RegisterRoutes(r)
		purchasinghandlers.NewHandler(c.PurchasingService, s.log).RegisterRoutes(r)
	})
}

// handleHealth is the liveness probe: a quick ping of both databases.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.container.RentalDB.QuickCheck(ctx); err != nil {
		http.Error(w, "rental database unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.container.CacheDB.QuickCheck(ctx); err != nil {
		http.Error(w, "cache database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
