// Package server provides the HTTP server and routing for the launchpad.
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

	"github.com/aristath/launchpad/internal/config"
	"github.com/aristath/launchpad/internal/di"
	airdrophandlers "github.com/aristath/launchpad/internal/modules/airdrop/handlers"
	graduationhandlers "github.com/aristath/launchpad/internal/modules/graduation/handlers"
	launchhandlers "github.com/aristath/launchpad/internal/modules/launch/handlers"
	tradinghandlers "github.com/aristath/launchpad/internal/modules/trading/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	startupTime    time.Time

	// stopLimiter ends the rate limiter's eviction loop
	stopLimiter context.CancelFunc
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		container:   cfg.Container,
		startupTime: time.Now(),
	}
	s.systemHandlers = NewSystemHandlers(cfg.Container, s.startupTime, cfg.Log)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 && devMode {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: len(origins) > 0 && origins[0] != "*",
		MaxAge:           300,
	}))

	// Compression (skip in dev mode for easier debugging)
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", c.Metrics.Handler())

	// Event stream is long-lived and sits outside the request timeout
	s.router.Get("/api/events/stream", NewEventsStreamHandler(c.EventBus, c.EventStore, s.log).ServeHTTP)

	limiterCtx, cancel := context.WithCancel(context.Background())
	s.stopLimiter = cancel

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(WriteRateLimit(limiterCtx, s.cfg.RateLimit, s.cfg.RateLimitBurst))

		tradinghandlers.NewTradingHandlers(c.TradingService, c.BaseToken.Address(), s.log).RegisterRoutes(r)
		graduationhandlers.NewGraduationHandlers(c.GraduationService, s.log).RegisterRoutes(r)
		airdrophandlers.NewAirdropHandlers(c.AirdropService, s.log).RegisterRoutes(r)
		launchhandlers.NewLaunchHandlers(c.LaunchService, s.log).RegisterRoutes(r)

		s.systemHandlers.RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
	return s.server.Shutdown(ctx)
}

// handleHealth reports whether the ledger database answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "launchpad",
	}
	if err := s.container.LedgerDB.QuickCheck(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Ledger health check failed")
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
		response["error"] = err.Error()
	}
	writeJSON(w, s.log, status, response)
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
