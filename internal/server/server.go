// Package server provides the HTTP server and routing for CardSentry.
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

	"github.com/nvasko/cardsentry/internal/config"
	"github.com/nvasko/cardsentry/internal/database"
	"github.com/nvasko/cardsentry/internal/events"
	"github.com/nvasko/cardsentry/internal/modules/accounts"
	accounthandlers "github.com/nvasko/cardsentry/internal/modules/accounts/handlers"
	"github.com/nvasko/cardsentry/internal/modules/cycles"
	cyclehandlers "github.com/nvasko/cardsentry/internal/modules/cycles/handlers"
)

// Config holds server configuration.
type Config struct {
	Log          zerolog.Logger
	CardsDB      *database.DB
	ClientDataDB *database.DB
	Config       *config.Config
	Port         int
	DevMode      bool

	AccountRepo  *accounts.Repository
	CycleRepo    *cycles.Repository
	Orchestrator *cycles.Orchestrator
	EventBus     *events.Bus
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cardsDB        *database.DB
	clientDataDB   *database.DB
	cfg            *config.Config
	systemHandlers *SystemHandlers
	eventsHandler  *EventsHandler

	accountHandlers *accounthandlers.Handler
	cycleHandlers   *cyclehandlers.Handler
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		cardsDB:      cfg.CardsDB,
		clientDataDB: cfg.ClientDataDB,
		cfg:          cfg.Config,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.CardsDB, cfg.ClientDataDB)
	s.eventsHandler = NewEventsHandler(cfg.EventBus, cfg.Log)
	s.accountHandlers = accounthandlers.NewHandler(cfg.AccountRepo, cfg.Log)
	s.cycleHandlers = cyclehandlers.NewHandler(cfg.CycleRepo, cfg.AccountRepo, cfg.Orchestrator, cfg.Log)

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

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

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

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived connection, kept outside the timeout group
		r.Get("/events/ws", s.eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

			s.accountHandlers.RegisterRoutes(r)
			s.cycleHandlers.RegisterRoutes(r)
		})
	})
}

// handleHealth reports liveness plus database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	for _, db := range []*database.DB{s.cardsDB, s.clientDataDB} {
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q}`, status)
}

// loggingMiddleware logs each request with duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Msg("Request")
	})
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
