// Package server provides the HTTP server and routing for the service.
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

	"github.com/folio-hq/folio/internal/config"
	"github.com/folio-hq/folio/internal/database"
	"github.com/folio-hq/folio/internal/events"
	"github.com/folio-hq/folio/internal/identity"
	ledgerhandlers "github.com/folio-hq/folio/internal/modules/ledger/handlers"
	valuationhandlers "github.com/folio-hq/folio/internal/modules/valuation/handlers"
)

// Config holds server configuration
type Config struct {
	Port              int
	Log               zerolog.Logger
	Config            *config.Config
	LedgerDB          *database.DB
	CacheDB           *database.DB
	EventBus          *events.Bus
	LedgerHandlers    *ledgerhandlers.Handler
	ValuationHandlers *valuationhandlers.Handler
	DevMode           bool
}

// Server is the HTTP server
type Server struct {
	router            *chi.Mux
	server            *http.Server
	log               zerolog.Logger
	cfg               *config.Config
	ledgerDB          *database.DB
	cacheDB           *database.DB
	eventBus          *events.Bus
	ledgerHandlers    *ledgerhandlers.Handler
	valuationHandlers *valuationhandlers.Handler
	systemHandlers    *SystemHandlers
	startupTime       time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		log:               cfg.Log.With().Str("component", "server").Logger(),
		cfg:               cfg.Config,
		ledgerDB:          cfg.LedgerDB,
		cacheDB:           cfg.CacheDB,
		eventBus:          cfg.EventBus,
		ledgerHandlers:    cfg.LedgerHandlers,
		valuationHandlers: cfg.ValuationHandlers,
		startupTime:       time.Now(),
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, s.startupTime, map[string]*database.DB{
		"ledger": cfg.LedgerDB,
		"cache":  cfg.CacheDB,
	})

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(s.identityMiddleware)

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// identityMiddleware places the already-validated user identity from the
// gateway into the request context. Missing header falls back to the
// configured default identity.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = s.cfg.DefaultUserID
		}
		next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), userID)))
	})
}

// loggingMiddleware logs each request with timing
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		s.valuationHandlers.RegisterRoutes(r)
		s.ledgerHandlers.RegisterRoutes(r)

		eventsHandler := NewEventsHandler(s.eventBus, s.log)
		r.Get("/events/ws", eventsHandler.ServeHTTP)

		r.Get("/system/info", s.systemHandlers.HandleSystemInfo)
	})
}

// handleHealth is the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "running"
	code := http.StatusOK
	if err := s.ledgerDB.Conn().PingContext(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check: ledger database unreachable")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"service":"Portfolio Service","status":%q,"version":"1.0.0"}`, status)
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
