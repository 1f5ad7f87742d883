package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/handler"
	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/ratelimit"
	"github.com/watchdeck/watchdeck/internal/server/middleware"
	"github.com/watchdeck/watchdeck/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	SessionTTL      time.Duration
	GlobalRateLimit int // requests per minute per IP, 0 disables
	MaxBodySize     int64
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		SessionTTL:      24 * time.Hour,
		GlobalRateLimit: 600,
		MaxBodySize:     1 * 1024 * 1024, // 1MB
	}
}

// Server is the top-level HTTP server for Watchdeck. It owns the Chi router,
// the store, the auth service, the rate limiter, and the metrics registry.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *auth.Service
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, authSvc *auth.Service, limiter *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		authSvc: authSvc,
		limiter: limiter,
		metrics: m,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	// Recoverer sits outside RequestLog: the logging wrapper records a 500
	// for a panicking handler and then re-raises, and the recoverer turns
	// that into the actual 500 response.
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLog(s.store, s.metrics, s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.GlobalRateLimit > 0 {
		r.Use(middleware.GlobalRateLimit(s.cfg.GlobalRateLimit))
	}
	if s.cfg.MaxBodySize > 0 {
		r.Use(maxBytes(s.cfg.MaxBodySize))
	}
	r.Use(chimw.Compress(5))

	// --- Health checks and operational endpoints (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/openapi.json", handler.NewOpenAPIHandler().Serve)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {

		// Account endpoints: unauthenticated, throttled by the public class.
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.ClassRateLimit(s.limiter, ratelimit.ClassPublic, s.metrics))

			authHandler := handler.NewAuthHandler(s.store, s.authSvc, s.cfg.SessionTTL)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Domain endpoints: authenticated, throttled by the api class.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc))
			r.Use(middleware.ClassRateLimit(s.limiter, ratelimit.ClassAPI, s.metrics))
			r.Use(middleware.RequireAuth(s.metrics))

			watchHandler := handler.NewWatchHandler(s.store)
			r.With(middleware.RequirePermission("public.watch.read", s.metrics)).Get("/watch", watchHandler.List)
			r.With(middleware.RequirePermission("public.watch.write", s.metrics)).Put("/watch", watchHandler.Upsert)
			r.With(middleware.RequirePermission("public.watch.write", s.metrics)).Delete("/watch/{entryId}", watchHandler.Delete)

			commentHandler := handler.NewCommentHandler(s.store)
			r.With(middleware.RequirePermission("public.comments.read", s.metrics)).Get("/comments", commentHandler.ListByTitle)
			r.With(middleware.RequirePermission("public.comments.write", s.metrics)).Post("/comments", commentHandler.Create)
			r.With(middleware.RequirePermission("public.comments.write", s.metrics)).Delete("/comments/{commentId}", commentHandler.Delete)

			ratingHandler := handler.NewRatingHandler(s.store)
			r.With(middleware.RequirePermission("public.ratings.read", s.metrics)).Get("/ratings", ratingHandler.Get)
			r.With(middleware.RequirePermission("public.ratings.write", s.metrics)).Put("/ratings", ratingHandler.Upsert)
		})

		// System endpoints: admin only, throttled by the admin class.
		r.Route("/system", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc))
			r.Use(middleware.ClassRateLimit(s.limiter, ratelimit.ClassAdmin, s.metrics))
			r.Use(middleware.RequireAdmin(s.metrics))

			sysHandler := handler.NewSystemHandler(s.store)

			// API key management
			r.Get("/api-key", sysHandler.ListAPIKeys)
			r.Post("/api-key", sysHandler.CreateAPIKey)
			r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)
			r.Post("/api-key/{keyId}/freeze", sysHandler.FreezeAPIKey)
			r.Post("/api-key/{keyId}/unfreeze", sysHandler.FreezeAPIKey)

			// User management
			r.Get("/user", sysHandler.ListUsers)
			r.Put("/user/{userId}/admin", sysHandler.SetUserAdmin)
			r.Put("/user/{userId}/active", sysHandler.SetUserActive)

			// Invites
			r.Get("/invite", sysHandler.ListInvites)
			r.Post("/invite", sysHandler.CreateInvite)

			// Request audit trail
			r.Get("/request-log", sysHandler.ListRequestLogs)
		})
	})

	s.router = r
}

// maxBytes caps request body size so a single client cannot hold a handler
// hostage with an unbounded upload.
func maxBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the backing database
// is reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the database.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing database", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
