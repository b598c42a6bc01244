package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/postflow-ai/postflow/internal/api/handlers"
	"github.com/postflow-ai/postflow/internal/api/middleware"
	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
	pkgredis "github.com/postflow-ai/postflow/internal/pkg/redis"
	"github.com/postflow-ai/postflow/internal/scheduler/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

type Dependencies struct {
	DB       *gorm.DB
	Redis    *pkgredis.Client
	Trigger  handlers.Trigger
	Attempts handlers.AttemptReader

	// SchedulerMetrics serves /scheduler/metrics when set.
	SchedulerMetrics http.Handler
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestIDHeader)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger())
	router.Use(middleware.Recoverer())
	router.Use(metrics.MetricsMiddleware)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS - support multiple origins (comma-separated in config)
	allowedOrigins := strings.Split(cfg.App.FrontendURL, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(corsHandler.Handler)

	// Initialize handlers
	var redisClient *redis.Client
	if deps.Redis != nil {
		redisClient = deps.Redis.Client
	}
	healthHandler := handlers.NewHealthHandler(cfg.App.Name+"-api", deps.DB, redisClient)
	executionHandler := handlers.NewExecutionHandler(deps.Trigger, deps.Attempts)

	router.Get("/health", healthHandler.Health)
	router.Get("/health/live", healthHandler.Live)
	router.Get("/health/ready", healthHandler.Ready)

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.RateLimit > 0 {
			r.Use(newRateLimiter(cfg.Server.RateLimit, deps.Redis).Limit)
		}

		r.Post("/schedules/{scheduleID}/execute", executionHandler.Trigger)
		r.Get("/executions", executionHandler.List)
		r.Get("/executions/stats", executionHandler.Stats)
	})

	// Metrics endpoint (Prometheus)
	router.Handle("/metrics", metrics.Handler())
	if deps.SchedulerMetrics != nil {
		router.Handle("/scheduler/metrics", deps.SchedulerMetrics)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		router:     router,
		httpServer: httpServer,
	}
}

func newRateLimiter(perMinute int, redisClient *pkgredis.Client) *middleware.RateLimiter {
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewSlidingWindowLimiter(redisClient, "postflow:ratelimit:api", perMinute, time.Minute)
	} else {
		limiter = ratelimit.NewLocalLimiter(perMinute, time.Minute, time.Now)
	}
	return middleware.NewRateLimiter(limiter, perMinute)
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
