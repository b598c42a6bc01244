package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/postflow-ai/postflow/internal/pkg/database"
	"github.com/postflow-ai/postflow/internal/pkg/httpclient"
	"github.com/postflow-ai/postflow/internal/pkg/logger"
	"github.com/postflow-ai/postflow/internal/pkg/media"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
	"github.com/postflow-ai/postflow/internal/pkg/queue"
	pkgredis "github.com/postflow-ai/postflow/internal/pkg/redis"
	"github.com/postflow-ai/postflow/internal/scheduler"
	schedmetrics "github.com/postflow-ai/postflow/internal/scheduler/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/rs/zerolog/log"
)

func main() {
	migrate := flag.Bool("migrate", false, "run database migrations before starting")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "scheduler").
		Msg("Starting scheduler service")

	// Connect to database
	db, err := database.NewGormDB(&cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close(db)

	if *migrate {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Redis is optional: without it there is no leader election and
	// notifications are only logged.
	var redisClient *pkgredis.Client
	var queueClient *queue.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(&cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		queueClient = queue.NewClient(&cfg.Redis)
		defer queueClient.Close()
	}

	// Publishing adapter
	source, err := media.NewS3Source(context.Background(), &cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize media source")
	}
	poolCfg := httpclient.DefaultConfig()
	poolCfg.ResponseTimeout = cfg.Publisher.ResponseTimeout
	if cfg.Publisher.MaxConnsPerHost > 0 {
		poolCfg.MaxConnsPerHost = cfg.Publisher.MaxConnsPerHost
	}
	pool := httpclient.NewPooledClient(poolCfg)
	defer pool.CloseIdleConnections()

	// Create scheduler
	s, err := scheduler.New(scheduler.FromAppConfig(cfg.Scheduler), &scheduler.Dependencies{
		DB:        db,
		Redis:     redisClient,
		Queue:     queueClient,
		Publisher: publisher.NewHTTPClient(cfg.Publisher.BaseURL, pool, source),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	// Health and metrics
	exporter := schedmetrics.NewExporter(s.Metrics())
	router := chi.NewRouter()
	router.Get("/health", exporter.Health())
	router.Get("/scheduler/metrics", exporter.Handler())
	router.Handle("/metrics", metrics.Handler())
	router.Get("/scheduler/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Health())
	})
	router.Get("/scheduler/circuits", func(w http.ResponseWriter, r *http.Request) {
		states := make(map[string]string)
		for host, state := range pool.CircuitStates() {
			states[host] = state.String()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states)
	})

	httpServer := &http.Server{
		Addr:              cfg.Scheduler.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Starting metrics server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	// Start scheduler
	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Stop scheduler
	if err := s.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping scheduler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error stopping metrics server")
	}

	log.Info().Msg("Scheduler stopped")
}
