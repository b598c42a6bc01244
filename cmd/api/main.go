package main

import (
	"context"

	"github.com/postflow-ai/postflow/internal/api"
	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/postflow-ai/postflow/internal/pkg/database"
	"github.com/postflow-ai/postflow/internal/pkg/httpclient"
	"github.com/postflow-ai/postflow/internal/pkg/logger"
	"github.com/postflow-ai/postflow/internal/pkg/media"
	"github.com/postflow-ai/postflow/internal/pkg/queue"
	pkgredis "github.com/postflow-ai/postflow/internal/pkg/redis"
	"github.com/postflow-ai/postflow/internal/scheduler"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Msg("Starting API server")

	// Connect to database
	db, err := database.NewGormDB(&cfg.Database, cfg.App.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close(db)

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

	// The engine is built but not started: manual triggers run through the
	// same pipeline the poll loop uses.
	schedCfg := scheduler.FromAppConfig(cfg.Scheduler)
	schedCfg.LeaderElection = false
	engine, err := scheduler.New(schedCfg, &scheduler.Dependencies{
		DB:        db,
		Redis:     redisClient,
		Queue:     queueClient,
		Publisher: publisher.NewHTTPClient(cfg.Publisher.BaseURL, pool, source),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler pipeline")
	}

	server := api.NewServer(cfg, api.Dependencies{
		DB:       db,
		Redis:    redisClient,
		Trigger:  engine.Pipeline(),
		Attempts: engine.Recorder(),
	})

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
