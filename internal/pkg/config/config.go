package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	S3        S3Config
	Publisher PublisherConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	FrontendURL string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit    int
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// PublisherConfig points the publishing adapter at the platform API.
type PublisherConfig struct {
	BaseURL         string
	ResponseTimeout time.Duration
	MaxConnsPerHost int
}

// SchedulerConfig holds the engine knobs. RetryIntervals are minutes.
type SchedulerConfig struct {
	PollSchedule     string
	BatchSize        int
	MaxConcurrent    int
	RetryIntervals   []int
	MaxRetryCount    int
	CacheTTL         time.Duration
	CacheSize        int
	AttemptTimeout   time.Duration
	RetentionDays    int
	CleanupBatchSize int
	CleanupInterval  time.Duration
	RepairInterval   time.Duration
	AccountRateLimit int
	LeaderElection   bool
	LeaderKey        string
	LeaderTTL        time.Duration
	ShutdownTimeout  time.Duration
	// HTTPAddr serves health and metrics for the scheduler process.
	HTTPAddr         string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	var cfg Config

	// App
	cfg.App.Name = v.GetString("app.name")
	cfg.App.Environment = v.GetString("app.environment")
	cfg.App.Debug = v.GetBool("app.debug")
	cfg.App.FrontendURL = v.GetString("app.frontend_url")

	// Server
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	cfg.Server.RateLimit = v.GetInt("server.rate_limit")

	// Database
	cfg.Database.Host = v.GetString("database.host")
	cfg.Database.Port = v.GetInt("database.port")
	cfg.Database.User = v.GetString("database.user")
	cfg.Database.Password = v.GetString("database.password")
	cfg.Database.Name = v.GetString("database.name")
	cfg.Database.SSLMode = v.GetString("database.sslmode")
	cfg.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = v.GetDuration("database.conn_max_lifetime")

	// Redis
	cfg.Redis.Enabled = v.GetBool("redis.enabled")
	cfg.Redis.Host = v.GetString("redis.host")
	cfg.Redis.Port = v.GetInt("redis.port")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	// S3
	cfg.S3.Endpoint = v.GetString("s3.endpoint")
	cfg.S3.Region = v.GetString("s3.region")
	cfg.S3.Bucket = v.GetString("s3.bucket")
	cfg.S3.AccessKeyID = v.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = v.GetString("s3.secret_access_key")

	// Publisher
	cfg.Publisher.BaseURL = v.GetString("publisher.base_url")
	cfg.Publisher.ResponseTimeout = v.GetDuration("publisher.response_timeout")
	cfg.Publisher.MaxConnsPerHost = v.GetInt("publisher.max_conns_per_host")

	// Scheduler
	cfg.Scheduler.PollSchedule = v.GetString("scheduler.poll_schedule")
	cfg.Scheduler.BatchSize = v.GetInt("scheduler.batch_size")
	cfg.Scheduler.MaxConcurrent = v.GetInt("scheduler.max_concurrent")
	cfg.Scheduler.RetryIntervals = v.GetIntSlice("scheduler.retry_intervals")
	cfg.Scheduler.MaxRetryCount = v.GetInt("scheduler.max_retry_count")
	cfg.Scheduler.CacheTTL = v.GetDuration("scheduler.cache_ttl")
	cfg.Scheduler.CacheSize = v.GetInt("scheduler.cache_size")
	cfg.Scheduler.AttemptTimeout = v.GetDuration("scheduler.attempt_timeout")
	cfg.Scheduler.RetentionDays = v.GetInt("scheduler.retention_days")
	cfg.Scheduler.CleanupBatchSize = v.GetInt("scheduler.cleanup_batch_size")
	cfg.Scheduler.CleanupInterval = v.GetDuration("scheduler.cleanup_interval")
	cfg.Scheduler.RepairInterval = v.GetDuration("scheduler.repair_interval")
	cfg.Scheduler.AccountRateLimit = v.GetInt("scheduler.account_rate_limit")
	cfg.Scheduler.LeaderElection = v.GetBool("scheduler.leader_election")
	cfg.Scheduler.LeaderKey = v.GetString("scheduler.leader_key")
	cfg.Scheduler.LeaderTTL = v.GetDuration("scheduler.leader_ttl")
	cfg.Scheduler.ShutdownTimeout = v.GetDuration("scheduler.shutdown_timeout")
	cfg.Scheduler.HTTPAddr = v.GetString("scheduler.http_addr")

	return &cfg
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "postflow")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.frontend_url", "http://localhost:3000")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.rate_limit", 600)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "postflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "postflow-media")

	// Publisher defaults
	v.SetDefault("publisher.base_url", "https://graph.example.com/v1")
	v.SetDefault("publisher.response_timeout", "30s")
	v.SetDefault("publisher.max_conns_per_host", 20)

	// Scheduler defaults
	v.SetDefault("scheduler.poll_schedule", "@every 1m")
	v.SetDefault("scheduler.batch_size", 10)
	v.SetDefault("scheduler.max_concurrent", 3)
	v.SetDefault("scheduler.retry_intervals", []int{5, 15, 60})
	v.SetDefault("scheduler.max_retry_count", 3)
	v.SetDefault("scheduler.cache_ttl", "180s")
	v.SetDefault("scheduler.cache_size", 1000)
	v.SetDefault("scheduler.attempt_timeout", "30s")
	v.SetDefault("scheduler.retention_days", 90)
	v.SetDefault("scheduler.cleanup_batch_size", 1000)
	v.SetDefault("scheduler.cleanup_interval", "1h")
	v.SetDefault("scheduler.repair_interval", "5m")
	v.SetDefault("scheduler.account_rate_limit", 0)
	v.SetDefault("scheduler.leader_election", false)
	v.SetDefault("scheduler.leader_key", "postflow:scheduler:leader")
	v.SetDefault("scheduler.leader_ttl", "30s")
	v.SetDefault("scheduler.shutdown_timeout", "60s")
	v.SetDefault("scheduler.http_addr", ":9091")
}
