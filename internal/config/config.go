package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the provisioner API, worker and CLI.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Terraform TerraformConfig
	Queue     QueueConfig
	Events    EventsConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

// TerraformConfig describes how workspaces are generated and how the
// terraform binary is invoked.
type TerraformConfig struct {
	Binary      string
	Root        string
	ModulePath  string
	StepTimeout time.Duration
	Region      string
	StateBucket string
	LockTable   string
}

type QueueConfig struct {
	Name            string
	Concurrency     int
	ResultRetention time.Duration
	JobTimeout      time.Duration
	MetricsPort     int
}

type EventsConfig struct {
	NATSURL       string
	SubjectPrefix string
}

type AdminConfig struct {
	TokenHash string
}

var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SERVER_PORT", 8080),
			Env:                envString("SERVER_ENV", "development"),
			LogLevel:           strings.ToUpper(envString("LOG_LEVEL", "INFO")),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			StatusTTL: envDuration("CACHE_STATUS_TTL", 0),
		},
		Terraform: TerraformConfig{
			Binary:      envString("TERRAFORM_BIN", "terraform"),
			Root:        envString("TERRAFORM_ROOT", "terraform_templates"),
			ModulePath:  envString("TERRAFORM_MODULE_PATH", "/worker/modules/ec2"),
			StepTimeout: envDuration("TERRAFORM_STEP_TIMEOUT", 0),
			Region:      envString("AWS_DEFAULT_REGION", "us-east-1"),
			StateBucket: os.Getenv("TF_STATE_BUCKET"),
			LockTable:   os.Getenv("DYNAMO_TABLE"),
		},
		Queue: QueueConfig{
			Name:            envString("QUEUE_NAME", "default"),
			Concurrency:     envInt("WORKER_CONCURRENCY", 1),
			ResultRetention: envDuration("QUEUE_RESULT_RETENTION", 24*time.Hour),
			JobTimeout:      envDuration("QUEUE_JOB_TIMEOUT", 0),
			MetricsPort:     envInt("WORKER_METRICS_PORT", 9090),
		},
		Events: EventsConfig{
			NATSURL:       os.Getenv("NATS_URL"),
			SubjectPrefix: envString("NATS_SUBJECT_PREFIX", "provisioner.requests"),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Terraform.StateBucket == "" {
		return fmt.Errorf("TF_STATE_BUCKET is required")
	}
	if c.Terraform.LockTable == "" {
		return fmt.Errorf("DYNAMO_TABLE is required")
	}
	if c.Terraform.StepTimeout < 0 {
		return fmt.Errorf("TERRAFORM_STEP_TIMEOUT must not be negative, got %s", c.Terraform.StepTimeout)
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR; got %q", c.Server.LogLevel)
	}

	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Queue.Concurrency)
	}

	if c.Queue.ResultRetention <= 0 {
		return fmt.Errorf("QUEUE_RESULT_RETENTION must be positive, got %s", c.Queue.ResultRetention)
	}
	if c.Queue.JobTimeout < 0 {
		return fmt.Errorf("QUEUE_JOB_TIMEOUT must not be negative, got %s", c.Queue.JobTimeout)
	}

	if c.Events.NATSURL != "" && !strings.HasPrefix(c.Events.NATSURL, "nats://") && !strings.HasPrefix(c.Events.NATSURL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.Events.NATSURL)
	}

	if c.Admin.TokenHash != "" && !strings.HasPrefix(c.Admin.TokenHash, "$2") {
		return fmt.Errorf("ADMIN_TOKEN_HASH must be a bcrypt hash")
	}

	return nil
}

// SlogLevel converts LogLevel for use in a slog handler.
func (s ServerConfig) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
