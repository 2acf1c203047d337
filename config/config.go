// Package config loads the YAML configuration file backing both the API
// server and the worker process, expanding ${VAR} / ${VAR:-default}
// placeholders from the environment before parsing, then back-filling
// defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document; each field is a typed sub-config for
// one ambient or domain concern.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SMTP       SMTPDefaults     `yaml:"smtp"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Worker     WorkerConfig     `yaml:"worker"`
	Reputation ReputationConfig `yaml:"reputation"`
	Cron       CronConfig       `yaml:"cron"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the API process's HTTP listener.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	LogLevel       string   `yaml:"logLevel"`
	LogFormat      string   `yaml:"logFormat"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DatabaseConfig configures the pgx pool.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// RedisConfig configures the broker/rate-limiter/cache client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SMTPDefaults are fallback relay settings used when an app has not
// configured its own SMTPConfig (primarily useful for local/dev runs).
type SMTPDefaults struct {
	TimeoutMs  int `yaml:"timeoutMs"`
	PoolSize   int `yaml:"poolSize"`
}

// TrackingConfig governs C4.
type TrackingConfig struct {
	TrackingHost string `yaml:"trackingHost"`
	PixelPath    string `yaml:"pixelPath"`
	ClickPath    string `yaml:"clickPath"`
	ShortCodeLen int    `yaml:"shortCodeLen"`
}

// WebhookConfig governs C10.
type WebhookConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	SweepInterval  int `yaml:"sweepIntervalSeconds"`
	WorkerPoolSize int `yaml:"workerPoolSize"`
	SigningVersion string `yaml:"signingVersion"`
}

// WorkerConfig governs C7's pool size and polling cadence.
type WorkerConfig struct {
	Concurrency       int `yaml:"concurrency"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	LeaseMs           int `yaml:"leaseMs"`
	ReconcileInterval int `yaml:"reconcileIntervalSeconds"`
}

// ReputationConfig governs C12's scan cadence.
type ReputationConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
}

// CronConfig governs C11's tick cadence.
type CronConfig struct {
	TickSeconds int `yaml:"tickSeconds"`
}

// MetricsConfig governs C14's dedicated listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// expandEnvWithDefaults expands ${VAR:-default} then plain ${VAR}/$VAR.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+):-([^}]*)\}`)
	result := re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	return os.ExpandEnv(result)
}

// Load reads and parses the YAML file at path, expanding environment
// variables and back-filling defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	data = []byte(expandEnvWithDefaults(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 5
	}
	if cfg.SMTP.PoolSize == 0 {
		cfg.SMTP.PoolSize = 10
	}
	if cfg.SMTP.TimeoutMs == 0 {
		cfg.SMTP.TimeoutMs = 30000
	}
	if cfg.Tracking.TrackingHost == "" {
		cfg.Tracking.TrackingHost = "http://localhost:8080"
	}
	if cfg.Tracking.PixelPath == "" {
		cfg.Tracking.PixelPath = "/t"
	}
	if cfg.Tracking.ClickPath == "" {
		cfg.Tracking.ClickPath = "/c"
	}
	if cfg.Tracking.ShortCodeLen == 0 {
		cfg.Tracking.ShortCodeLen = 10
	}
	if cfg.Webhook.TimeoutSeconds == 0 {
		cfg.Webhook.TimeoutSeconds = 30
	}
	if cfg.Webhook.SweepInterval == 0 {
		cfg.Webhook.SweepInterval = 15
	}
	if cfg.Webhook.WorkerPoolSize == 0 {
		cfg.Webhook.WorkerPoolSize = 10
	}
	if cfg.Webhook.SigningVersion == "" {
		cfg.Webhook.SigningVersion = "v1"
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 10
	}
	if cfg.Worker.PollIntervalMs == 0 {
		cfg.Worker.PollIntervalMs = 500
	}
	if cfg.Worker.LeaseMs == 0 {
		cfg.Worker.LeaseMs = 60000
	}
	if cfg.Worker.ReconcileInterval == 0 {
		cfg.Worker.ReconcileInterval = 60
	}
	if cfg.Reputation.IntervalSeconds == 0 {
		cfg.Reputation.IntervalSeconds = 60
	}
	if cfg.Cron.TickSeconds == 0 {
		cfg.Cron.TickSeconds = 60
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
