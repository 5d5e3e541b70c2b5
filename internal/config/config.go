package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const developmentEnv = "development"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string        `env:"APP_NAME" envDefault:"DaoLedger"`
	AppEnv            string        `env:"APP_ENV" envDefault:"development"`
	Port              string        `env:"PORT" envDefault:"8080"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	RedisURL          string        `env:"REDIS_URL"`
	ShutdownPeriod    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL    time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	GenesisFile       string        `env:"GENESIS_FILE"`
	SettlementWorkers int           `env:"SETTLEMENT_WORKERS" envDefault:"4"`
	ReceiverTimeout   time.Duration `env:"RECEIVER_TIMEOUT" envDefault:"5s"`
	// WriteRateLimit is the number of mutating requests a caller may make per minute.
	WriteRateLimit int    `env:"WRITE_RATE_LIMIT" envDefault:"120"`
	EventsChannel  string `env:"EVENTS_CHANNEL" envDefault:"dao:events"`

	// Backend pool sizing.
	DBMaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"2s"`

	// Whole-second overrides kept for older deployments.
	ShutdownSeconds       int `env:"SHUTDOWN_TIMEOUT_SECONDS"`
	IdempotencyTTLSeconds int `env:"IDEMPOTENCY_TTL_SECONDS"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.ShutdownSeconds > 0 {
		cfg.ShutdownPeriod = time.Duration(cfg.ShutdownSeconds) * time.Second
	}
	if cfg.IdempotencyTTLSeconds > 0 {
		cfg.IdempotencyTTL = time.Duration(cfg.IdempotencyTTLSeconds) * time.Second
	}
	if cfg.SettlementWorkers <= 0 {
		return Config{}, fmt.Errorf("SETTLEMENT_WORKERS must be positive")
	}

	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with in-memory fallbacks allowed.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == developmentEnv
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
