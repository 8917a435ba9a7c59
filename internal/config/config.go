package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// HTTP control plane
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Database (accounts + search index)
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailindex.db"`

	// IMAP
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// BackfillWindow is how far back the initial per-mailbox ingestion reaches.
	BackfillWindow time.Duration `env:"BACKFILL_WINDOW" envDefault:"720h"`

	// Security
	MasterKey string `env:"MASTER_KEY"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BackfillWindow <= 0 {
		return nil, fmt.Errorf("BACKFILL_WINDOW must be positive, got %s", cfg.BackfillWindow)
	}

	return cfg, nil
}
