// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver    string `env:"PAGECRAFT_DB_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"PAGECRAFT_DB_PATH" envDefault:"./data/pagecraft.db"`
	DatabaseURL string `env:"PAGECRAFT_DATABASE_URL"` // Required when DBDriver is postgres
	ServerHost  string `env:"PAGECRAFT_SERVER_HOST" envDefault:"localhost"`
	ServerPort  int    `env:"PAGECRAFT_SERVER_PORT" envDefault:"8080"`
	Env         string `env:"PAGECRAFT_ENV" envDefault:"development"`
	LogLevel    string `env:"PAGECRAFT_LOG_LEVEL" envDefault:"info"`
	SiteName    string `env:"PAGECRAFT_SITE_NAME" envDefault:"Pagecraft"`

	// Cache configuration
	RedisURL     string `env:"PAGECRAFT_REDIS_URL"`                         // Optional Redis URL for distributed caching
	CachePrefix  string `env:"PAGECRAFT_CACHE_PREFIX" envDefault:"pagecraft:"`
	CacheTTL     int    `env:"PAGECRAFT_CACHE_TTL" envDefault:"3600"`       // Default cache TTL in seconds
	CacheMaxSize int    `env:"PAGECRAFT_CACHE_MAX_SIZE" envDefault:"10000"` // Max memory cache entries

	// API access
	AdminAPIKey    string        `env:"PAGECRAFT_ADMIN_API_KEY"` // Bootstrapped with every permission
	APIRateLimit   float64       `env:"PAGECRAFT_API_RATE_LIMIT" envDefault:"10"`
	APIRateBurst   int           `env:"PAGECRAFT_API_RATE_BURST" envDefault:"20"`
	RequestTimeout time.Duration `env:"PAGECRAFT_REQUEST_TIMEOUT" envDefault:"30s"`

	// Staging
	PublishConcurrency int  `env:"PAGECRAFT_PUBLISH_CONCURRENCY" envDefault:"1"`
	BackupUniqueNames  bool `env:"PAGECRAFT_BACKUP_UNIQUE_NAMES" envDefault:"true"`

	// Scheduled backups (cron expression, empty disables)
	BackupSchedule  string `env:"PAGECRAFT_BACKUP_SCHEDULE"`
	BackupRetention int    `env:"PAGECRAFT_BACKUP_RETENTION" envDefault:"14"`

	// Event log retention (0 keeps events forever)
	EventRetention time.Duration `env:"PAGECRAFT_EVENT_RETENTION" envDefault:"720h"`

	// Outbound webhooks
	WebhookURLs   []string `env:"PAGECRAFT_WEBHOOK_URLS" envSeparator:","`
	WebhookSecret string   `env:"PAGECRAFT_WEBHOOK_SECRET"`

	// Seeding configuration
	DoSeed bool `env:"PAGECRAFT_DO_SEED" envDefault:"false"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// WebhooksEnabled returns true if at least one webhook target is configured.
func (c Config) WebhooksEnabled() bool {
	return len(c.WebhookURLs) > 0
}

// BackupsScheduled returns true if automatic backups are configured.
func (c Config) BackupsScheduled() bool {
	return strings.TrimSpace(c.BackupSchedule) != ""
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}

// MinAdminAPIKeyLength is the minimum length accepted for a bootstrapped API key.
const MinAdminAPIKeyLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("PAGECRAFT_DB_PATH must not be empty for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("PAGECRAFT_DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unsupported PAGECRAFT_DB_DRIVER %q (want %q or %q)",
			cfg.DBDriver, DriverSQLite, DriverPostgres)
	}

	if cfg.AdminAPIKey != "" && len(cfg.AdminAPIKey) < MinAdminAPIKeyLength {
		return nil, fmt.Errorf("PAGECRAFT_ADMIN_API_KEY must be at least %d bytes long, got %d bytes; "+
			"generate one with: openssl rand -base64 32",
			MinAdminAPIKeyLength, len(cfg.AdminAPIKey))
	}

	if cfg.PublishConcurrency < 1 {
		cfg.PublishConcurrency = 1
	}
	if cfg.BackupRetention < 0 {
		cfg.BackupRetention = 0
	}
	if cfg.EventRetention < 0 {
		cfg.EventRetention = 0
	}

	return cfg, nil
}
