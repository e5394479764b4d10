// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MOLT_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Market   MarketConfig   `toml:"market"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Janitor  JanitorConfig  `toml:"janitor"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters. When DSN is set it
// takes precedence over the individual host fields.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig seeds the on-startup marketplace configuration row. These
// values only apply the first time the daemon runs against an empty store;
// afterwards the owner manages them through the admin API.
type MarketConfig struct {
	Owner        string `toml:"owner"`
	FeeRateBps   int64  `toml:"fee_rate_bps"`
	FeeRecipient string `toml:"fee_recipient"`
}

// IndexerConfig holds the stream projection worker parameters.
type IndexerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	BatchSize    int      `toml:"batch_size"`
}

// JanitorConfig holds the scheduled maintenance parameters: the cron schedule
// for the auto-release sweep and how long archived event batches are kept.
// ArchiveRetentionDays of zero keeps archives forever.
type JanitorConfig struct {
	Enabled              bool   `toml:"enabled"`
	Cron                 string `toml:"cron"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters. APIKey gates the admin routes;
// RateLimit caps requests per caller per RateLimitWindow and is disabled
// when zero.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds outbound notification parameters. Webhook deliveries
// are HMAC-signed; the secret can be given raw or as an encrypted file plus
// password.
type NotifyConfig struct {
	TelegramToken              string   `toml:"telegram_token"`
	TelegramChatID             string   `toml:"telegram_chat_id"`
	DiscordWebhookURL          string   `toml:"discord_webhook_url"`
	Events                     []string `toml:"events"`
	WebhookURLs                []string `toml:"webhook_urls"`
	WebhookSecret              string   `toml:"webhook_secret"`
	WebhookEncryptedSecretPath string   `toml:"webhook_encrypted_secret_path"`
	WebhookSecretPassword      string   `toml:"webhook_secret_password"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "moltmarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "moltmarket-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			FeeRateBps: 250,
		},
		Indexer: IndexerConfig{
			PollInterval: duration{500 * time.Millisecond},
			BatchSize:    100,
		},
		Janitor: JanitorConfig{
			Enabled:              true,
			Cron:                 "0 * * * *",
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
//
//	serve      — HTTP API and WebSocket hub only
//	indexer    — stream projection and archive worker only
//	full       — everything, backed by Postgres and Redis
//	standalone — everything on the in-memory backend, for development
var validModes = map[string]bool{
	"serve":      true,
	"indexer":    true,
	"full":       true,
	"standalone": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsBackends reports whether the mode requires Postgres and Redis.
func (c *Config) NeedsBackends() bool {
	return strings.ToLower(c.Mode) != "standalone"
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, indexer, full, standalone)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.NeedsBackends() {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Market.Owner == "" {
		errs = append(errs, "market: owner must be set")
	} else if !common.IsHexAddress(c.Market.Owner) {
		errs = append(errs, fmt.Sprintf("market: owner %q is not a hex address", c.Market.Owner))
	}
	if c.Market.FeeRecipient != "" && !common.IsHexAddress(c.Market.FeeRecipient) {
		errs = append(errs, fmt.Sprintf("market: fee_recipient %q is not a hex address", c.Market.FeeRecipient))
	}
	if c.Market.FeeRateBps < 0 || c.Market.FeeRateBps > 1000 {
		errs = append(errs, fmt.Sprintf("market: fee_rate_bps must be 0-1000, got %d", c.Market.FeeRateBps))
	}

	if c.Indexer.BatchSize < 1 {
		errs = append(errs, "indexer: batch_size must be >= 1")
	}
	if c.Indexer.PollInterval.Duration <= 0 {
		errs = append(errs, "indexer: poll_interval must be positive")
	}

	if c.Janitor.Enabled {
		if strings.TrimSpace(c.Janitor.Cron) == "" {
			errs = append(errs, "janitor: cron must not be empty when enabled")
		}
		if c.Janitor.ArchiveRetentionDays < 0 {
			errs = append(errs, "janitor: archive_retention_days must be >= 0")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Webhook secret sources are mutually dependent: an encrypted path needs
	// a password, and signing requires some secret when endpoints exist.
	if len(c.Notify.WebhookURLs) > 0 {
		if c.Notify.WebhookSecret == "" && c.Notify.WebhookEncryptedSecretPath == "" {
			errs = append(errs, "notify: webhook_secret or webhook_encrypted_secret_path is required when webhook_urls is set")
		}
	}
	if c.Notify.WebhookEncryptedSecretPath != "" && c.Notify.WebhookSecretPassword == "" {
		errs = append(errs, "notify: webhook_secret_password is required when webhook_encrypted_secret_path is set")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
