package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MOLT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOLT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "MOLT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "MOLT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "MOLT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MOLT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MOLT_DATABASE_NAME")
	setStr(&cfg.Database.User, "MOLT_DATABASE_USER")
	setStr(&cfg.Database.Password, "MOLT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MOLT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "MOLT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MOLT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MOLT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MOLT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOLT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOLT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOLT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOLT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOLT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MOLT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MOLT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOLT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOLT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MOLT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOLT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOLT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOLT_S3_FORCE_PATH_STYLE")

	// ── Market seed ──
	setStr(&cfg.Market.Owner, "MOLT_MARKET_OWNER")
	setInt64(&cfg.Market.FeeRateBps, "MOLT_MARKET_FEE_RATE_BPS")
	setStr(&cfg.Market.FeeRecipient, "MOLT_MARKET_FEE_RECIPIENT")

	// ── Indexer ──
	setDuration(&cfg.Indexer.PollInterval, "MOLT_INDEXER_POLL_INTERVAL")
	setInt(&cfg.Indexer.BatchSize, "MOLT_INDEXER_BATCH_SIZE")

	// ── Janitor ──
	setBool(&cfg.Janitor.Enabled, "MOLT_JANITOR_ENABLED")
	setStr(&cfg.Janitor.Cron, "MOLT_JANITOR_CRON")
	setInt(&cfg.Janitor.ArchiveRetentionDays, "MOLT_JANITOR_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MOLT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MOLT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MOLT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MOLT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MOLT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "MOLT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MOLT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MOLT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MOLT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MOLT_NOTIFY_EVENTS")
	setStringSlice(&cfg.Notify.WebhookURLs, "MOLT_NOTIFY_WEBHOOK_URLS")
	setStr(&cfg.Notify.WebhookSecret, "MOLT_NOTIFY_WEBHOOK_SECRET")
	setStr(&cfg.Notify.WebhookEncryptedSecretPath, "MOLT_NOTIFY_WEBHOOK_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Notify.WebhookSecretPassword, "MOLT_NOTIFY_WEBHOOK_SECRET_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "MOLT_MODE")
	setStr(&cfg.LogLevel, "MOLT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
