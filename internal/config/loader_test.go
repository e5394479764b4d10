package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "standalone"
log_level = "debug"

[market]
owner = "0x00000000000000000000000000000000000000a1"
fee_rate_bps = 250
fee_recipient = "0x00000000000000000000000000000000000000d4"

[server]
port = 9090
api_key = "hunter2"
rate_limit = 60
rate_limit_window = "30s"

[indexer]
poll_interval = "250ms"
batch_size = 50

[janitor]
cron = "30 2 * * *"
archive_retention_days = 14

[notify]
webhook_urls = ["https://example.com/hook"]
webhook_secret = "topsecret"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "standalone", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Server.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Indexer.PollInterval.Duration)
	assert.Equal(t, 50, cfg.Indexer.BatchSize)
	assert.Equal(t, "30 2 * * *", cfg.Janitor.Cron)
	assert.Equal(t, 14, cfg.Janitor.ArchiveRetentionDays)
	assert.True(t, cfg.Janitor.Enabled)

	// Values absent from the file keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "moltmarket", cfg.Database.Database)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MOLT_SERVER_PORT", "7070")
	t.Setenv("MOLT_MARKET_FEE_RATE_BPS", "500")
	t.Setenv("MOLT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("MOLT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MOLT_INDEXER_POLL_INTERVAL", "2s")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, int64(500), cfg.Market.FeeRateBps)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.Indexer.PollInterval.Duration)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "batch" },
			want:   "unknown mode",
		},
		{
			name:   "missing owner",
			mutate: func(c *Config) { c.Market.Owner = "" },
			want:   "owner must be set",
		},
		{
			name:   "malformed owner",
			mutate: func(c *Config) { c.Market.Owner = "not-hex" },
			want:   "not a hex address",
		},
		{
			name:   "fee rate above cap",
			mutate: func(c *Config) { c.Market.FeeRateBps = 1001 },
			want:   "fee_rate_bps must be 0-1000",
		},
		{
			name:   "webhooks without secret",
			mutate: func(c *Config) { c.Notify.WebhookSecret = "" },
			want:   "webhook_secret",
		},
		{
			name:   "telegram token without chat id",
			mutate: func(c *Config) { c.Notify.TelegramToken = "tok" },
			want:   "telegram_chat_id",
		},
		{
			name:   "janitor enabled without schedule",
			mutate: func(c *Config) { c.Janitor.Cron = "  " },
			want:   "janitor: cron",
		},
		{
			name: "missing database host in full mode",
			mutate: func(c *Config) {
				c.Mode = "full"
				c.Database.Host = ""
			},
			want: "database: host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleTOML))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Database.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"

	red := RedactedConfig(cfg)

	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.WebhookSecret)

	// Originals are untouched.
	assert.Equal(t, "hunter2", cfg.Server.APIKey)

	// Mutating the redacted copy's slices must not leak back.
	red.Notify.WebhookURLs[0] = "mutated"
	assert.Equal(t, "https://example.com/hook", cfg.Notify.WebhookURLs[0])
}
