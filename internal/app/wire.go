package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/Vardominator/moltmarket/internal/blob/s3"
	"github.com/Vardominator/moltmarket/internal/cache/redis"
	"github.com/Vardominator/moltmarket/internal/config"
	"github.com/Vardominator/moltmarket/internal/crypto"
	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/notify"
	"github.com/Vardominator/moltmarket/internal/store/memory"
	"github.com/Vardominator/moltmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Listings domain.ListingStore
	Escrows  domain.EscrowStore
	Registry domain.RegistryStore
	Config   domain.ConfigStore
	Ledger   domain.Ledger
	Audit    domain.AuditStore

	// Cache and coordination
	ListingCache domain.ListingCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	EventBus     domain.EventBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier
	Webhooks []*notify.WebhookSender
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Standalone mode swaps the
// Postgres and Redis backends for in-memory implementations.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.NeedsBackends() {
		// --- PostgreSQL ---
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Listings = postgres.NewListingStore(pool)
		deps.Escrows = postgres.NewEscrowStore(pool)
		deps.Registry = postgres.NewRegistryStore(pool)
		deps.Config = postgres.NewConfigStore(pool)
		deps.Ledger = postgres.NewAccountStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)

		// --- Redis ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ListingCache = redis.NewListingCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	} else {
		// Standalone mode: everything lives in process memory. Useful for
		// development and integration tests; state is lost on restart.
		deps.Listings = memory.NewListingStore()
		deps.Escrows = memory.NewEscrowStore()
		deps.Registry = memory.NewRegistryStore()
		deps.Config = memory.NewConfigStore()
		deps.Ledger = memory.NewLedger()
		deps.Audit = memory.NewAuditStore()
		deps.LockManager = memory.NewLockManager()
		deps.EventBus = memory.NewEventBus()
	}

	// Seed the marketplace configuration row. Ensure is a no-op when the row
	// already exists, so operator changes made through the admin API survive
	// restarts.
	seed := domain.MarketConfig{
		Owner:        common.HexToAddress(cfg.Market.Owner),
		FeeRateBps:   cfg.Market.FeeRateBps,
		FeeRecipient: common.HexToAddress(cfg.Market.Owner),
		UpdatedAt:    time.Now().UTC(),
	}
	if cfg.Market.FeeRecipient != "" {
		seed.FeeRecipient = common.HexToAddress(cfg.Market.FeeRecipient)
	}
	if err := deps.Config.Ensure(ctx, seed); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed market config: %w", err)
	}

	// --- S3 blob storage (event archive) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Audit)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	if len(cfg.Notify.WebhookURLs) > 0 {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Notify.WebhookSecret,
			EncryptedSecretPath: cfg.Notify.WebhookEncryptedSecretPath,
			Password:            cfg.Notify.WebhookSecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: webhook secret: %w", err)
		}
		for _, url := range cfg.Notify.WebhookURLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			deps.Webhooks = append(deps.Webhooks, notify.NewWebhookSender(url, secret))
		}
	}

	return deps, cleanup, nil
}
