package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL. The config
// lives in a single row with a fixed id.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

var _ domain.ConfigStore = (*ConfigStore)(nil)

// Ensure seeds the config row if it does not exist yet. An existing row is
// left untouched, so restarting with different seed values never overwrites
// owner changes made at runtime.
func (s *ConfigStore) Ensure(ctx context.Context, cfg domain.MarketConfig) error {
	const query = `
		INSERT INTO market_config (id, owner, fee_rate_bps, fee_recipient, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		cfg.Owner.Hex(), cfg.FeeRateBps, cfg.FeeRecipient.Hex(), cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure market config: %w", err)
	}
	return nil
}

// Get reads the platform configuration.
func (s *ConfigStore) Get(ctx context.Context) (domain.MarketConfig, error) {
	const query = `SELECT owner, fee_rate_bps, fee_recipient, updated_at FROM market_config WHERE id = 1`

	var cfg domain.MarketConfig
	var owner, recipient string

	err := s.pool.QueryRow(ctx, query).Scan(&owner, &cfg.FeeRateBps, &recipient, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketConfig{}, domain.ErrNotFound
		}
		return domain.MarketConfig{}, fmt.Errorf("postgres: get market config: %w", err)
	}

	cfg.Owner = common.HexToAddress(owner)
	cfg.FeeRecipient = common.HexToAddress(recipient)
	return cfg, nil
}

// SetFeeRate updates the fee rate in basis points.
func (s *ConfigStore) SetFeeRate(ctx context.Context, bps int64, at time.Time) error {
	return s.set(ctx, `UPDATE market_config SET fee_rate_bps = $1, updated_at = $2 WHERE id = 1`, bps, at)
}

// SetFeeRecipient updates the fee payout address.
func (s *ConfigStore) SetFeeRecipient(ctx context.Context, addr common.Address, at time.Time) error {
	return s.set(ctx, `UPDATE market_config SET fee_recipient = $1, updated_at = $2 WHERE id = 1`, addr.Hex(), at)
}

// SetOwner updates the platform owner.
func (s *ConfigStore) SetOwner(ctx context.Context, addr common.Address, at time.Time) error {
	return s.set(ctx, `UPDATE market_config SET owner = $1, updated_at = $2 WHERE id = 1`, addr.Hex(), at)
}

func (s *ConfigStore) set(ctx context.Context, query string, value any, at time.Time) error {
	tag, err := s.pool.Exec(ctx, query, value, at)
	if err != nil {
		return fmt.Errorf("postgres: update market config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
