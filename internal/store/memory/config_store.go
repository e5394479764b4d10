package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ConfigStore implements domain.ConfigStore as a single mutex-guarded record.
type ConfigStore struct {
	mu     sync.RWMutex
	cfg    domain.MarketConfig
	seeded bool
}

// NewConfigStore creates an unseeded ConfigStore. Ensure must run before the
// first Get.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// Ensure seeds the configuration record if it does not exist yet.
func (s *ConfigStore) Ensure(ctx context.Context, cfg domain.MarketConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		return nil
	}
	s.cfg = cfg
	s.seeded = true
	return nil
}

// Get returns the current platform configuration.
func (s *ConfigStore) Get(ctx context.Context) (domain.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seeded {
		return domain.MarketConfig{}, domain.ErrNotFound
	}
	return s.cfg, nil
}

// SetFeeRate updates the fee rate in basis points.
func (s *ConfigStore) SetFeeRate(ctx context.Context, bps int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return domain.ErrNotFound
	}
	s.cfg.FeeRateBps = bps
	s.cfg.UpdatedAt = at
	return nil
}

// SetFeeRecipient updates the fee payout address.
func (s *ConfigStore) SetFeeRecipient(ctx context.Context, addr common.Address, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return domain.ErrNotFound
	}
	s.cfg.FeeRecipient = addr
	s.cfg.UpdatedAt = at
	return nil
}

// SetOwner updates the administrative owner address.
func (s *ConfigStore) SetOwner(ctx context.Context, addr common.Address, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		return domain.ErrNotFound
	}
	s.cfg.Owner = addr
	s.cfg.UpdatedAt = at
	return nil
}

// Compile-time interface check.
var _ domain.ConfigStore = (*ConfigStore)(nil)
