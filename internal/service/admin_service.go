package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// AdminService gates the owner-only platform configuration: fee rate, fee
// recipient, and ownership transfer. It never touches trading state.
type AdminService struct {
	config domain.ConfigStore
	bus    domain.EventBus
	audit  domain.AuditStore
	clock  domain.Clock
	logger *slog.Logger
}

// NewAdminService creates an AdminService with all required dependencies.
func NewAdminService(
	config domain.ConfigStore,
	bus domain.EventBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		config: config,
		bus:    bus,
		audit:  audit,
		clock:  clock,
		logger: logger,
	}
}

// requireOwner loads the config and verifies the caller is the current owner.
func (s *AdminService) requireOwner(ctx context.Context, caller common.Address) (domain.MarketConfig, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("admin_service: load config: %w", err)
	}
	if caller != cfg.Owner {
		return domain.MarketConfig{}, fmt.Errorf("admin_service: caller is not the owner: %w", domain.ErrUnauthorized)
	}
	return cfg, nil
}

// SetFeeRate updates the platform fee rate in basis points (capped at 10%).
// The new rate applies to every future settlement, including escrows already
// locked under the old rate.
func (s *AdminService) SetFeeRate(ctx context.Context, caller common.Address, bps int64) error {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if bps < 0 || bps > domain.MaxFeeRateBps {
		return fmt.Errorf("admin_service: fee rate %d bps exceeds cap %d: %w", bps, domain.MaxFeeRateBps, domain.ErrValidation)
	}

	if err := s.config.SetFeeRate(ctx, bps, s.clock.Now()); err != nil {
		return fmt.Errorf("admin_service: set fee rate: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:    domain.EventFeeRateUpdated,
		Actor:   caller,
		RateBps: bps,
	})
	auditLog(ctx, s.audit, s.logger, "fee_rate_updated", map[string]any{
		"rate_bps": bps,
	})

	s.logger.InfoContext(ctx, "admin_service: fee rate updated",
		slog.Int64("rate_bps", bps),
	)

	return nil
}

// SetFeeRecipient updates the fee payout address.
func (s *AdminService) SetFeeRecipient(ctx context.Context, caller common.Address, recipient common.Address) error {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("admin_service: zero fee recipient: %w", domain.ErrValidation)
	}

	if err := s.config.SetFeeRecipient(ctx, recipient, s.clock.Now()); err != nil {
		return fmt.Errorf("admin_service: set fee recipient: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventFeeRecipientUpdated,
		Actor:     caller,
		Recipient: recipient,
	})
	auditLog(ctx, s.audit, s.logger, "fee_recipient_updated", map[string]any{
		"recipient": recipient.Hex(),
	})

	return nil
}

// TransferOwnership hands the administrative capability to a new address.
func (s *AdminService) TransferOwnership(ctx context.Context, caller common.Address, newOwner common.Address) error {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("admin_service: zero owner address: %w", domain.ErrValidation)
	}

	if err := s.config.SetOwner(ctx, newOwner, s.clock.Now()); err != nil {
		return fmt.Errorf("admin_service: transfer ownership: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventOwnershipTransferred,
		Actor:     caller,
		Recipient: newOwner,
	})
	auditLog(ctx, s.audit, s.logger, "ownership_transferred", map[string]any{
		"previous": caller.Hex(),
		"new":      newOwner.Hex(),
	})

	s.logger.InfoContext(ctx, "admin_service: ownership transferred",
		slog.String("new_owner", newOwner.Hex()),
	)

	return nil
}

// FeeConfig returns the current platform configuration; no authorization is
// required for this read.
func (s *AdminService) FeeConfig(ctx context.Context) (domain.MarketConfig, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("admin_service: load config: %w", err)
	}
	return cfg, nil
}
