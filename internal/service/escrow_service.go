package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// EscrowService is the settlement engine. It owns fund custody from purchase
// to payout: the delivery/confirmation handshake, fee computation, dispute
// arbitration, and the timeout auto-release.
//
// Every mutating operation runs under the listing's lock, and bookkeeping
// state is always written before funds move. The escrow's zero-amount
// sentinel makes settlement idempotent: once the amount is cleared, no path
// can pay out again.
type EscrowService struct {
	listings domain.ListingStore
	escrows  domain.EscrowStore
	config   domain.ConfigStore
	ledger   domain.Ledger
	locks    domain.LockManager
	bus      domain.EventBus
	audit    domain.AuditStore
	clock    domain.Clock
	logger   *slog.Logger
}

// NewEscrowService creates an EscrowService with all required dependencies.
func NewEscrowService(
	listings domain.ListingStore,
	escrows domain.EscrowStore,
	config domain.ConfigStore,
	ledger domain.Ledger,
	locks domain.LockManager,
	bus domain.EventBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *EscrowService {
	return &EscrowService{
		listings: listings,
		escrows:  escrows,
		config:   config,
		ledger:   ledger,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		clock:    clock,
		logger:   logger,
	}
}

// Purchase locks the buyer's payment in escrow against an active listing.
// The payment must match the listing price exactly, and a seller cannot buy
// their own listing. The listing status stays Active; the escrow record is
// what signals "in trade".
func (s *EscrowService) Purchase(ctx context.Context, buyer common.Address, id int64, payment int64) (domain.Escrow, error) {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.Escrow{}, fmt.Errorf("escrow_service: listing %d is %s: %w", id, listing.Status, domain.ErrInvalidState)
	}
	if listing.HasBuyer() {
		return domain.Escrow{}, fmt.Errorf("escrow_service: listing %d already purchased: %w", id, domain.ErrInvalidState)
	}
	if buyer == listing.Seller {
		return domain.Escrow{}, fmt.Errorf("escrow_service: seller cannot buy own listing %d: %w", id, domain.ErrValidation)
	}
	if payment != listing.Price {
		return domain.Escrow{}, fmt.Errorf("escrow_service: payment %d does not match price %d: %w", payment, listing.Price, domain.ErrValidation)
	}

	// Move the funds into the vault before any bookkeeping so a failed debit
	// leaves no trace of the purchase.
	if err := s.ledger.Transfer(ctx, buyer, domain.EscrowVault, payment); err != nil {
		return domain.Escrow{}, fmt.Errorf("escrow_service: lock funds for listing %d: %w", id, err)
	}

	escrow := domain.Escrow{
		ListingID: id,
		Amount:    payment,
		LockedAt:  s.clock.Now(),
	}
	if err := s.escrows.Create(ctx, escrow); err != nil {
		s.refund(ctx, buyer, payment, id)
		return domain.Escrow{}, fmt.Errorf("escrow_service: create escrow for listing %d: %w", id, err)
	}

	listing.Buyer = buyer
	if err := s.listings.Update(ctx, listing); err != nil {
		s.refund(ctx, buyer, payment, id)
		return domain.Escrow{}, fmt.Errorf("escrow_service: assign buyer on listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventPurchaseInitiated,
		ListingID: id,
		Actor:     buyer,
		Buyer:     buyer,
		Seller:    listing.Seller,
		Amount:    payment,
	})
	auditLog(ctx, s.audit, s.logger, "purchase_initiated", map[string]any{
		"listing_id": id,
		"buyer":      buyer.Hex(),
		"amount":     payment,
	})

	s.logger.InfoContext(ctx, "escrow_service: funds locked",
		slog.Int64("listing_id", id),
		slog.String("buyer", buyer.Hex()),
		slog.Int64("amount", payment),
	)

	return escrow, nil
}

// MarkDelivered records the seller's delivery signal. If the buyer has
// already confirmed, settlement runs immediately.
func (s *EscrowService) MarkDelivered(ctx context.Context, caller common.Address, id int64) error {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if listing.Seller != caller {
		return fmt.Errorf("escrow_service: caller is not the seller of listing %d: %w", id, domain.ErrUnauthorized)
	}

	escrow, err := s.activeEscrow(ctx, id)
	if err != nil {
		return err
	}
	if escrow.SellerDelivered {
		return fmt.Errorf("escrow_service: listing %d already marked delivered: %w", id, domain.ErrInvalidState)
	}

	escrow.SellerDelivered = true
	if err := s.escrows.Update(ctx, escrow); err != nil {
		return fmt.Errorf("escrow_service: mark delivered on listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventDeliveryMarked,
		ListingID: id,
		Actor:     caller,
		Seller:    listing.Seller,
		Buyer:     listing.Buyer,
	})

	if escrow.BuyerConfirmed {
		if settleErr := s.settle(ctx, listing, escrow, false); settleErr != nil {
			// The delivery flag is part of the aborted mutation: revert it so
			// the operation can be re-submitted once the cause is fixed.
			escrow.SellerDelivered = false
			if revertErr := s.escrows.Update(ctx, escrow); revertErr != nil {
				s.logger.ErrorContext(ctx, "escrow_service: delivery flag revert failed",
					slog.Int64("listing_id", id),
					slog.String("error", revertErr.Error()),
				)
			}
			return settleErr
		}
	}
	return nil
}

// ConfirmReceipt records the buyer's confirmation signal. If the seller has
// already marked delivery, settlement runs immediately.
func (s *EscrowService) ConfirmReceipt(ctx context.Context, caller common.Address, id int64) error {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if listing.Buyer != caller || !listing.HasBuyer() {
		return fmt.Errorf("escrow_service: caller is not the buyer of listing %d: %w", id, domain.ErrUnauthorized)
	}

	escrow, err := s.activeEscrow(ctx, id)
	if err != nil {
		return err
	}
	if escrow.BuyerConfirmed {
		return fmt.Errorf("escrow_service: listing %d already confirmed: %w", id, domain.ErrInvalidState)
	}

	escrow.BuyerConfirmed = true
	if err := s.escrows.Update(ctx, escrow); err != nil {
		return fmt.Errorf("escrow_service: confirm receipt on listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventReceiptConfirmed,
		ListingID: id,
		Actor:     caller,
		Seller:    listing.Seller,
		Buyer:     listing.Buyer,
	})

	if escrow.SellerDelivered {
		if settleErr := s.settle(ctx, listing, escrow, false); settleErr != nil {
			escrow.BuyerConfirmed = false
			if revertErr := s.escrows.Update(ctx, escrow); revertErr != nil {
				s.logger.ErrorContext(ctx, "escrow_service: confirmation flag revert failed",
					slog.Int64("listing_id", id),
					slog.String("error", revertErr.Error()),
				)
			}
			return settleErr
		}
	}
	return nil
}

// RaiseDispute freezes the trade for owner arbitration. Either party may
// raise it while funds are locked; no funds move.
func (s *EscrowService) RaiseDispute(ctx context.Context, caller common.Address, id int64) error {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if caller != listing.Seller && caller != listing.Buyer {
		return fmt.Errorf("escrow_service: caller is not a party to listing %d: %w", id, domain.ErrUnauthorized)
	}
	if listing.Status == domain.ListingStatusDisputed {
		return fmt.Errorf("escrow_service: listing %d already disputed: %w", id, domain.ErrInvalidState)
	}

	if _, err := s.activeEscrow(ctx, id); err != nil {
		return err
	}

	listing.Status = domain.ListingStatusDisputed
	if err := s.listings.Update(ctx, listing); err != nil {
		return fmt.Errorf("escrow_service: dispute listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventDisputeRaised,
		ListingID: id,
		Actor:     caller,
		Seller:    listing.Seller,
		Buyer:     listing.Buyer,
	})
	auditLog(ctx, s.audit, s.logger, "dispute_raised", map[string]any{
		"listing_id": id,
		"raised_by":  caller.Hex(),
	})

	return nil
}

// ResolveDispute is the owner's arbitration override: the full locked amount
// goes to the declared winner with no fee deducted. The listing status stays
// Disputed afterwards, mirroring the source contract; the zeroed escrow
// amount is what marks the trade settled.
func (s *EscrowService) ResolveDispute(ctx context.Context, caller common.Address, id int64, winner common.Address) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("escrow_service: load config: %w", err)
	}
	if caller != cfg.Owner {
		return fmt.Errorf("escrow_service: caller is not the owner: %w", domain.ErrUnauthorized)
	}

	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if listing.Status != domain.ListingStatusDisputed {
		return fmt.Errorf("escrow_service: listing %d is not disputed: %w", id, domain.ErrInvalidState)
	}
	if winner != listing.Seller && winner != listing.Buyer {
		return fmt.Errorf("escrow_service: winner must be buyer or seller of listing %d: %w", id, domain.ErrValidation)
	}

	escrow, err := s.activeEscrow(ctx, id)
	if err != nil {
		return err
	}

	amount := escrow.Amount
	escrow.Amount = 0
	if err := s.escrows.Update(ctx, escrow); err != nil {
		return fmt.Errorf("escrow_service: clear escrow for listing %d: %w", id, err)
	}

	if err := s.ledger.Transfer(ctx, domain.EscrowVault, winner, amount); err != nil {
		// Restore the locked amount so the dispute can be resolved again
		// once the transfer's external cause is fixed.
		escrow.Amount = amount
		if restoreErr := s.escrows.Update(ctx, escrow); restoreErr != nil {
			s.logger.ErrorContext(ctx, "escrow_service: rollback after failed arbitration payout failed",
				slog.Int64("listing_id", id),
				slog.String("error", restoreErr.Error()),
			)
		}
		return fmt.Errorf("escrow_service: arbitration payout for listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventDisputeResolved,
		ListingID: id,
		Actor:     caller,
		Seller:    listing.Seller,
		Buyer:     listing.Buyer,
		Winner:    winner,
		Amount:    amount,
	})
	auditLog(ctx, s.audit, s.logger, "dispute_resolved", map[string]any{
		"listing_id": id,
		"winner":     winner.Hex(),
		"amount":     amount,
	})

	s.logger.InfoContext(ctx, "escrow_service: dispute resolved",
		slog.Int64("listing_id", id),
		slog.String("winner", winner.Hex()),
		slog.Int64("amount", amount),
	)

	return nil
}

// AutoRelease is the permissionless dead-man's-switch: once the seller has
// marked delivery and the grace period has elapsed without buyer confirmation
// or dispute, anyone may force the trade to settle as if the buyer had
// confirmed.
func (s *EscrowService) AutoRelease(ctx context.Context, caller common.Address, id int64) error {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("escrow_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("escrow_service: get listing %d: %w", id, err)
	}
	if listing.Status == domain.ListingStatusDisputed {
		return fmt.Errorf("escrow_service: listing %d is disputed: %w", id, domain.ErrInvalidState)
	}

	escrow, err := s.activeEscrow(ctx, id)
	if err != nil {
		return err
	}
	if !escrow.SellerDelivered {
		return fmt.Errorf("escrow_service: listing %d not marked delivered: %w", id, domain.ErrInvalidState)
	}
	if s.clock.Now().Before(escrow.ReleasableAt()) {
		return fmt.Errorf("escrow_service: grace period for listing %d not elapsed: %w", id, domain.ErrInvalidState)
	}

	escrow.BuyerConfirmed = true
	if err := s.escrows.Update(ctx, escrow); err != nil {
		return fmt.Errorf("escrow_service: force confirm on listing %d: %w", id, err)
	}

	s.logger.InfoContext(ctx, "escrow_service: auto-release triggered",
		slog.Int64("listing_id", id),
		slog.String("caller", caller.Hex()),
	)

	if settleErr := s.settle(ctx, listing, escrow, true); settleErr != nil {
		escrow.BuyerConfirmed = false
		if revertErr := s.escrows.Update(ctx, escrow); revertErr != nil {
			s.logger.ErrorContext(ctx, "escrow_service: confirmation flag revert failed",
				slog.Int64("listing_id", id),
				slog.String("error", revertErr.Error()),
			)
		}
		return settleErr
	}
	return nil
}

// settle runs the fee split and payout. It must be called with the listing
// lock held and both handshake flags true. Bookkeeping is committed first:
// the escrow amount is zeroed and the listing marked sold before any value
// moves, so a re-entrant call sees an inactive escrow. A transfer failure
// rolls the bookkeeping back and refunds any partial payout, surfacing a
// TransferError with prior state intact.
func (s *EscrowService) settle(ctx context.Context, listing domain.Listing, escrow domain.Escrow, autoReleased bool) error {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return fmt.Errorf("escrow_service: load config: %w", err)
	}

	amount := escrow.Amount
	fee, sellerAmount := domain.SplitFee(amount, cfg.FeeRateBps)

	prevStatus := listing.Status
	prevSoldAt := listing.SoldAt

	escrow.Amount = 0
	if err := s.escrows.Update(ctx, escrow); err != nil {
		return fmt.Errorf("escrow_service: clear escrow for listing %d: %w", listing.ID, err)
	}

	now := s.clock.Now()
	listing.Status = domain.ListingStatusSold
	listing.SoldAt = &now
	if err := s.listings.Update(ctx, listing); err != nil {
		escrow.Amount = amount
		if restoreErr := s.escrows.Update(ctx, escrow); restoreErr != nil {
			s.logger.ErrorContext(ctx, "escrow_service: escrow restore failed",
				slog.Int64("listing_id", listing.ID),
				slog.String("error", restoreErr.Error()),
			)
		}
		return fmt.Errorf("escrow_service: mark listing %d sold: %w", listing.ID, err)
	}

	rollback := func() {
		escrow.Amount = amount
		if err := s.escrows.Update(ctx, escrow); err != nil {
			s.logger.ErrorContext(ctx, "escrow_service: escrow restore failed",
				slog.Int64("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
		}
		listing.Status = prevStatus
		listing.SoldAt = prevSoldAt
		if err := s.listings.Update(ctx, listing); err != nil {
			s.logger.ErrorContext(ctx, "escrow_service: listing restore failed",
				slog.Int64("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if fee > 0 {
		if err := s.ledger.Transfer(ctx, domain.EscrowVault, cfg.FeeRecipient, fee); err != nil {
			rollback()
			return fmt.Errorf("escrow_service: fee transfer for listing %d: %w", listing.ID, err)
		}
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowVault, listing.Seller, sellerAmount); err != nil {
		// Undo the fee leg so the payout is all-or-nothing.
		if fee > 0 {
			if undoErr := s.ledger.Transfer(ctx, cfg.FeeRecipient, domain.EscrowVault, fee); undoErr != nil {
				s.logger.ErrorContext(ctx, "escrow_service: fee refund failed",
					slog.Int64("listing_id", listing.ID),
					slog.String("error", undoErr.Error()),
				)
			}
		}
		rollback()
		return fmt.Errorf("escrow_service: seller payout for listing %d: %w", listing.ID, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:         domain.EventPurchaseCompleted,
		ListingID:    listing.ID,
		Actor:        listing.Buyer,
		Seller:       listing.Seller,
		Buyer:        listing.Buyer,
		Amount:       amount,
		Fee:          fee,
		AutoReleased: autoReleased,
	})
	auditLog(ctx, s.audit, s.logger, "purchase_completed", map[string]any{
		"listing_id":    listing.ID,
		"seller":        listing.Seller.Hex(),
		"buyer":         listing.Buyer.Hex(),
		"amount":        amount,
		"fee":           fee,
		"auto_released": autoReleased,
	})

	s.logger.InfoContext(ctx, "escrow_service: trade settled",
		slog.Int64("listing_id", listing.ID),
		slog.Int64("amount", amount),
		slog.Int64("fee", fee),
		slog.Bool("auto_released", autoReleased),
	)

	return nil
}

// activeEscrow loads the escrow for a listing and verifies funds are still
// locked. A missing record and a zeroed amount are the same condition: there
// is nothing to operate on.
func (s *EscrowService) activeEscrow(ctx context.Context, id int64) (domain.Escrow, error) {
	escrow, err := s.escrows.GetByListing(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Escrow{}, fmt.Errorf("escrow_service: no active escrow for listing %d: %w", id, domain.ErrInvalidState)
		}
		return domain.Escrow{}, fmt.Errorf("escrow_service: get escrow for listing %d: %w", id, err)
	}
	if !escrow.Active() {
		return domain.Escrow{}, fmt.Errorf("escrow_service: escrow for listing %d already settled: %w", id, domain.ErrInvalidState)
	}
	return escrow, nil
}

// refund returns locked funds to the buyer after a bookkeeping failure during
// purchase. Failure here is logged loudly: funds would be stranded in the
// vault and need operator intervention.
func (s *EscrowService) refund(ctx context.Context, buyer common.Address, amount int64, id int64) {
	if err := s.ledger.Transfer(ctx, domain.EscrowVault, buyer, amount); err != nil {
		s.logger.ErrorContext(ctx, "escrow_service: refund after failed purchase failed",
			slog.Int64("listing_id", id),
			slog.String("buyer", buyer.Hex()),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}
