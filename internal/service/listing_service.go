package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ListingService owns listing identity and the creation/cancellation side of
// the lifecycle. Purchase and everything after it belongs to EscrowService.
type ListingService struct {
	listings domain.ListingStore
	locks    domain.LockManager
	bus      domain.EventBus
	audit    domain.AuditStore
	clock    domain.Clock
	logger   *slog.Logger
}

// NewListingService creates a ListingService with all required dependencies.
func NewListingService(
	listings domain.ListingStore,
	locks domain.LockManager,
	bus domain.EventBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		listings: listings,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		clock:    clock,
		logger:   logger,
	}
}

// Create validates and stores a new active listing, returning it with the
// allocated id. Ids are strictly increasing from 1 and never reused.
func (s *ListingService) Create(ctx context.Context, seller common.Address, price int64, category domain.Category, metadataRef string) (domain.Listing, error) {
	if price <= 0 {
		return domain.Listing{}, fmt.Errorf("listing_service: price %d must be positive: %w", price, domain.ErrValidation)
	}
	metadataRef = strings.TrimSpace(metadataRef)
	if metadataRef == "" {
		return domain.Listing{}, fmt.Errorf("listing_service: empty metadata ref: %w", domain.ErrValidation)
	}
	if !domain.ValidCategory(category) {
		return domain.Listing{}, fmt.Errorf("listing_service: unknown category %q: %w", category, domain.ErrValidation)
	}

	listing := domain.Listing{
		Seller:      seller,
		Price:       price,
		Category:    category,
		MetadataRef: metadataRef,
		Status:      domain.ListingStatusActive,
		CreatedAt:   s.clock.Now(),
	}

	id, err := s.listings.Create(ctx, listing)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: create: %w", err)
	}
	listing.ID = id

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventListingCreated,
		ListingID: id,
		Actor:     seller,
		Seller:    seller,
		Category:  category,
		Amount:    price,
	})
	auditLog(ctx, s.audit, s.logger, "listing_created", map[string]any{
		"listing_id": id,
		"seller":     seller.Hex(),
		"price":      price,
		"category":   string(category),
	})

	s.logger.InfoContext(ctx, "listing_service: created listing",
		slog.Int64("listing_id", id),
		slog.String("seller", seller.Hex()),
		slog.Int64("price", price),
	)

	return listing, nil
}

// Cancel withdraws an active listing. Only the seller may cancel, and only
// while the listing is still active; a purchase makes cancellation impossible
// because it takes the same per-listing lock.
func (s *ListingService) Cancel(ctx context.Context, caller common.Address, id int64) error {
	unlock, err := s.locks.Acquire(ctx, listingLockKey(id), listingLockTTL)
	if err != nil {
		return fmt.Errorf("listing_service: lock listing %d: %w", id, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("listing_service: get listing %d: %w", id, err)
	}
	if listing.Seller != caller {
		return fmt.Errorf("listing_service: caller is not the seller of listing %d: %w", id, domain.ErrUnauthorized)
	}
	if listing.Status != domain.ListingStatusActive {
		return fmt.Errorf("listing_service: listing %d is %s: %w", id, listing.Status, domain.ErrInvalidState)
	}

	listing.Status = domain.ListingStatusCancelled
	if err := s.listings.Update(ctx, listing); err != nil {
		return fmt.Errorf("listing_service: cancel listing %d: %w", id, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventListingCancelled,
		ListingID: id,
		Actor:     caller,
		Seller:    listing.Seller,
	})
	auditLog(ctx, s.audit, s.logger, "listing_cancelled", map[string]any{
		"listing_id": id,
		"seller":     caller.Hex(),
	})

	s.logger.InfoContext(ctx, "listing_service: cancelled listing",
		slog.Int64("listing_id", id),
	)

	return nil
}
