package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// QueryService exposes the read-only projections: listing and escrow lookup,
// per-seller and per-buyer id sequences, active-listing browsing, and ledger
// balances. It has no side effects and requires no authorization.
type QueryService struct {
	listings domain.ListingStore
	escrows  domain.EscrowStore
	ledger   domain.Ledger
	cache    domain.ListingCache // may be nil when no cache is wired
	logger   *slog.Logger
}

// NewQueryService creates a QueryService. cache may be nil.
func NewQueryService(
	listings domain.ListingStore,
	escrows domain.EscrowStore,
	ledger domain.Ledger,
	cache domain.ListingCache,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		listings: listings,
		escrows:  escrows,
		ledger:   ledger,
		cache:    cache,
		logger:   logger,
	}
}

// GetListing retrieves a listing by id, checking the cache first and falling
// back to the store on a miss.
func (s *QueryService) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	if s.cache != nil {
		if l, err := s.cache.Get(ctx, id); err == nil {
			return l, nil
		}
	}

	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("query_service: get listing %d: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, l); cacheErr != nil {
			s.logger.WarnContext(ctx, "query_service: cache set failed",
				slog.Int64("listing_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return l, nil
}

// GetEscrow retrieves the escrow record for a listing. An Amount of zero
// means the trade has been paid out (or arbitrated), whatever the listing
// status says.
func (s *QueryService) GetEscrow(ctx context.Context, id int64) (domain.Escrow, error) {
	e, err := s.escrows.GetByListing(ctx, id)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("query_service: get escrow %d: %w", id, err)
	}
	return e, nil
}

// SellerListings returns the seller's listing ids in creation order.
func (s *QueryService) SellerListings(ctx context.Context, seller common.Address) ([]int64, error) {
	ids, err := s.listings.IDsBySeller(ctx, seller)
	if err != nil {
		return nil, fmt.Errorf("query_service: seller listings for %s: %w", seller.Hex(), err)
	}
	return ids, nil
}

// BuyerPurchases returns the buyer's purchased listing ids in purchase order.
func (s *QueryService) BuyerPurchases(ctx context.Context, buyer common.Address) ([]int64, error) {
	ids, err := s.listings.IDsByBuyer(ctx, buyer)
	if err != nil {
		return nil, fmt.Errorf("query_service: buyer purchases for %s: %w", buyer.Hex(), err)
	}
	return ids, nil
}

// BrowseActive returns active listings, optionally filtered by category.
func (s *QueryService) BrowseActive(ctx context.Context, category domain.Category, opts domain.ListOpts) ([]domain.Listing, error) {
	if category != "" && !domain.ValidCategory(category) {
		return nil, fmt.Errorf("query_service: unknown category %q: %w", category, domain.ErrValidation)
	}
	listings, err := s.listings.ListActive(ctx, category, opts)
	if err != nil {
		return nil, fmt.Errorf("query_service: browse active: %w", err)
	}
	return listings, nil
}

// Count returns the total number of listings ever created.
func (s *QueryService) Count(ctx context.Context) (int64, error) {
	n, err := s.listings.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("query_service: count: %w", err)
	}
	return n, nil
}

// Balance returns the ledger balance of an address.
func (s *QueryService) Balance(ctx context.Context, addr common.Address) (int64, error) {
	b, err := s.ledger.Balance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("query_service: balance of %s: %w", addr.Hex(), err)
	}
	return b, nil
}
