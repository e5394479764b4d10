package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// EscrowStore implements domain.EscrowStore with a mutex-guarded map keyed by
// listing id. Records are never deleted; settlement zeroes the amount.
type EscrowStore struct {
	mu      sync.RWMutex
	escrows map[int64]domain.Escrow
}

// NewEscrowStore creates an empty EscrowStore.
func NewEscrowStore() *EscrowStore {
	return &EscrowStore{escrows: make(map[int64]domain.Escrow)}
}

// Create stores a new escrow record. It returns domain.ErrConflict when a
// record for the listing already exists.
func (s *EscrowStore) Create(ctx context.Context, e domain.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.escrows[e.ListingID]; ok {
		return domain.ErrConflict
	}
	s.escrows[e.ListingID] = e
	return nil
}

// GetByListing retrieves the escrow for a listing, returning
// domain.ErrNotFound when the listing was never purchased.
func (s *EscrowStore) GetByListing(ctx context.Context, listingID int64) (domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.escrows[listingID]
	if !ok {
		return domain.Escrow{}, domain.ErrNotFound
	}
	return e, nil
}

// Update replaces the stored escrow record.
func (s *EscrowStore) Update(ctx context.Context, e domain.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.escrows[e.ListingID]; !ok {
		return domain.ErrNotFound
	}
	s.escrows[e.ListingID] = e
	return nil
}

// ListReleasable returns escrows still holding funds where the seller has
// delivered, the buyer has not confirmed, and the lock predates the cutoff.
func (s *EscrowStore) ListReleasable(ctx context.Context, lockedBefore time.Time) ([]domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Escrow
	for _, e := range s.escrows {
		if e.Amount > 0 && e.SellerDelivered && !e.BuyerConfirmed && !e.LockedAt.After(lockedBefore) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, nil
}

// Compile-time interface check.
var _ domain.EscrowStore = (*EscrowStore)(nil)
