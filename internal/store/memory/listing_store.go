// Package memory implements the domain store, ledger, lock, and event-bus
// interfaces with in-process data structures. It backs standalone mode (no
// external services) and the service-level tests.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ListingStore implements domain.ListingStore with mutex-guarded maps and
// append-only per-seller / per-buyer id indexes.
type ListingStore struct {
	mu       sync.RWMutex
	nextID   int64
	listings map[int64]domain.Listing
	bySeller map[common.Address][]int64
	byBuyer  map[common.Address][]int64
}

// NewListingStore creates an empty ListingStore. The first allocated id is 1.
func NewListingStore() *ListingStore {
	return &ListingStore{
		nextID:   1,
		listings: make(map[int64]domain.Listing),
		bySeller: make(map[common.Address][]int64),
		byBuyer:  make(map[common.Address][]int64),
	}
}

// Create stores the listing under the next id in the sequence and appends the
// id to the seller's index. Ids are never reused, even across cancellations.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.nextID
	s.nextID++

	s.listings[l.ID] = l
	s.bySeller[l.Seller] = append(s.bySeller[l.Seller], l.ID)
	return l.ID, nil
}

// GetByID retrieves a listing, returning domain.ErrNotFound when absent.
func (s *ListingStore) GetByID(ctx context.Context, id int64) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

// Update replaces the stored listing. When a buyer is assigned for the first
// time the id is appended to the buyer's purchase index.
func (s *ListingStore) Update(ctx context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.listings[l.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if l.HasBuyer() && !prev.HasBuyer() {
		s.byBuyer[l.Buyer] = append(s.byBuyer[l.Buyer], l.ID)
	}
	s.listings[l.ID] = l
	return nil
}

// ListActive returns active listings in id order, optionally filtered by
// category, with pagination applied.
func (s *ListingStore) ListActive(ctx context.Context, category domain.Category, opts domain.ListOpts) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Listing
	for id := int64(1); id < s.nextID; id++ {
		l, ok := s.listings[id]
		if !ok || l.Status != domain.ListingStatusActive {
			continue
		}
		if category != "" && l.Category != category {
			continue
		}
		out = append(out, l)
	}

	return paginate(out, opts), nil
}

// IDsBySeller returns the seller's listing ids in creation order.
func (s *ListingStore) IDsBySeller(ctx context.Context, seller common.Address) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.bySeller[seller]...), nil
}

// IDsByBuyer returns the buyer's purchased listing ids in purchase order.
func (s *ListingStore) IDsByBuyer(ctx context.Context, buyer common.Address) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.byBuyer[buyer]...), nil
}

// Count returns the total number of listings ever created.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.listings)), nil
}

func paginate(in []domain.Listing, opts domain.ListOpts) []domain.Listing {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
