package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore persists listings. Create allocates the listing id from a
// strictly increasing sequence starting at 1; ids are never reused, even
// after cancellation.
type ListingStore interface {
	Create(ctx context.Context, l Listing) (int64, error)
	GetByID(ctx context.Context, id int64) (Listing, error)
	Update(ctx context.Context, l Listing) error
	ListActive(ctx context.Context, category Category, opts ListOpts) ([]Listing, error)
	IDsBySeller(ctx context.Context, seller common.Address) ([]int64, error)
	IDsByBuyer(ctx context.Context, buyer common.Address) ([]int64, error)
	Count(ctx context.Context) (int64, error)
}

// EscrowStore persists escrow records keyed 1:1 by listing id. Records are
// never deleted; settlement zeroes the amount in place.
//
// ListReleasable returns active escrows whose seller has marked delivery,
// whose buyer has not confirmed, and that were locked at or before the given
// cutoff. Callers pass now minus the grace period to find trades eligible for
// auto-release.
type EscrowStore interface {
	Create(ctx context.Context, e Escrow) error
	GetByListing(ctx context.Context, listingID int64) (Escrow, error)
	Update(ctx context.Context, e Escrow) error
	ListReleasable(ctx context.Context, lockedBefore time.Time) ([]Escrow, error)
}

// RegistryStore persists agent name bindings. Bind atomically releases any
// name previously held by the address before claiming the new one, keeping
// the name->address and address->name mappings mutually consistent.
type RegistryStore interface {
	Bind(ctx context.Context, b AgentBinding) error
	GetByName(ctx context.Context, name string) (AgentBinding, error)
	GetByAddress(ctx context.Context, addr common.Address) (AgentBinding, error)
}

// ConfigStore persists the owner-mutable platform configuration as a single
// record. Ensure seeds the record when it does not exist yet and is a no-op
// otherwise.
type ConfigStore interface {
	Ensure(ctx context.Context, cfg MarketConfig) error
	Get(ctx context.Context) (MarketConfig, error)
	SetFeeRate(ctx context.Context, bps int64, at time.Time) error
	SetFeeRecipient(ctx context.Context, addr common.Address, at time.Time) error
	SetOwner(ctx context.Context, addr common.Address, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
