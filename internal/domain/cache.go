package domain

import (
	"context"
	"time"
)

// ListingCache provides fast listing lookups for the query layer. It is
// maintained by the indexer from the event stream, never by the core.
type ListingCache interface {
	Set(ctx context.Context, l Listing) error
	Get(ctx context.Context, id int64) (Listing, error)
	Invalidate(ctx context.Context, id int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides the per-listing serialization point: every mutating
// escrow operation holds the listing's lock from validation until the
// bookkeeping mutation and any fund transfer have committed or rolled back
// together.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
