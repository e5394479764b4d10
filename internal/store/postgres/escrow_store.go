package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// EscrowStore implements domain.EscrowStore using PostgreSQL. Rows are keyed
// 1:1 by listing id and never deleted; settlement zeroes the amount.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates an EscrowStore backed by the given connection pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

var _ domain.EscrowStore = (*EscrowStore)(nil)

// Create inserts the escrow record for a freshly purchased listing.
func (s *EscrowStore) Create(ctx context.Context, e domain.Escrow) error {
	const query = `
		INSERT INTO escrows (listing_id, amount, buyer_confirmed, seller_delivered, locked_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		e.ListingID, e.Amount, e.BuyerConfirmed, e.SellerDelivered, e.LockedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create escrow for listing %d: %w", e.ListingID, err)
	}
	return nil
}

// GetByListing retrieves the escrow record for a listing.
func (s *EscrowStore) GetByListing(ctx context.Context, listingID int64) (domain.Escrow, error) {
	const query = `
		SELECT listing_id, amount, buyer_confirmed, seller_delivered, locked_at
		FROM escrows WHERE listing_id = $1`

	var e domain.Escrow
	err := s.pool.QueryRow(ctx, query, listingID).Scan(
		&e.ListingID, &e.Amount, &e.BuyerConfirmed, &e.SellerDelivered, &e.LockedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escrow{}, domain.ErrNotFound
		}
		return domain.Escrow{}, fmt.Errorf("postgres: get escrow for listing %d: %w", listingID, err)
	}
	return e, nil
}

// Update rewrites the mutable columns of an escrow record.
func (s *EscrowStore) Update(ctx context.Context, e domain.Escrow) error {
	const query = `
		UPDATE escrows
		SET amount = $2, buyer_confirmed = $3, seller_delivered = $4
		WHERE listing_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		e.ListingID, e.Amount, e.BuyerConfirmed, e.SellerDelivered,
	)
	if err != nil {
		return fmt.Errorf("postgres: update escrow for listing %d: %w", e.ListingID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListReleasable returns escrows still holding funds where the seller has
// delivered, the buyer has not confirmed, and the lock predates the cutoff.
func (s *EscrowStore) ListReleasable(ctx context.Context, lockedBefore time.Time) ([]domain.Escrow, error) {
	const query = `
		SELECT listing_id, amount, buyer_confirmed, seller_delivered, locked_at
		FROM escrows
		WHERE amount > 0 AND seller_delivered AND NOT buyer_confirmed AND locked_at <= $1
		ORDER BY listing_id ASC`

	rows, err := s.pool.Query(ctx, query, lockedBefore)
	if err != nil {
		return nil, fmt.Errorf("postgres: list releasable escrows: %w", err)
	}
	defer rows.Close()

	var out []domain.Escrow
	for rows.Next() {
		var e domain.Escrow
		if err := rows.Scan(&e.ListingID, &e.Amount, &e.BuyerConfirmed, &e.SellerDelivered, &e.LockedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan releasable escrow: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list releasable escrows: %w", err)
	}
	return out, nil
}
