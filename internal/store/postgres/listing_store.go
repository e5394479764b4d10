package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. Listing ids
// come from the table's BIGSERIAL, so they increase monotonically and are
// never reused after cancellation.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

var _ domain.ListingStore = (*ListingStore)(nil)

// The buyer column holds the empty string until a purchase assigns one; the
// zero address would still scan, but the empty string keeps the partial
// buyer index small.
func buyerColumn(l domain.Listing) string {
	if !l.HasBuyer() {
		return ""
	}
	return l.Buyer.Hex()
}

// Create inserts a new listing and returns the allocated id.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) (int64, error) {
	const query = `
		INSERT INTO listings (seller, price, category, metadata_ref, status, buyer, created_at, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		l.Seller.Hex(), l.Price, string(l.Category), l.MetadataRef,
		string(l.Status), buyerColumn(l), l.CreatedAt, l.SoldAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create listing: %w", err)
	}
	return id, nil
}

const listingSelectCols = `id, seller, price, category, metadata_ref, status, buyer, created_at, sold_at`

func scanListing(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var seller, category, status, buyer string

	err := scanner.Scan(
		&l.ID, &seller, &l.Price, &category, &l.MetadataRef,
		&status, &buyer, &l.CreatedAt, &l.SoldAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Seller = common.HexToAddress(seller)
	l.Category = domain.Category(category)
	l.Status = domain.ListingStatus(status)
	if buyer != "" {
		l.Buyer = common.HexToAddress(buyer)
	}
	return l, nil
}

// GetByID retrieves a single listing.
func (s *ListingStore) GetByID(ctx context.Context, id int64) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

// Update rewrites the mutable columns of an existing listing.
func (s *ListingStore) Update(ctx context.Context, l domain.Listing) error {
	const query = `
		UPDATE listings
		SET price = $2, metadata_ref = $3, status = $4, buyer = $5, sold_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		l.ID, l.Price, l.MetadataRef, string(l.Status), buyerColumn(l), l.SoldAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing %d: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns active listings in ascending id order, optionally
// filtered by category.
func (s *ListingStore) ListActive(ctx context.Context, category domain.Category, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, string(category))
		argIdx++
	}

	query += " ORDER BY id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active listings rows: %w", err)
	}
	return listings, nil
}

// IDsBySeller returns every listing id the seller has ever created, in
// ascending order.
func (s *ListingStore) IDsBySeller(ctx context.Context, seller common.Address) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM listings WHERE seller = $1 ORDER BY id ASC`, seller.Hex())
}

// IDsByBuyer returns every listing id the buyer has committed funds to, in
// ascending order.
func (s *ListingStore) IDsByBuyer(ctx context.Context, buyer common.Address) ([]int64, error) {
	return s.ids(ctx, `SELECT id FROM listings WHERE buyer = $1 ORDER BY id ASC`, buyer.Hex())
}

func (s *ListingStore) ids(ctx context.Context, query, addr string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, addr)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listing ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of listings ever created.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return n, nil
}
