package janitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/service"
	"github.com/Vardominator/moltmarket/internal/store/memory"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type sweepFixture struct {
	listings *memory.ListingStore
	escrows  *memory.EscrowStore
	ledger   *memory.Ledger
	clock    *fakeClock
	escrow   *service.EscrowService
	listing  *service.ListingService
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	f := &sweepFixture{
		listings: memory.NewListingStore(),
		escrows:  memory.NewEscrowStore(),
		ledger:   memory.NewLedger(),
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	ctx := context.Background()
	config := memory.NewConfigStore()
	require.NoError(t, config.Ensure(ctx, domain.MarketConfig{
		Owner:        owner,
		FeeRateBps:   0,
		FeeRecipient: owner,
		UpdatedAt:    f.clock.Now(),
	}))
	require.NoError(t, f.ledger.Deposit(ctx, buyer, 10_000))

	logger := slog.New(slog.DiscardHandler)
	locks := memory.NewLockManager()
	bus := memory.NewEventBus()
	audit := memory.NewAuditStore()

	f.listing = service.NewListingService(f.listings, locks, bus, audit, f.clock, logger)
	f.escrow = service.NewEscrowService(f.listings, f.escrows, config, f.ledger, locks, bus, audit, f.clock, logger)
	return f
}

// deliveredListing creates a listing, purchases it, and marks it delivered.
func (f *sweepFixture) deliveredListing(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()

	l, err := f.listing.Create(ctx, seller, 100, domain.CategoryPrompt, "ipfs://QmArtifact")
	require.NoError(t, err)
	_, err = f.escrow.Purchase(ctx, buyer, l.ID, 100)
	require.NoError(t, err)
	require.NoError(t, f.escrow.MarkDelivered(ctx, seller, l.ID))
	return l.ID
}

func TestJanitorReleasesOverdueEscrows(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	overdueID := f.deliveredListing(t)
	disputedID := f.deliveredListing(t)
	require.NoError(t, f.escrow.RaiseDispute(ctx, buyer, disputedID))

	f.clock.Advance(domain.AutoReleaseGracePeriod + time.Hour)
	recentID := f.deliveredListing(t)

	j := New(f.escrows, f.escrow, nil, nil, 0, f.clock, logger)
	require.NoError(t, j.Run(ctx))

	// The overdue trade settled: escrow drained, listing sold, seller paid.
	e, err := f.escrows.GetByListing(ctx, overdueID)
	require.NoError(t, err)
	assert.Zero(t, e.Amount)
	l, err := f.listings.GetByID(ctx, overdueID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, l.Status)

	// The disputed trade is left for arbitration.
	e, err = f.escrows.GetByListing(ctx, disputedID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.Amount)

	// The recent trade is still inside its grace period.
	e, err = f.escrows.GetByListing(ctx, recentID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.Amount)

	bal, err := f.ledger.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)

	// A second run finds nothing to do.
	require.NoError(t, j.Run(ctx))
	e, err = f.escrows.GetByListing(ctx, disputedID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.Amount)
}

type fakeBlobStore struct {
	infos   []domain.BlobInfo
	deleted []string
}

func (f *fakeBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	return f.infos, nil
}

func (f *fakeBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	return false, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func TestJanitorPrunesExpiredArchives(t *testing.T) {
	f := newSweepFixture(t)
	logger := slog.New(slog.DiscardHandler)

	now := f.clock.Now()
	blobs := &fakeBlobStore{infos: []domain.BlobInfo{
		{Path: "archive/events/2025-04-01/aaa.jsonl", LastModified: now.Add(-61 * 24 * time.Hour)},
		{Path: "archive/events/2025-05-20/bbb.jsonl", LastModified: now.Add(-12 * 24 * time.Hour)},
	}}

	j := New(f.escrows, f.escrow, blobs, blobs, 30, f.clock, logger)
	require.NoError(t, j.Run(context.Background()))

	assert.Equal(t, []string{"archive/events/2025-04-01/aaa.jsonl"}, blobs.deleted)
}

func TestJanitorSkipsPruneWithoutBlobStorage(t *testing.T) {
	f := newSweepFixture(t)
	logger := slog.New(slog.DiscardHandler)

	j := New(f.escrows, f.escrow, nil, nil, 90, f.clock, logger)
	require.NoError(t, j.Run(context.Background()))
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

	t.Run("hourly", func(t *testing.T) {
		next, err := nextCronTime("0 * * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), next)
	})

	t.Run("daily at three", func(t *testing.T) {
		next, err := nextCronTime("0 3 * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("step", func(t *testing.T) {
		next, err := nextCronTime("*/20 * * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 1, 12, 40, 0, 0, time.UTC), next)
	})

	t.Run("range", func(t *testing.T) {
		next, err := nextCronTime("0 14-16 * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC), next)
	})

	t.Run("value out of range", func(t *testing.T) {
		_, err := nextCronTime("61 * * * *", after)
		require.Error(t, err)
	})

	t.Run("comma list", func(t *testing.T) {
		next, err := nextCronTime("15,45 * * * *", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 6, 1, 12, 45, 0, 0, time.UTC), next)
	})

	t.Run("malformed expression", func(t *testing.T) {
		_, err := nextCronTime("not a cron", after)
		require.Error(t, err)
	})
}
