package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
)

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("locks exact payment in the vault", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)

		e := f.purchase(t, l.ID)
		assert.Equal(t, int64(100), e.Amount)
		assert.False(t, e.BuyerConfirmed)
		assert.False(t, e.SellerDelivered)

		assert.Equal(t, int64(9_900), f.balance(t, buyer))
		assert.Equal(t, int64(100), f.balance(t, domain.EscrowVault))

		got, err := f.listings.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, buyer, got.Buyer)
		// Status stays Active until settlement; the escrow record is what
		// signals an in-flight trade.
		assert.Equal(t, domain.ListingStatusActive, got.Status)

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventPurchaseInitiated, ev.Kind)
		assert.Equal(t, int64(100), ev.Amount)
	})

	t.Run("rejects wrong payment amount", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)

		for _, payment := range []int64{99, 101, 0, -5} {
			_, err := f.escrowSvc.Purchase(ctx, buyer, l.ID, payment)
			assert.ErrorIs(t, err, domain.ErrValidation, "payment %d", payment)
		}
		assert.Equal(t, int64(10_000), f.balance(t, buyer))
	})

	t.Run("rejects self purchase", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)

		_, err := f.escrowSvc.Purchase(ctx, seller, l.ID, 100)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("rejects non-active listing", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		require.NoError(t, f.listingSvc.Cancel(ctx, seller, l.ID))

		_, err := f.escrowSvc.Purchase(ctx, buyer, l.ID, 100)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("rejects double purchase", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.ledger.Deposit(ctx, stranger, 100))

		_, err := f.escrowSvc.Purchase(ctx, stranger, l.ID, 100)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("insufficient funds is a transfer error", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)

		_, err := f.escrowSvc.Purchase(ctx, stranger, l.ID, 100)
		assert.ErrorIs(t, err, domain.ErrTransfer)

		// Nothing was booked.
		_, err = f.escrows.GetByListing(ctx, l.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDeliveryConfirmationHandshake(t *testing.T) {
	ctx := context.Background()

	t.Run("settles when buyer confirms after delivery", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 1000))
		l := f.createListing(t)
		f.purchase(t, l.ID)

		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))

		// 10% of 100: fee 10, seller 90, vault drained.
		assert.Equal(t, int64(90), f.balance(t, seller))
		assert.Equal(t, int64(10), f.balance(t, feeRecipient))
		assert.Equal(t, int64(0), f.balance(t, domain.EscrowVault))

		got, err := f.listings.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingStatusSold, got.Status)
		require.NotNil(t, got.SoldAt)

		e, err := f.escrows.GetByListing(ctx, l.ID)
		require.NoError(t, err)
		assert.False(t, e.Active())

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventPurchaseCompleted, ev.Kind)
		assert.Equal(t, int64(100), ev.Amount)
		assert.Equal(t, int64(10), ev.Fee)
		assert.False(t, ev.AutoReleased)
	})

	t.Run("settles when delivery lands after confirmation", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 1000))
		l := f.createListing(t)
		f.purchase(t, l.ID)

		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))
		// One flag alone does not settle.
		assert.Equal(t, int64(100), f.balance(t, domain.EscrowVault))

		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		assert.Equal(t, int64(90), f.balance(t, seller))
		assert.Equal(t, int64(10), f.balance(t, feeRecipient))
	})

	t.Run("rounds the fee down so the split is exact", func(t *testing.T) {
		// 10 bps of 100 floors to zero: the seller gets everything and no
		// fee transfer is attempted.
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 10))
		l := f.createListing(t)
		f.purchase(t, l.ID)

		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))

		assert.Equal(t, int64(100), f.balance(t, seller))
		assert.Equal(t, int64(0), f.balance(t, feeRecipient))
		assert.Equal(t, int64(0), f.lastEvent(t).Fee)
	})

	t.Run("uses the rate in effect at settlement time", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID) // locked at 0 bps

		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 500))
		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))

		assert.Equal(t, int64(95), f.balance(t, seller))
		assert.Equal(t, int64(5), f.balance(t, feeRecipient))
	})

	t.Run("only the seller may mark delivered", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)

		assert.ErrorIs(t, f.escrowSvc.MarkDelivered(ctx, buyer, l.ID), domain.ErrUnauthorized)
		assert.ErrorIs(t, f.escrowSvc.MarkDelivered(ctx, stranger, l.ID), domain.ErrUnauthorized)
	})

	t.Run("only the buyer may confirm", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)

		assert.ErrorIs(t, f.escrowSvc.ConfirmReceipt(ctx, seller, l.ID), domain.ErrUnauthorized)
		assert.ErrorIs(t, f.escrowSvc.ConfirmReceipt(ctx, stranger, l.ID), domain.ErrUnauthorized)
	})

	t.Run("signals require an active escrow and fire once", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)

		assert.ErrorIs(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID), domain.ErrInvalidState)

		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		assert.ErrorIs(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID), domain.ErrInvalidState)

		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))
		// Settled: zero amount blocks any further signal.
		assert.ErrorIs(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID), domain.ErrInvalidState)
		assert.ErrorIs(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID), domain.ErrInvalidState)
	})

	t.Run("settlement happens exactly once", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))

		before := f.balance(t, seller)
		assert.ErrorIs(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID), domain.ErrInvalidState)
		assert.Equal(t, before, f.balance(t, seller))

		var completed int
		for _, ev := range f.events(t) {
			if ev.Kind == domain.EventPurchaseCompleted {
				completed++
			}
		}
		assert.Equal(t, 1, completed)
	})
}

func TestSettlementTransferFailure(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	l := f.createListing(t)
	f.purchase(t, l.ID)
	require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))

	f.ledger.FailNextTransfer()
	err := f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID)
	require.ErrorIs(t, err, domain.ErrTransfer)

	// The whole mutation rolled back: funds still locked, listing not sold,
	// confirmation flag cleared so the buyer can re-submit.
	e, err := f.escrows.GetByListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.Amount)
	assert.False(t, e.BuyerConfirmed)
	assert.True(t, e.SellerDelivered)

	got, err := f.listings.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
	assert.Nil(t, got.SoldAt)
	assert.Equal(t, int64(0), f.balance(t, seller))
	assert.Equal(t, int64(100), f.balance(t, domain.EscrowVault))

	// Re-submitting after the cause is fixed settles normally.
	require.NoError(t, f.escrowSvc.ConfirmReceipt(ctx, buyer, l.ID))
	assert.Equal(t, int64(100), f.balance(t, seller))
}

func TestDisputes(t *testing.T) {
	ctx := context.Background()

	t.Run("either party may raise, strangers may not", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)

		assert.ErrorIs(t, f.escrowSvc.RaiseDispute(ctx, stranger, l.ID), domain.ErrUnauthorized)
		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))

		got, err := f.listings.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingStatusDisputed, got.Status)
		assert.Equal(t, domain.EventDisputeRaised, f.lastEvent(t).Kind)

		// No funds moved and a second dispute is rejected.
		assert.Equal(t, int64(100), f.balance(t, domain.EscrowVault))
		assert.ErrorIs(t, f.escrowSvc.RaiseDispute(ctx, seller, l.ID), domain.ErrInvalidState)
	})

	t.Run("requires an active escrow", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		assert.ErrorIs(t, f.escrowSvc.RaiseDispute(ctx, seller, l.ID), domain.ErrInvalidState)
	})

	t.Run("resolution pays the full amount with no fee", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 1000))
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))

		require.NoError(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, seller))

		assert.Equal(t, int64(100), f.balance(t, seller))
		assert.Equal(t, int64(0), f.balance(t, feeRecipient))

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventDisputeResolved, ev.Kind)
		assert.Equal(t, seller, ev.Winner)
		assert.Equal(t, int64(100), ev.Amount)
	})

	t.Run("keeps the listing disputed after arbitration", func(t *testing.T) {
		// Mirrors the source contract: arbitration clears the escrow but
		// never transitions the listing out of Disputed. The zero escrow
		// amount is the settled signal.
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))
		require.NoError(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, buyer))

		got, err := f.listings.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingStatusDisputed, got.Status)

		e, err := f.escrows.GetByListing(ctx, l.ID)
		require.NoError(t, err)
		assert.False(t, e.Active())

		// Second resolution attempt hits the zero-amount sentinel.
		assert.ErrorIs(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, buyer), domain.ErrInvalidState)
	})

	t.Run("resolution gates", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)

		// Not disputed yet.
		assert.ErrorIs(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, seller), domain.ErrInvalidState)

		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))
		assert.ErrorIs(t, f.escrowSvc.ResolveDispute(ctx, seller, l.ID, seller), domain.ErrUnauthorized)
		assert.ErrorIs(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, stranger), domain.ErrValidation)
	})

	t.Run("failed payout restores the escrow for a retry", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))

		f.ledger.FailNextTransfer()
		assert.ErrorIs(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, buyer), domain.ErrTransfer)

		e, err := f.escrows.GetByListing(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), e.Amount)

		require.NoError(t, f.escrowSvc.ResolveDispute(ctx, owner, l.ID, buyer))
		assert.Equal(t, int64(10_000), f.balance(t, buyer))
	})
}

func TestAutoRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("settles a stalled delivered trade after the grace period", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, 1000))
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))

		// Too early, even one second short.
		f.clock.Advance(domain.AutoReleaseGracePeriod - time.Second)
		assert.ErrorIs(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID), domain.ErrInvalidState)

		f.clock.Advance(time.Second)
		require.NoError(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID))

		assert.Equal(t, int64(90), f.balance(t, seller))
		assert.Equal(t, int64(10), f.balance(t, feeRecipient))

		got, err := f.listings.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingStatusSold, got.Status)

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventPurchaseCompleted, ev.Kind)
		assert.True(t, ev.AutoReleased)
	})

	t.Run("requires delivery", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)

		f.clock.Advance(domain.AutoReleaseGracePeriod)
		assert.ErrorIs(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID), domain.ErrInvalidState)
	})

	t.Run("blocked by an open dispute", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.purchase(t, l.ID)
		require.NoError(t, f.escrowSvc.MarkDelivered(ctx, seller, l.ID))
		require.NoError(t, f.escrowSvc.RaiseDispute(ctx, buyer, l.ID))

		f.clock.Advance(domain.AutoReleaseGracePeriod)
		assert.ErrorIs(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID), domain.ErrInvalidState)
	})

	t.Run("requires an active escrow", func(t *testing.T) {
		f := newFixture(t)
		l := f.createListing(t)
		f.clock.Advance(domain.AutoReleaseGracePeriod)
		assert.ErrorIs(t, f.escrowSvc.AutoRelease(ctx, stranger, l.ID), domain.ErrInvalidState)
	})
}
