package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
)

func TestSetFeeRate(t *testing.T) {
	ctx := context.Background()

	t.Run("owner sets a rate up to the cap", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.adminSvc.SetFeeRate(ctx, owner, domain.MaxFeeRateBps))

		cfg, err := f.adminSvc.FeeConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), cfg.FeeRateBps)

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventFeeRateUpdated, ev.Kind)
		assert.Equal(t, int64(1000), ev.RateBps)
	})

	t.Run("rejects rates above the cap", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.adminSvc.SetFeeRate(ctx, owner, 1001), domain.ErrValidation)
		assert.ErrorIs(t, f.adminSvc.SetFeeRate(ctx, owner, -1), domain.ErrValidation)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.adminSvc.SetFeeRate(ctx, seller, 100), domain.ErrUnauthorized)
	})
}

func TestSetFeeRecipient(t *testing.T) {
	ctx := context.Background()

	t.Run("owner updates the recipient", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.adminSvc.SetFeeRecipient(ctx, owner, stranger))

		cfg, err := f.adminSvc.FeeConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, stranger, cfg.FeeRecipient)
	})

	t.Run("rejects the zero address", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.adminSvc.SetFeeRecipient(ctx, owner, common.Address{}), domain.ErrValidation)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.adminSvc.SetFeeRecipient(ctx, buyer, stranger), domain.ErrUnauthorized)
	})
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	require.NoError(t, f.adminSvc.TransferOwnership(ctx, owner, stranger))

	// The capability moved: old owner loses it, new owner has it.
	assert.ErrorIs(t, f.adminSvc.SetFeeRate(ctx, owner, 50), domain.ErrUnauthorized)
	require.NoError(t, f.adminSvc.SetFeeRate(ctx, stranger, 50))

	assert.ErrorIs(t, f.adminSvc.TransferOwnership(ctx, stranger, common.Address{}), domain.ErrValidation)
}

func TestSplitFee(t *testing.T) {
	tests := []struct {
		amount, rate, fee, seller int64
	}{
		{100, 1000, 10, 90},
		{100, 10, 0, 100},
		{100, 0, 0, 100},
		{999, 250, 24, 975},
		{1, 1000, 0, 1},
	}
	for _, tt := range tests {
		fee, sellerAmount := domain.SplitFee(tt.amount, tt.rate)
		assert.Equal(t, tt.fee, fee, "amount=%d rate=%d", tt.amount, tt.rate)
		assert.Equal(t, tt.seller, sellerAmount)
		assert.Equal(t, tt.amount, fee+sellerAmount, "split must be exact")
	}
}
