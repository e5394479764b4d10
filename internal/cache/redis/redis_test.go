package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
)

func setupClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return mr, c
}

func TestListingCache(t *testing.T) {
	mr, c := setupClient(t)
	cache := NewListingCache(c)
	ctx := context.Background()

	listing := domain.Listing{
		ID:          42,
		Seller:      common.HexToAddress("0xA11CE00000000000000000000000000000000001"),
		Price:       100,
		Category:    domain.CategoryPrompt,
		MetadataRef: "ipfs://QmArtifact",
		Status:      domain.ListingStatusActive,
		CreatedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, cache.Set(ctx, listing))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, listing, got)

	t.Run("miss returns not found", func(t *testing.T) {
		_, err := cache.Get(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("entry expires", func(t *testing.T) {
		mr.FastForward(listingTTL + time.Second)
		_, err := cache.Get(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invalidate removes the entry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, listing))
		require.NoError(t, cache.Invalidate(ctx, 42))
		_, err := cache.Get(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestLockManager(t *testing.T) {
	_, c := setupClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "listing:1", 10*time.Second)
	require.NoError(t, err)

	// A second acquire on the same key fails while the lock is held.
	_, err = lm.Acquire(ctx, "listing:1", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is independent.
	unlock2, err := lm.Acquire(ctx, "listing:2", 10*time.Second)
	require.NoError(t, err)
	unlock2()

	unlock()
	unlock() // safe to call twice

	// Released lock can be re-acquired.
	unlock3, err := lm.Acquire(ctx, "listing:1", 10*time.Second)
	require.NoError(t, err)
	unlock3()
}

func TestEventBusStream(t *testing.T) {
	_, c := setupClient(t)
	bus := NewEventBus(c)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, []byte(`{"kind":"listing_created"}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, []byte(`{"kind":"purchase_initiated"}`)))

	msgs, err := bus.StreamRead(ctx, domain.EventStream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte(`{"kind":"listing_created"}`), msgs[0].Payload)
	assert.Equal(t, []byte(`{"kind":"purchase_initiated"}`), msgs[1].Payload)

	// Reading past the last id yields nothing, not an error.
	more, err := bus.StreamRead(ctx, domain.EventStream, msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, more)

	// Resuming from the first id returns only the second message.
	tail, err := bus.StreamRead(ctx, domain.EventStream, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, msgs[1].ID, tail[0].ID)
}

func TestEventBusPubSub(t *testing.T) {
	_, c := setupClient(t)
	bus := NewEventBus(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.EventChannel)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.EventChannel, []byte("hello")))

	select {
	case payload := <-ch:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}

	// Cancelling the context closes the subscription channel.
	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestRateLimiter(t *testing.T) {
	_, c := setupClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "agent:0xabc", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := rl.Allow(ctx, "agent:0xabc", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request should be rejected")

	// A different key has its own window.
	allowed, err = rl.Allow(ctx, "agent:0xdef", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
}
