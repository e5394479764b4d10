package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/store/memory"
)

var (
	owner        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	seller       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	buyer        = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	feeRecipient = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	stranger     = common.HexToAddress("0x00000000000000000000000000000000000000e5")
)

// fakeClock is a manually advanced clock for grace-period tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fixture wires every service against the in-memory backend with a fake
// clock, a funded buyer, and a zero initial fee rate.
type fixture struct {
	listings *memory.ListingStore
	escrows  *memory.EscrowStore
	config   *memory.ConfigStore
	registry *memory.RegistryStore
	ledger   *memory.Ledger
	bus      *memory.EventBus
	audit    *memory.AuditStore
	clock    *fakeClock

	registrySvc *RegistryService
	listingSvc  *ListingService
	escrowSvc   *EscrowService
	adminSvc    *AdminService
	querySvc    *QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		listings: memory.NewListingStore(),
		escrows:  memory.NewEscrowStore(),
		config:   memory.NewConfigStore(),
		registry: memory.NewRegistryStore(),
		ledger:   memory.NewLedger(),
		bus:      memory.NewEventBus(),
		audit:    memory.NewAuditStore(),
		clock:    newFakeClock(),
	}

	ctx := context.Background()
	require.NoError(t, f.config.Ensure(ctx, domain.MarketConfig{
		Owner:        owner,
		FeeRateBps:   0,
		FeeRecipient: feeRecipient,
		UpdatedAt:    f.clock.Now(),
	}))
	require.NoError(t, f.ledger.Deposit(ctx, buyer, 10_000))

	logger := slog.New(slog.DiscardHandler)
	locks := memory.NewLockManager()

	f.registrySvc = NewRegistryService(f.registry, f.bus, f.audit, f.clock, logger)
	f.listingSvc = NewListingService(f.listings, locks, f.bus, f.audit, f.clock, logger)
	f.escrowSvc = NewEscrowService(f.listings, f.escrows, f.config, f.ledger, locks, f.bus, f.audit, f.clock, logger)
	f.adminSvc = NewAdminService(f.config, f.bus, f.audit, f.clock, logger)
	f.querySvc = NewQueryService(f.listings, f.escrows, f.ledger, nil, logger)

	return f
}

// createListing is a shorthand for a valid listing priced at 100 units.
func (f *fixture) createListing(t *testing.T) domain.Listing {
	t.Helper()
	l, err := f.listingSvc.Create(context.Background(), seller, 100, domain.CategoryPrompt, "ipfs://QmArtifact")
	require.NoError(t, err)
	return l
}

// purchase locks buyer funds against the listing at its exact price.
func (f *fixture) purchase(t *testing.T, id int64) domain.Escrow {
	t.Helper()
	e, err := f.escrowSvc.Purchase(context.Background(), buyer, id, 100)
	require.NoError(t, err)
	return e
}

// events decodes everything appended to the durable stream so far.
func (f *fixture) events(t *testing.T) []domain.Event {
	t.Helper()
	msgs, err := f.bus.StreamRead(context.Background(), domain.EventStream, "0", 0)
	require.NoError(t, err)

	out := make([]domain.Event, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		out = append(out, ev)
	}
	return out
}

// lastEvent returns the most recent event, failing if none were published.
func (f *fixture) lastEvent(t *testing.T) domain.Event {
	t.Helper()
	evs := f.events(t)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

// balance is a test shorthand for ledger balance lookup.
func (f *fixture) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}
