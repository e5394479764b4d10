package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/server/handler"
	"github.com/Vardominator/moltmarket/internal/server/middleware"
	"github.com/Vardominator/moltmarket/internal/service"
	"github.com/Vardominator/moltmarket/internal/store/memory"
)

const testAPIKey = "test-admin-key"

var (
	testOwner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testSeller = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testBuyer  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// newTestServer wires the full handler chain against the in-memory backend
// so requests exercise routing, middleware, and services end to end.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	clock := domain.SystemClock()

	listings := memory.NewListingStore()
	escrows := memory.NewEscrowStore()
	config := memory.NewConfigStore()
	registry := memory.NewRegistryStore()
	ledger := memory.NewLedger()
	bus := memory.NewEventBus()
	audit := memory.NewAuditStore()
	locks := memory.NewLockManager()

	require.NoError(t, config.Ensure(ctx, domain.MarketConfig{
		Owner:        testOwner,
		FeeRateBps:   250,
		FeeRecipient: testOwner,
		UpdatedAt:    clock.Now(),
	}))
	require.NoError(t, ledger.Deposit(ctx, testBuyer, 10_000))

	registrySvc := service.NewRegistryService(registry, bus, audit, clock, logger)
	listingSvc := service.NewListingService(listings, locks, bus, audit, clock, logger)
	escrowSvc := service.NewEscrowService(listings, escrows, config, ledger, locks, bus, audit, clock, logger)
	adminSvc := service.NewAdminService(config, bus, audit, clock, logger)
	querySvc := service.NewQueryService(listings, escrows, ledger, nil, logger)

	srv := NewServer(Config{Port: 0, APIKey: testAPIKey}, Handlers{
		Health:   handler.NewHealthHandler(logger),
		Registry: handler.NewRegistryHandler(registrySvc, logger),
		Listings: handler.NewListingHandler(listingSvc, querySvc, logger),
		Trades:   handler.NewTradeHandler(escrowSvc, querySvc, logger),
		Admin:    handler.NewAdminHandler(adminSvc, logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues a request with an optional agent identity header and decodes
// the JSON response into out when out is non-nil.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, agent common.Address, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if agent != (common.Address{}) {
		req.Header.Set(middleware.HeaderAgent, agent.Hex())
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]any
	resp := doJSON(t, ts, http.MethodGet, "/api/health", common.Address{}, nil, &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "moltmarket", body["service"])
}

func TestListingLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	var reg domain.AgentBinding
	resp := doJSON(t, ts, http.MethodPost, "/api/agents", testSeller,
		map[string]string{"name": "prompt-forge"}, &reg)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testSeller, reg.Address)

	var listing domain.Listing
	resp = doJSON(t, ts, http.MethodPost, "/api/listings", testSeller, map[string]any{
		"price":        100,
		"category":     "prompt",
		"metadata_ref": "ipfs://QmArtifact",
	}, &listing)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotZero(t, listing.ID)
	assert.Equal(t, domain.ListingStatusActive, listing.Status)

	var browse struct {
		Listings []domain.Listing `json:"listings"`
		Total    int64            `json:"total"`
	}
	resp = doJSON(t, ts, http.MethodGet, "/api/listings?category=prompt", common.Address{}, nil, &browse)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, browse.Listings, 1)
	assert.Equal(t, int64(1), browse.Total)

	var escrow domain.Escrow
	resp = doJSON(t, ts, http.MethodPost, listingPath(listing.ID)+"/purchase", testBuyer,
		map[string]int64{"payment": 100}, &escrow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(100), escrow.Amount)

	resp = doJSON(t, ts, http.MethodPost, listingPath(listing.ID)+"/deliver", testSeller, nil, &escrow)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, escrow.SellerDelivered)

	resp = doJSON(t, ts, http.MethodPost, listingPath(listing.ID)+"/confirm", testBuyer, nil, &escrow)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, escrow.Amount)
	assert.True(t, escrow.BuyerConfirmed)

	// Seller receives price minus the 2.5% fee.
	var bal struct {
		Balance int64 `json:"balance"`
	}
	resp = doJSON(t, ts, http.MethodGet, "/api/balances/"+testSeller.Hex(), common.Address{}, nil, &bal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(98), bal.Balance)

	var purchases struct {
		ListingIDs []int64 `json:"listing_ids"`
	}
	resp = doJSON(t, ts, http.MethodGet, "/api/agents/"+testBuyer.Hex()+"/purchases", common.Address{}, nil, &purchases)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{listing.ID}, purchases.ListingIDs)
}

func TestIdentityRequiredForMutations(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing header is unauthorized", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodPost, "/api/listings", common.Address{}, map[string]any{
			"price":        100,
			"category":     "prompt",
			"metadata_ref": "ipfs://x",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/listings", bytes.NewBufferString("{}"))
		require.NoError(t, err)
		req.Header.Set(middleware.HeaderAgent, "not-an-address")

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reads work anonymously", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodGet, "/api/listings", common.Address{}, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServiceErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	t.Run("unknown listing is 404", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodGet, "/api/listings/9999", common.Address{}, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid id is 400", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodGet, "/api/listings/zero", common.Address{}, nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("self purchase is 400", func(t *testing.T) {
		var listing domain.Listing
		resp := doJSON(t, ts, http.MethodPost, "/api/listings", testSeller, map[string]any{
			"price":        100,
			"category":     "skill",
			"metadata_ref": "ipfs://QmTool",
		}, &listing)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = doJSON(t, ts, http.MethodPost, listingPath(listing.ID)+"/purchase", testSeller,
			map[string]int64{"payment": 100}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("underfunded buyer is 402", func(t *testing.T) {
		var listing domain.Listing
		resp := doJSON(t, ts, http.MethodPost, "/api/listings", testSeller, map[string]any{
			"price":        50_000,
			"category":     "data",
			"metadata_ref": "ipfs://QmData",
		}, &listing)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = doJSON(t, ts, http.MethodPost, listingPath(listing.ID)+"/purchase", testBuyer,
			map[string]int64{"payment": 50_000}, nil)
		assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	})
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	ts := newTestServer(t)

	t.Run("no key is rejected", func(t *testing.T) {
		resp := doJSON(t, ts, http.MethodGet, "/api/admin/fee", testOwner, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("key plus owner identity updates the fee", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/admin/fee",
			bytes.NewBufferString(`{"rate_bps":500}`))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", testAPIKey)
		req.Header.Set(middleware.HeaderAgent, testOwner.Hex())

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var cfg domain.MarketConfig
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
		assert.Equal(t, int64(500), cfg.FeeRateBps)
	})

	t.Run("key without owner identity is forbidden", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/admin/fee",
			bytes.NewBufferString(`{"rate_bps":100}`))
		require.NoError(t, err)
		req.Header.Set("X-API-Key", testAPIKey)
		req.Header.Set(middleware.HeaderAgent, testSeller.Hex())

		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func listingPath(id int64) string {
	return "/api/listings/" + strconv.FormatInt(id, 10)
}
