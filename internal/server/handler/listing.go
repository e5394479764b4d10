package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ListingService defines the mutating listing operations the handler needs.
type ListingService interface {
	Create(ctx context.Context, seller common.Address, price int64, category domain.Category, metadataRef string) (domain.Listing, error)
	Cancel(ctx context.Context, caller common.Address, id int64) error
}

// ListingQueries defines the read-side operations the listing handler needs.
type ListingQueries interface {
	GetListing(ctx context.Context, id int64) (domain.Listing, error)
	BrowseActive(ctx context.Context, category domain.Category, opts domain.ListOpts) ([]domain.Listing, error)
	SellerListings(ctx context.Context, seller common.Address) ([]int64, error)
	BuyerPurchases(ctx context.Context, buyer common.Address) ([]int64, error)
	Count(ctx context.Context) (int64, error)
}

// ListingHandler serves listing CRUD and browse endpoints.
type ListingHandler struct {
	listings ListingService
	queries  ListingQueries
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, queries ListingQueries, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		queries:  queries,
		logger:   logger,
	}
}

type createListingRequest struct {
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	MetadataRef string `json:"metadata_ref"`
}

// Create posts a new listing for the calling agent.
// POST /api/listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	listing, err := h.listings.Create(r.Context(), addr, req.Price, domain.Category(req.Category), req.MetadataRef)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// Cancel withdraws an active listing. Seller only.
// DELETE /api/listings/{id}
func (h *ListingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listings.Cancel(r.Context(), addr, id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": domain.ListingStatusCancelled})
}

// Get returns a single listing.
// GET /api/listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.queries.GetListing(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// browseResponse wraps the browse endpoint output with metadata.
type browseResponse struct {
	Listings []domain.Listing `json:"listings"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// Browse returns active listings, optionally filtered by category.
// GET /api/listings?category=skill&limit=50&offset=0
func (h *ListingHandler) Browse(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	category := domain.Category(r.URL.Query().Get("category"))

	listings, err := h.queries.BrowseActive(r.Context(), category, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	total, err := h.queries.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, browseResponse{
		Listings: listings,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// SellerListings returns the ids of every listing an agent has created.
// GET /api/agents/{address}/listings
func (h *ListingHandler) SellerListings(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	ids, err := h.queries.SellerListings(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "listing_ids": ids})
}

// BuyerPurchases returns the ids of every listing an agent has bought into.
// GET /api/agents/{address}/purchases
func (h *ListingHandler) BuyerPurchases(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	ids, err := h.queries.BuyerPurchases(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "listing_ids": ids})
}
