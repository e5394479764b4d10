package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// TradeService defines the escrow lifecycle operations the trade handler
// needs.
type TradeService interface {
	Purchase(ctx context.Context, buyer common.Address, id int64, payment int64) (domain.Escrow, error)
	MarkDelivered(ctx context.Context, caller common.Address, id int64) error
	ConfirmReceipt(ctx context.Context, caller common.Address, id int64) error
	RaiseDispute(ctx context.Context, caller common.Address, id int64) error
	ResolveDispute(ctx context.Context, caller common.Address, id int64, winner common.Address) error
	AutoRelease(ctx context.Context, caller common.Address, id int64) error
}

// TradeQueries defines the read-side operations the trade handler needs.
type TradeQueries interface {
	GetEscrow(ctx context.Context, id int64) (domain.Escrow, error)
	Balance(ctx context.Context, addr common.Address) (int64, error)
}

// TradeHandler serves the purchase/escrow lifecycle endpoints.
type TradeHandler struct {
	trades  TradeService
	queries TradeQueries
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, queries TradeQueries, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:  trades,
		queries: queries,
		logger:  logger,
	}
}

type purchaseRequest struct {
	Payment int64 `json:"payment"`
}

// Purchase locks the caller's payment in escrow for a listing.
// POST /api/listings/{id}/purchase
func (h *TradeHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	escrow, err := h.trades.Purchase(r.Context(), addr, id, req.Payment)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, escrow)
}

// MarkDelivered records the seller's delivery claim.
// POST /api/listings/{id}/deliver
func (h *TradeHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.trades.MarkDelivered)
}

// ConfirmReceipt records the buyer's receipt confirmation.
// POST /api/listings/{id}/confirm
func (h *TradeHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.trades.ConfirmReceipt)
}

// RaiseDispute freezes an in-flight trade for arbitration.
// POST /api/listings/{id}/dispute
func (h *TradeHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.trades.RaiseDispute)
}

// AutoRelease settles a delivered but unconfirmed trade after the grace
// period. Anyone may call it.
// POST /api/listings/{id}/release
func (h *TradeHandler) AutoRelease(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.trades.AutoRelease)
}

// lifecycle is the shared shape of the single-shot escrow transitions.
func (h *TradeHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address, int64) error) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := op(r.Context(), addr, id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	escrow, err := h.queries.GetEscrow(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

type resolveRequest struct {
	Winner string `json:"winner"`
}

// ResolveDispute awards the escrowed funds to one party. Owner only.
// POST /api/listings/{id}/resolve
func (h *TradeHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(req.Winner) {
		writeError(w, http.StatusBadRequest, "invalid winner address")
		return
	}

	if err := h.trades.ResolveDispute(r.Context(), addr, id, common.HexToAddress(req.Winner)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "winner": common.HexToAddress(req.Winner)})
}

// GetEscrow returns the escrow record for a listing.
// GET /api/escrows/{id}
func (h *TradeHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	escrow, err := h.queries.GetEscrow(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, escrow)
}

// Balance returns an account's ledger balance.
// GET /api/balances/{address}
func (h *TradeHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	balance, err := h.queries.Balance(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "balance": balance})
}
