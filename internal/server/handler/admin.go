package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// AdminService defines the owner-only configuration operations.
type AdminService interface {
	SetFeeRate(ctx context.Context, caller common.Address, bps int64) error
	SetFeeRecipient(ctx context.Context, caller common.Address, recipient common.Address) error
	TransferOwnership(ctx context.Context, caller common.Address, newOwner common.Address) error
	FeeConfig(ctx context.Context) (domain.MarketConfig, error)
}

// AdminHandler serves the platform configuration endpoints. The routes are
// additionally gated by the API-key middleware; the service layer enforces
// the on-ledger owner check.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// GetFee returns the current fee configuration.
// GET /api/admin/fee
func (h *AdminHandler) GetFee(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.admin.FeeConfig(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type updateFeeRequest struct {
	RateBps   *int64 `json:"rate_bps,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// UpdateFee changes the fee rate, the fee recipient, or both.
// PUT /api/admin/fee
func (h *AdminHandler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req updateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RateBps == nil && req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.RateBps != nil {
		if err := h.admin.SetFeeRate(r.Context(), addr, *req.RateBps); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	if req.Recipient != "" {
		if !common.IsHexAddress(req.Recipient) {
			writeError(w, http.StatusBadRequest, "invalid recipient address")
			return
		}
		if err := h.admin.SetFeeRecipient(r.Context(), addr, common.HexToAddress(req.Recipient)); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}

	cfg, err := h.admin.FeeConfig(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type transferOwnerRequest struct {
	NewOwner string `json:"new_owner"`
}

// TransferOwner hands platform ownership to a new address.
// PUT /api/admin/owner
func (h *AdminHandler) TransferOwner(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req transferOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !common.IsHexAddress(req.NewOwner) {
		writeError(w, http.StatusBadRequest, "invalid new owner address")
		return
	}

	if err := h.admin.TransferOwnership(r.Context(), addr, common.HexToAddress(req.NewOwner)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"owner": common.HexToAddress(req.NewOwner)})
}
