package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// RegistryService defines what the registry handler needs from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type RegistryService interface {
	RegisterOrUpdate(ctx context.Context, caller common.Address, name string) (domain.AgentBinding, error)
	Resolve(ctx context.Context, name string) (domain.AgentBinding, error)
	NameOf(ctx context.Context, addr common.Address) (domain.AgentBinding, error)
}

// RegistryHandler serves the agent name registry endpoints.
type RegistryHandler struct {
	registry RegistryService
	logger   *slog.Logger
}

// NewRegistryHandler creates a RegistryHandler.
func NewRegistryHandler(registry RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{
		registry: registry,
		logger:   logger,
	}
}

type registerRequest struct {
	Name string `json:"name"`
}

// Register claims or updates the caller's agent name.
// POST /api/agents
func (h *RegistryHandler) Register(w http.ResponseWriter, r *http.Request) {
	addr, ok := caller(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	binding, err := h.registry.RegisterOrUpdate(r.Context(), addr, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, binding)
}

// GetByAddress returns the name binding owned by an address.
// GET /api/agents/{address}
func (h *RegistryHandler) GetByAddress(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	binding, err := h.registry.NameOf(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, binding)
}

// GetByName resolves an agent name to its binding.
// GET /api/agents/by-name/{name}
func (h *RegistryHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing agent name")
		return
	}

	binding, err := h.registry.Resolve(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, binding)
}
