package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// RegistryService handles agent name registration and resolution.
type RegistryService struct {
	registry domain.RegistryStore
	bus      domain.EventBus
	audit    domain.AuditStore
	clock    domain.Clock
	logger   *slog.Logger
}

// NewRegistryService creates a RegistryService with all required dependencies.
func NewRegistryService(
	registry domain.RegistryStore,
	bus domain.EventBus,
	audit domain.AuditStore,
	clock domain.Clock,
	logger *slog.Logger,
) *RegistryService {
	return &RegistryService{
		registry: registry,
		bus:      bus,
		audit:    audit,
		clock:    clock,
		logger:   logger,
	}
}

// RegisterOrUpdate binds name to the caller's address. If the caller already
// holds a different name, the old binding is released in the same operation,
// so the name->address and address->name mappings stay mutually consistent.
// Re-registering the caller's current name is an idempotent success.
func (s *RegistryService) RegisterOrUpdate(ctx context.Context, caller common.Address, name string) (domain.AgentBinding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: empty name: %w", domain.ErrValidation)
	}

	existing, err := s.registry.GetByName(ctx, name)
	if err == nil && existing.Address != caller {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: name %q already bound: %w", name, domain.ErrConflict)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: lookup name %q: %w", name, err)
	}

	binding := domain.AgentBinding{
		Name:         name,
		Address:      caller,
		RegisteredAt: s.clock.Now(),
	}
	if err := s.registry.Bind(ctx, binding); err != nil {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: bind %q: %w", name, err)
	}

	publishEvent(ctx, s.bus, s.logger, s.clock, domain.Event{
		Kind:      domain.EventAgentRegistered,
		Actor:     caller,
		AgentName: name,
	})
	auditLog(ctx, s.audit, s.logger, "agent_registered", map[string]any{
		"address": caller.Hex(),
		"name":    name,
	})

	s.logger.InfoContext(ctx, "registry_service: registered agent",
		slog.String("address", caller.Hex()),
		slog.String("name", name),
	)

	return binding, nil
}

// Resolve returns the binding that holds the given name.
func (s *RegistryService) Resolve(ctx context.Context, name string) (domain.AgentBinding, error) {
	b, err := s.registry.GetByName(ctx, name)
	if err != nil {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: resolve %q: %w", name, err)
	}
	return b, nil
}

// NameOf returns the binding held by the given address.
func (s *RegistryService) NameOf(ctx context.Context, addr common.Address) (domain.AgentBinding, error) {
	b, err := s.registry.GetByAddress(ctx, addr)
	if err != nil {
		return domain.AgentBinding{}, fmt.Errorf("registry_service: name of %s: %w", addr.Hex(), err)
	}
	return b, nil
}
