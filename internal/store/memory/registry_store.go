package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// RegistryStore implements domain.RegistryStore with two mutually consistent
// maps protected by one mutex.
type RegistryStore struct {
	mu     sync.RWMutex
	byName map[string]domain.AgentBinding
	byAddr map[common.Address]domain.AgentBinding
}

// NewRegistryStore creates an empty RegistryStore.
func NewRegistryStore() *RegistryStore {
	return &RegistryStore{
		byName: make(map[string]domain.AgentBinding),
		byAddr: make(map[common.Address]domain.AgentBinding),
	}
}

// Bind claims the binding's name for its address. Any name the address held
// before is released in the same critical section, so no address ever owns
// two names and no name ever resolves to two addresses. It returns
// domain.ErrConflict when the name is held by a different address.
func (s *RegistryStore) Bind(ctx context.Context, b domain.AgentBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byName[b.Name]; ok && existing.Address != b.Address {
		return domain.ErrConflict
	}
	if old, ok := s.byAddr[b.Address]; ok && old.Name != b.Name {
		delete(s.byName, old.Name)
	}
	s.byName[b.Name] = b
	s.byAddr[b.Address] = b
	return nil
}

// GetByName resolves a name to its binding.
func (s *RegistryStore) GetByName(ctx context.Context, name string) (domain.AgentBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byName[name]
	if !ok {
		return domain.AgentBinding{}, domain.ErrNotFound
	}
	return b, nil
}

// GetByAddress resolves an address to the name it holds.
func (s *RegistryStore) GetByAddress(ctx context.Context, addr common.Address) (domain.AgentBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byAddr[addr]
	if !ok {
		return domain.AgentBinding{}, domain.ErrNotFound
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.RegistryStore = (*RegistryStore)(nil)
