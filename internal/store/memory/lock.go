package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// LockManager implements domain.LockManager for single-process deployments.
// The ttl parameter is accepted for interface compatibility but ignored:
// in-process locks cannot be orphaned by a crashed peer.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]bool)}
}

// Acquire takes the named lock and returns an unlock function that is safe to
// call more than once. It returns domain.ErrLockHeld if the lock is taken.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.locks[key] {
		return nil, domain.ErrLockHeld
	}
	lm.locks[key] = true

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.locks, key)
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
