package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// Ledger implements domain.Ledger with an in-process balance map. Transfers
// are atomic under the mutex: both balances change or neither does.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]int64

	// failNext, when set, makes the next Transfer fail with ErrTransfer.
	// Used by tests to exercise settlement rollback.
	failNext bool
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]int64)}
}

// FailNextTransfer arms a one-shot transfer failure.
func (l *Ledger) FailNextTransfer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = true
}

// Transfer moves amount from one account to another. It returns an error
// wrapping domain.ErrTransfer when the source balance is insufficient or the
// amount is not positive.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failNext {
		l.failNext = false
		return fmt.Errorf("memory: transfer %d from %s to %s: %w", amount, from, to, domain.ErrTransfer)
	}
	if amount <= 0 {
		return fmt.Errorf("memory: transfer amount %d: %w", amount, domain.ErrTransfer)
	}
	if l.balances[from] < amount {
		return fmt.Errorf("memory: insufficient funds in %s: %w", from, domain.ErrTransfer)
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Balance returns the current balance of an account. Unknown accounts have a
// zero balance.
func (l *Ledger) Balance(ctx context.Context, addr common.Address) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr], nil
}

// Deposit credits an account from outside the ledger.
func (l *Ledger) Deposit(ctx context.Context, addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("memory: deposit amount %d: %w", amount, domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amount
	return nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
