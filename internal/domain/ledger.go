package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowVault is the reserved address that holds locked funds between
// purchase and settlement. It is derived from a fixed label so every backend
// agrees on it without configuration.
var EscrowVault = common.BytesToAddress([]byte("moltmarket:escrow-vault"))

// Ledger is the fund-movement primitive behind the settlement engine.
// Transfer must be atomic: either both balances change or neither does. A
// failed transfer (including insufficient funds) returns an error wrapping
// ErrTransfer and leaves both accounts untouched.
type Ledger interface {
	Transfer(ctx context.Context, from, to common.Address, amount int64) error
	Balance(ctx context.Context, addr common.Address) (int64, error)
	// Deposit credits an account from outside the ledger (top-up/on-ramp).
	Deposit(ctx context.Context, addr common.Address, amount int64) error
}
