package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// AccountStore implements domain.Ledger using PostgreSQL. Transfers debit and
// credit inside one transaction with the source row locked, so a transfer
// either moves the full amount or nothing.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

var _ domain.Ledger = (*AccountStore)(nil)

// Transfer moves amount from one account to another atomically. Insufficient
// funds (or a missing source account) fail with ErrTransfer and leave both
// balances untouched.
func (s *AccountStore) Transfer(ctx context.Context, from, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: transfer amount %d: %w", amount, domain.ErrTransfer)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: transfer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE address = $1 FOR UPDATE`, from.Hex(),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: transfer from %s: no account: %w", from.Hex(), domain.ErrTransfer)
		}
		return fmt.Errorf("postgres: transfer: lock source account: %w", err)
	}
	if balance < amount {
		return fmt.Errorf("postgres: transfer from %s: balance %d < %d: %w",
			from.Hex(), balance, amount, domain.ErrTransfer)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE address = $1`, from.Hex(), amount,
	); err != nil {
		return fmt.Errorf("postgres: transfer: debit: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO accounts (address, balance) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + $2`,
		to.Hex(), amount,
	); err != nil {
		return fmt.Errorf("postgres: transfer: credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: transfer: commit: %w", err)
	}
	return nil
}

// Balance returns the current balance of an account. Unknown accounts have a
// zero balance.
func (s *AccountStore) Balance(ctx context.Context, addr common.Address) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE address = $1`, addr.Hex(),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// Deposit credits an account from outside the ledger.
func (s *AccountStore) Deposit(ctx context.Context, addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: deposit amount %d: %w", amount, domain.ErrValidation)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (address, balance) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + $2`,
		addr.Hex(), amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", addr.Hex(), err)
	}
	return nil
}
