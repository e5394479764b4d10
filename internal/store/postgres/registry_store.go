package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// RegistryStore implements domain.RegistryStore using PostgreSQL. The unique
// constraints on both columns enforce the bidirectional name<->address
// mapping at the schema level.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a RegistryStore backed by the given connection pool.
func NewRegistryStore(pool *pgxpool.Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

var _ domain.RegistryStore = (*RegistryStore)(nil)

// Bind claims a name for an address, releasing any name the address held
// before. Both steps run in one transaction so the mapping never splits.
func (s *RegistryStore) Bind(ctx context.Context, b domain.AgentBinding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: bind name %q: begin tx: %w", b.Name, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM agent_names WHERE address = $1`, b.Address.Hex(),
	); err != nil {
		return fmt.Errorf("postgres: bind name %q: release old name: %w", b.Name, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO agent_names (name, address, registered_at) VALUES ($1, $2, $3)`,
		b.Name, b.Address.Hex(), b.RegisteredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: bind name %q: %w", b.Name, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: bind name %q: %w", b.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: bind name %q: commit: %w", b.Name, err)
	}
	return nil
}

// GetByName resolves a name to its binding.
func (s *RegistryStore) GetByName(ctx context.Context, name string) (domain.AgentBinding, error) {
	return s.get(ctx,
		`SELECT name, address, registered_at FROM agent_names WHERE name = $1`, name)
}

// GetByAddress returns the binding owned by an address.
func (s *RegistryStore) GetByAddress(ctx context.Context, addr common.Address) (domain.AgentBinding, error) {
	return s.get(ctx,
		`SELECT name, address, registered_at FROM agent_names WHERE address = $1`, addr.Hex())
}

func (s *RegistryStore) get(ctx context.Context, query string, arg any) (domain.AgentBinding, error) {
	var b domain.AgentBinding
	var address string

	err := s.pool.QueryRow(ctx, query, arg).Scan(&b.Name, &address, &b.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentBinding{}, domain.ErrNotFound
		}
		return domain.AgentBinding{}, fmt.Errorf("postgres: get agent binding: %w", err)
	}

	b.Address = common.HexToAddress(address)
	return b, nil
}
