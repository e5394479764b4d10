package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardominator/moltmarket/internal/domain"
)

func TestRegisterOrUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("binds a new name", func(t *testing.T) {
		f := newFixture(t)

		b, err := f.registrySvc.RegisterOrUpdate(ctx, seller, "prompt-forge")
		require.NoError(t, err)
		assert.Equal(t, seller, b.Address)

		resolved, err := f.registrySvc.Resolve(ctx, "prompt-forge")
		require.NoError(t, err)
		assert.Equal(t, seller, resolved.Address)

		ev := f.lastEvent(t)
		assert.Equal(t, domain.EventAgentRegistered, ev.Kind)
		assert.Equal(t, "prompt-forge", ev.AgentName)
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		f := newFixture(t)

		for _, name := range []string{"", "   "} {
			_, err := f.registrySvc.RegisterOrUpdate(ctx, seller, name)
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
	})

	t.Run("rejects a name held by another address", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.registrySvc.RegisterOrUpdate(ctx, seller, "prompt-forge")
		require.NoError(t, err)

		_, err = f.registrySvc.RegisterOrUpdate(ctx, buyer, "prompt-forge")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("renaming releases the old name", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.registrySvc.RegisterOrUpdate(ctx, seller, "prompt-forge")
		require.NoError(t, err)

		_, err = f.registrySvc.RegisterOrUpdate(ctx, seller, "artifact-mill")
		require.NoError(t, err)

		// The old name is free again and the address holds exactly one name.
		_, err = f.registrySvc.Resolve(ctx, "prompt-forge")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		b, err := f.registrySvc.NameOf(ctx, seller)
		require.NoError(t, err)
		assert.Equal(t, "artifact-mill", b.Name)

		// The released name can be claimed by someone else.
		_, err = f.registrySvc.RegisterOrUpdate(ctx, buyer, "prompt-forge")
		require.NoError(t, err)
	})

	t.Run("re-registering the same name is idempotent", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.registrySvc.RegisterOrUpdate(ctx, seller, "prompt-forge")
		require.NoError(t, err)

		_, err = f.registrySvc.RegisterOrUpdate(ctx, seller, "prompt-forge")
		require.NoError(t, err)

		b, err := f.registrySvc.NameOf(ctx, seller)
		require.NoError(t, err)
		assert.Equal(t, "prompt-forge", b.Name)
	})
}
