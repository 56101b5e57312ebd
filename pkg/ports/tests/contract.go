// Package tests carries reusable contract suites for the ports interfaces.
// Every store adapter runs them against its own backend.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// RunRuleStoreContract verifies that a RuleStore implementation adheres to
// the interface contract. The store must be empty when the suite starts.
func RunRuleStoreContract(t *testing.T, store ports.RuleStore) {
	t.Helper()
	ctx := context.Background()
	family := "contract_family"

	recA := domain.Record{
		Label: "Root",
		Item:  "1 *1 R u[0,1]",
		Index: 1,
	}
	recB := domain.Record{
		Label:      "Root_C",
		Item:       "1 *1 C u0",
		Index:      2,
		Rank:       3,
		Parent:     "Root",
		Children:   []string{"Root_C_r0", "Root_C_r1"},
		Provenance: "contract fixture",
		RateModel: &domain.RateRule{
			Kinetics: &domain.Arrhenius{A: 1e8, N: 0.7, Ea: 21000, T0: 1, Units: "m^3/(mol*s)"},
			Comment:  "contract fixture",
		},
	}

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, store.SaveEntry(ctx, family, recA))
		require.NoError(t, store.SaveEntry(ctx, family, recB))

		got, err := store.Entry(ctx, family, "Root_C")
		require.NoError(t, err)
		assert.Equal(t, recB.Label, got.Label)
		assert.Equal(t, recB.Item, got.Item)
		assert.Equal(t, recB.Parent, got.Parent)
		assert.Equal(t, recB.Children, got.Children)
		assert.Equal(t, recB.Rank, got.Rank)
		assert.Equal(t, recB.Provenance, got.Provenance)
		require.NotNil(t, got.RateModel)
		require.NotNil(t, got.RateModel.Kinetics)
		assert.InEpsilon(t, 1e8, got.RateModel.Kinetics.A, 1e-9)
		assert.InDelta(t, 21000, got.RateModel.Kinetics.Ea, 1e-6)
		assert.Equal(t, "contract fixture", got.RateModel.Comment)
	})

	t.Run("save overwrites", func(t *testing.T) {
		updated := recB
		updated.Rank = 11
		require.NoError(t, store.SaveEntry(ctx, family, updated))

		got, err := store.Entry(ctx, family, "Root_C")
		require.NoError(t, err)
		assert.Equal(t, 11, got.Rank)
	})

	t.Run("get non-existent", func(t *testing.T) {
		_, err := store.Entry(ctx, family, "no-such-label")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})

	t.Run("entries ordered by index", func(t *testing.T) {
		recs, err := store.Entries(ctx, family)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Root", recs[0].Label)
		assert.Equal(t, "Root_C", recs[1].Label)
	})

	t.Run("families sorted", func(t *testing.T) {
		require.NoError(t, store.SaveEntry(ctx, "another_family", recA))

		names, err := store.Families(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"another_family", family}, names)

		require.NoError(t, store.DeleteEntry(ctx, "another_family", recA.Label))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteEntry(ctx, family, "Root_C"))
		_, err := store.Entry(ctx, family, "Root_C")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)

		// Deleting an absent label is a no-op.
		assert.NoError(t, store.DeleteEntry(ctx, family, "Root_C"))

		recs, err := store.Entries(ctx, family)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Root", recs[0].Label)

		// A family emptied earlier no longer lists.
		names, err := store.Families(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{family}, names)
	})
}
