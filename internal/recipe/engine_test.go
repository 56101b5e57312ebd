package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

func mol(t *testing.T, text string) domain.Structure {
	t.Helper()
	m, err := molecule.ParseMolecule(text)
	require.NoError(t, err)
	return m
}

func pat(t *testing.T, text string) domain.Structure {
	t.Helper()
	p, err := molecule.ParsePattern(text)
	require.NoError(t, err)
	return p
}

func TestEngineRoundTrip(t *testing.T) {
	// BreakBond(*1,*2) then FormBond(*2,*3): a bonded pair plus a loose
	// third atom becomes an isolated atom plus a new bonded pair, and the
	// reverse recipe restores the original arrangement.
	eng, err := New("bond_shift", &domain.Recipe{Actions: []domain.Action{
		{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
		{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*3", Order: 1},
	}}, Tables{})
	require.NoError(t, err)

	chain := mol(t, "1 *1 C u0 {2,S}\n2 *2 C u0 {1,S}")
	loose := mol(t, "1 *3 C u0")

	products, err := eng.Apply([]domain.Structure{chain, loose}, true)
	require.NoError(t, err)
	require.Len(t, products, 2)

	// *1 ends up isolated and leads the product list.
	assert.Equal(t, 1, products[0].SiteCount())
	assert.Equal(t, 1, products[0].CountLabel("*1"))
	assert.Equal(t, 2, products[1].SiteCount())
	assert.Equal(t, 1, products[1].CountLabel("*2"))
	assert.Equal(t, 1, products[1].CountLabel("*3"))

	// Inputs are untouched.
	assert.Equal(t, 2, chain.SiteCount())
	assert.Equal(t, 1, chain.CountLabel("*2"))

	back, err := eng.Apply(products, false)
	require.NoError(t, err)
	require.Len(t, back, 2)

	m := molecule.NewMatcher()
	assert.True(t, m.Isomorphic(back[0], chain), "reverse should rebuild the bonded pair")
	assert.True(t, m.Isomorphic(back[1], loose), "reverse should free the third atom")
}

func TestEngineApply(t *testing.T) {
	abstraction := &domain.Recipe{Actions: []domain.Action{
		{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
		{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*3", Order: 1},
		{Kind: domain.ActionGainRadical, Label1: "*1", Order: 1},
		{Kind: domain.ActionLoseRadical, Label1: "*3", Order: 1},
	}}

	t.Run("hydrogen transfer between molecules", func(t *testing.T) {
		eng, err := New("h_transfer", abstraction, Tables{})
		require.NoError(t, err)

		donor := mol(t, "1 *1 C u0 {2,S}\n2 *2 H u0 {1,S}")
		acceptor := mol(t, "1 *3 O u1")

		products, err := eng.Apply([]domain.Structure{donor, acceptor}, true)
		require.NoError(t, err)
		require.Len(t, products, 2)

		m := molecule.NewMatcher()
		assert.True(t, m.Isomorphic(products[0], mol(t, "1 C u1")))
		assert.True(t, m.Isomorphic(products[1], mol(t, "1 O u0 {2,S}\n2 H u0 {1,S}")))
	})

	t.Run("missing label rejects the candidate", func(t *testing.T) {
		eng, err := New("h_transfer", abstraction, Tables{})
		require.NoError(t, err)

		donor := mol(t, "1 *1 C u0 {2,S}\n2 *2 H u0 {1,S}")
		unlabeled := mol(t, "1 O u1")

		_, err = eng.Apply([]domain.Structure{donor, unlabeled}, true)
		var invalid *domain.InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "FORM_BOND", invalid.Action)
	})

	t.Run("duplicate bond creation rejects the candidate", func(t *testing.T) {
		eng, err := New("bond_form", &domain.Recipe{Actions: []domain.Action{
			{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*2", Order: 1},
		}}, Tables{})
		require.NoError(t, err)

		bonded := mol(t, "1 *1 C u0 {2,S}\n2 *2 C u0 {1,S}")
		_, err = eng.Apply([]domain.Structure{bonded}, true)
		var invalid *domain.InvalidActionError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("patterns pass through the same pipeline", func(t *testing.T) {
		eng, err := New("h_transfer", abstraction, Tables{})
		require.NoError(t, err)

		donor := pat(t, "1 *1 R!H u0 {2,S}\n2 *2 H u0 {1,S}")
		acceptor := pat(t, "1 *3 R!H u1")

		products, err := eng.Apply([]domain.Structure{donor, acceptor}, true)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.True(t, products[0].IsPattern())
		assert.Equal(t, 1, products[0].CountLabel("*1"))
		assert.Equal(t, 1, products[1].CountLabel("*3"))
	})

	t.Run("broken aromatic system that cannot kekulize rejects the candidate", func(t *testing.T) {
		eng, err := New("ring_open", &domain.Recipe{Actions: []domain.Action{
			{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
			{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*6", Order: 1},
		}}, Tables{})
		require.NoError(t, err)

		benzene := mol(t, "1 *1 C u0 {2,B} {6,B}\n2 *2 C u0 {1,B} {3,B}\n3 *3 C u0 {2,B} {4,B}\n4 *4 C u0 {3,B} {5,B}\n5 *5 C u0 {4,B} {6,B}\n6 *6 C u0 {5,B} {1,B}")
		_, err = eng.Apply([]domain.Structure{benzene}, true)
		var invalid *domain.InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "KEKULIZE", invalid.Action)
	})

	t.Run("no reactants is a definition error", func(t *testing.T) {
		eng, err := New("h_transfer", abstraction, Tables{})
		require.NoError(t, err)

		_, err = eng.Apply(nil, true)
		var kerr *domain.KineticsError
		require.ErrorAs(t, err, &kerr)
	})
}

func TestEngineRelabelTables(t *testing.T) {
	recombination := &domain.Recipe{Actions: []domain.Action{
		{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*2", Order: 1},
		{Kind: domain.ActionLoseRadical, Label1: "*1", Order: 1},
		{Kind: domain.ActionLoseRadical, Label1: "*2", Order: 1},
	}}
	tables := Tables{
		Duplicate: []DuplicateRule{{Label: "*1", Replacement: "*2"}},
		Restore:   []RenameRule{{From: "*2", To: "*1"}},
	}

	t.Run("duplicate table splits repeated labels before forward run", func(t *testing.T) {
		eng, err := New("recombination", recombination, tables)
		require.NoError(t, err)

		products, err := eng.Apply([]domain.Structure{
			mol(t, "1 *1 C u1"),
			mol(t, "1 *1 C u1"),
		}, true)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, 1, products[0].CountLabel("*1"))
		assert.Equal(t, 1, products[0].CountLabel("*2"))
		assert.True(t, molecule.NewMatcher().Isomorphic(products[0],
			mol(t, "1 C u0 {2,S}\n2 C u0 {1,S}")))
	})

	t.Run("duplicate table requires exactly two occurrences", func(t *testing.T) {
		eng, err := New("recombination", recombination, tables)
		require.NoError(t, err)

		_, err = eng.Apply([]domain.Structure{mol(t, "1 *1 C u1")}, true)
		var kerr *domain.KineticsError
		require.ErrorAs(t, err, &kerr)
	})

	t.Run("restore table rebuilds the forward label set after reverse run", func(t *testing.T) {
		eng, err := New("recombination", recombination, tables)
		require.NoError(t, err)

		products, err := eng.Apply([]domain.Structure{
			mol(t, "1 *1 C u0 {2,S}\n2 *2 C u0 {1,S}"),
		}, false)
		require.NoError(t, err)
		require.Len(t, products, 2)
		for _, p := range products {
			assert.Equal(t, 1, p.CountLabel("*1"))
			assert.Equal(t, 0, p.CountLabel("*2"))
		}
	})

	t.Run("product table swaps labels on split products", func(t *testing.T) {
		eng, err := New("h_transfer", &domain.Recipe{Actions: []domain.Action{
			{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
			{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*3", Order: 1},
			{Kind: domain.ActionGainRadical, Label1: "*1", Order: 1},
			{Kind: domain.ActionLoseRadical, Label1: "*3", Order: 1},
		}}, Tables{
			Product: []RenameRule{{From: "*1", To: "*3"}, {From: "*3", To: "*1"}},
		})
		require.NoError(t, err)

		products, err := eng.Apply([]domain.Structure{
			mol(t, "1 *1 C u0 {2,S}\n2 *2 H u0 {1,S}"),
			mol(t, "1 *3 O u1"),
		}, true)
		require.NoError(t, err)
		require.Len(t, products, 2)

		// After the swap the saturated product carries *1 and leads.
		assert.Equal(t, 1, products[0].CountLabel("*1"))
		assert.Equal(t, 1, products[0].CountLabel("*2"))
		assert.Equal(t, 1, products[1].CountLabel("*3"))
		assert.True(t, molecule.NewMatcher().Isomorphic(products[1], mol(t, "1 C u1")))
	})
}

func TestNewValidation(t *testing.T) {
	valid := &domain.Recipe{Actions: []domain.Action{
		{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*2", Order: 1},
	}}

	t.Run("empty recipe", func(t *testing.T) {
		_, err := New("f", &domain.Recipe{}, Tables{})
		require.Error(t, err)
	})

	t.Run("malformed action", func(t *testing.T) {
		_, err := New("f", &domain.Recipe{Actions: []domain.Action{
			{Kind: "TELEPORT", Label1: "*1"},
		}}, Tables{})
		var aerr *domain.ActionError
		require.ErrorAs(t, err, &aerr)
	})

	t.Run("bad table labels", func(t *testing.T) {
		_, err := New("f", valid, Tables{Duplicate: []DuplicateRule{{Label: "x", Replacement: "*2"}}})
		require.Error(t, err)
	})

	t.Run("self rename", func(t *testing.T) {
		_, err := New("f", valid, Tables{Restore: []RenameRule{{From: "*1", To: "*1"}}})
		require.Error(t, err)
	})

	t.Run("double rename of one label", func(t *testing.T) {
		_, err := New("f", valid, Tables{Product: []RenameRule{
			{From: "*1", To: "*2"},
			{From: "*1", To: "*3"},
		}})
		require.Error(t, err)
	})

	t.Run("reverse is the action-wise inverse", func(t *testing.T) {
		eng, err := New("f", &domain.Recipe{Actions: []domain.Action{
			{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
			{Kind: domain.ActionGainRadical, Label1: "*1", Order: 1},
		}}, Tables{})
		require.NoError(t, err)

		rev := eng.Reverse()
		require.Len(t, rev.Actions, 2)
		assert.Equal(t, domain.ActionFormBond, rev.Actions[0].Kind)
		assert.Equal(t, domain.ActionLoseRadical, rev.Actions[1].Kind)
	})
}

func TestTablesValidate(t *testing.T) {
	assert.NoError(t, Tables{}.Validate())
	assert.NoError(t, Tables{
		Duplicate: []DuplicateRule{{Label: "*1", Replacement: "*2"}},
		Restore:   []RenameRule{{From: "*2", To: "*1"}},
		Product:   []RenameRule{{From: "*1", To: "*3"}, {From: "*3", To: "*1"}},
	}.Validate())

	assert.Error(t, Tables{Duplicate: []DuplicateRule{{Label: "*1", Replacement: "*1"}}}.Validate())
	assert.Error(t, Tables{Restore: []RenameRule{{From: "1", To: "*2"}}}.Validate())
}
