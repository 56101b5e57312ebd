package generate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/recipe"
	"github.com/veldtlab/grove/internal/testutils"
	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

func TestGenerateAbstraction(t *testing.T) {
	m := molecule.NewMatcher()
	gen, err := generate.New(testutils.AbstractionFamily(t), m)
	require.NoError(t, err)

	methane := testutils.Mol(t, testutils.MethaneAdj)
	hydroxyl := testutils.Mol(t, testutils.HydroxylAdj)

	t.Run("methane plus hydroxyl yields one abstraction with degeneracy four", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{
				domain.NewSpecies("CH4", methane),
				domain.NewSpecies("OH", hydroxyl),
			},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)

		rxn := rxns[0]
		assert.Equal(t, 4, rxn.Degeneracy, "four equivalent hydrogens")
		assert.Equal(t, []string{"C_H", "O_rad"}, rxn.Template)
		assert.True(t, rxn.IsForward)
		assert.True(t, rxn.Reversible)
		assert.False(t, rxn.Duplicate)
		assert.Equal(t, "h_abstraction", rxn.Family)

		require.Len(t, rxn.Products, 2)
		methyl := testutils.Mol(t, testutils.MethylAdj)
		water := testutils.Mol(t, testutils.WaterAdj)
		assert.True(t, m.Isomorphic(rxn.Products[0].Canonical(), methyl))
		assert.True(t, m.Isomorphic(rxn.Products[1].Canonical(), water))

		// The carbon keeps *1 through the edit, so the radical product
		// leads the ordering and the pair rules resolve.
		assert.Equal(t, 1, rxn.Products[0].Canonical().CountLabel("*1"))
		assert.Equal(t, []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 1, Product: 1}}, rxn.Pairs)
	})

	t.Run("identity reactions are dropped", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{
				domain.NewSpecies("CH4", methane),
				domain.NewSpecies("CH3", testutils.Mol(t, testutils.MethylAdj)),
			},
		})
		require.NoError(t, err)
		assert.Empty(t, rxns, "methane plus methyl only regenerates itself")
	})

	t.Run("input species are not mutated", func(t *testing.T) {
		before := methane.Render()
		_, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{
				domain.NewSpecies("CH4", methane),
				domain.NewSpecies("OH", hydroxyl),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, before, methane.Render())
	})
}

const propaneAdj = `1 C u0 {2,S} {4,S} {5,S} {6,S}
2 C u0 {1,S} {3,S} {7,S} {8,S}
3 C u0 {2,S} {9,S} {10,S} {11,S}
4 H u0 {1,S}
5 H u0 {1,S}
6 H u0 {1,S}
7 H u0 {2,S}
8 H u0 {2,S}
9 H u0 {3,S}
10 H u0 {3,S}
11 H u0 {3,S}`

const nPropylAdj = `1 C u1 {2,S} {4,S} {5,S}
2 C u0 {1,S} {3,S} {6,S} {7,S}
3 C u0 {2,S} {8,S} {9,S} {10,S}
4 H u0 {1,S}
5 H u0 {1,S}
6 H u0 {2,S}
7 H u0 {2,S}
8 H u0 {3,S}
9 H u0 {3,S}
10 H u0 {3,S}`

const isoPropylAdj = `1 C u0 {2,S} {4,S} {5,S} {6,S}
2 C u1 {1,S} {3,S} {7,S}
3 C u0 {2,S} {8,S} {9,S} {10,S}
4 H u0 {1,S}
5 H u0 {1,S}
6 H u0 {1,S}
7 H u0 {2,S}
8 H u0 {3,S}
9 H u0 {3,S}
10 H u0 {3,S}`

func TestGenerateSiteSelectivity(t *testing.T) {
	m := molecule.NewMatcher()
	gen, err := generate.New(testutils.AbstractionFamily(t), m)
	require.NoError(t, err)

	propane := domain.NewSpecies("C3H8", testutils.Mol(t, propaneAdj))
	hydroxyl := domain.NewSpecies("OH", testutils.Mol(t, testutils.HydroxylAdj))
	isoPropyl := testutils.Mol(t, isoPropylAdj)
	nPropyl := testutils.Mol(t, nPropylAdj)

	t.Run("primary and secondary sites come out as separate reactions", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{propane, hydroxyl},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 2)

		byDeg := map[int]*domain.Reaction{}
		for _, rxn := range rxns {
			byDeg[rxn.Degeneracy] = rxn
		}
		require.Contains(t, byDeg, 6, "six primary hydrogens")
		require.Contains(t, byDeg, 2, "two secondary hydrogens")

		assert.True(t, m.Isomorphic(byDeg[6].Products[0].Canonical(), nPropyl))
		assert.True(t, m.Isomorphic(byDeg[2].Products[0].Canonical(), isoPropyl))
		for _, rxn := range rxns {
			assert.Equal(t, []string{"C_H", "O_rad"}, rxn.Template)
			assert.False(t, rxn.Duplicate, "distinct products are not duplicates")
		}
	})

	t.Run("requested products narrow the result", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{propane, hydroxyl},
			Products: []*domain.Species{
				domain.NewSpecies("iC3H7", isoPropyl),
				domain.NewSpecies("H2O", testutils.Mol(t, testutils.WaterAdj)),
			},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)
		assert.Equal(t, 2, rxns[0].Degeneracy)
		assert.True(t, m.Isomorphic(rxns[0].Products[0].Canonical(), isoPropyl))
	})
}

func TestGenerateRecombination(t *testing.T) {
	m := molecule.NewMatcher()
	gen, err := generate.New(testutils.RecombinationFamily(t), m)
	require.NoError(t, err)

	methyl := domain.NewSpecies("CH3", testutils.Mol(t, testutils.MethylAdj))
	ethane := testutils.Mol(t, testutils.EthaneAdj)

	t.Run("two methyls recombine once", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methyl, methyl},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)

		rxn := rxns[0]
		assert.Equal(t, 1, rxn.Degeneracy, "identical radicals deflate the slot orders")
		assert.Equal(t, []string{"C_rad", "C_rad"}, rxn.Template)
		assert.True(t, rxn.IsForward)

		require.Len(t, rxn.Products, 1)
		product := rxn.Products[0].Canonical()
		assert.True(t, m.Isomorphic(product, ethane))

		// The duplicate table split the repeated *1 across the two ends.
		assert.Equal(t, 1, product.CountLabel("*1"))
		assert.Equal(t, 1, product.CountLabel("*2"))
		assert.Equal(t, []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 1, Product: 0}}, rxn.Pairs)
	})

	t.Run("ethane scission runs through the reverse template", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{domain.NewSpecies("C2H6", ethane)},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)

		rxn := rxns[0]
		assert.False(t, rxn.IsForward)
		assert.Equal(t, 2, rxn.Degeneracy, "either carbon keeps the bond electrons")
		assert.Equal(t, []string{"C_C"}, rxn.Template)

		require.Len(t, rxn.Products, 2)
		for _, p := range rxn.Products {
			c := p.Canonical()
			assert.True(t, m.Isomorphic(c, methyl.Canonical()))
			// The restore table put the forward label back on both halves.
			assert.Equal(t, 1, c.CountLabel("*1"))
			assert.Equal(t, 0, c.CountLabel("*2"))
		}
	})
}

func TestGenerateAdsorption(t *testing.T) {
	m := molecule.NewMatcher()
	gen, err := generate.New(testutils.AdsorptionFamily(t), m)
	require.NoError(t, err)

	hydrogen := domain.NewSpecies("H2", testutils.Mol(t, testutils.HydrogenAdj))
	site := domain.NewSpecies("X", testutils.Mol(t, testutils.VacantSiteAdj))
	adsorbedH := domain.NewSpecies("HX", testutils.Mol(t, testutils.AdsorbedHAdj))

	t.Run("dissociative adsorption doubles the vacant site", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{hydrogen, site},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)

		rxn := rxns[0]
		assert.Equal(t, 2, rxn.Degeneracy, "either hydrogen can take either site")
		assert.Equal(t, []string{"H2", "X_1", "X_2"}, rxn.Template)
		assert.True(t, rxn.IsForward)

		require.Len(t, rxn.Reactants, 3, "the site enters twice")
		require.Len(t, rxn.Products, 2)
		for _, p := range rxn.Products {
			assert.True(t, m.Isomorphic(p.Canonical(), adsorbedH.Canonical()))
			assert.True(t, p.Canonical().IsAdsorbed())
		}

		// Vacant sites carry no flux.
		assert.Equal(t, []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 0, Product: 1}}, rxn.Pairs)
	})

	t.Run("associative desorption frees both sites", func(t *testing.T) {
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{adsorbedH, adsorbedH},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)

		rxn := rxns[0]
		assert.False(t, rxn.IsForward)
		assert.Equal(t, 1, rxn.Degeneracy)
		assert.Equal(t, []string{"HX_1", "HX_2"}, rxn.Template)

		require.Len(t, rxn.Products, 3)
		assert.True(t, m.Isomorphic(rxn.Products[0].Canonical(), hydrogen.Canonical()),
			"the gas product leads the ordering")
		assert.True(t, rxn.Products[1].Canonical().IsVacantSite())
		assert.True(t, rxn.Products[2].Canonical().IsVacantSite())

		assert.Equal(t, []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 1, Product: 0}}, rxn.Pairs)
	})
}

func TestGenerateForbidden(t *testing.T) {
	m := molecule.NewMatcher()
	methane := domain.NewSpecies("CH4", testutils.Mol(t, testutils.MethaneAdj))
	hydroxyl := domain.NewSpecies("OH", testutils.Mol(t, testutils.HydroxylAdj))

	t.Run("family list drops candidates whose products match", func(t *testing.T) {
		family := testutils.AbstractionFamily(t)
		family.Forbidden = []domain.Structure{testutils.Pat(t, testutils.WaterAdj)}
		gen, err := generate.New(family, m)
		require.NoError(t, err)

		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methane, hydroxyl},
		})
		require.NoError(t, err)
		assert.Empty(t, rxns)
	})

	t.Run("global list applies on top of the family list", func(t *testing.T) {
		gen, err := generate.New(testutils.AbstractionFamily(t), m,
			generate.WithGlobalForbidden(testutils.Pat(t, testutils.WaterAdj)))
		require.NoError(t, err)

		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methane, hydroxyl},
		})
		require.NoError(t, err)
		assert.Empty(t, rxns)
	})

	t.Run("a forbidden reverse drops the forward reaction", func(t *testing.T) {
		family := testutils.AbstractionFamily(t)
		family.Forbidden = []domain.Structure{testutils.Pat(t, testutils.MethaneAdj)}
		gen, err := generate.New(family, m)
		require.NoError(t, err)

		// Forward products pass, but regenerating methane from them is
		// forbidden, so the self-reverse check eliminates the reaction.
		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methane, hydroxyl},
		})
		require.NoError(t, err)
		assert.Empty(t, rxns)
	})
}

func TestGenerateThreeSlots(t *testing.T) {
	m := molecule.NewMatcher()

	fwd := testutils.Recipe(t,
		domain.Action{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*2", Order: 1},
		domain.Action{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*3", Order: 1},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*1", Order: 1},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*2", Order: 2},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*3", Order: 1},
	)
	eng, err := recipe.New("carbene_capping", fwd, recipe.Tables{})
	require.NoError(t, err)

	arena := map[string]*domain.Entry{
		"R_rad_L": {Index: 1, Label: "R_rad_L", Pattern: testutils.Pat(t, "1 *1 R u[1]")},
		"R_birad": {Index: 2, Label: "R_birad", Pattern: testutils.Pat(t, "1 *2 R u[2]")},
		"R_rad_R": {Index: 3, Label: "R_rad_R", Pattern: testutils.Pat(t, "1 *3 R u[1]")},
	}
	family := &generate.Family{
		Name: "carbene_capping",
		Forward: &domain.Template{
			Reactants: []*domain.Entry{arena["R_rad_L"], arena["R_birad"], arena["R_rad_R"]},
			Products:  []*domain.Entry{{Label: "R_R_R"}},
		},
		Engine: eng,
		Arena:  arena,
	}
	gen, err := generate.New(family, m)
	require.NoError(t, err)

	methylene := testutils.Mol(t, "1 C u2 {2,S} {3,S}\n2 H u0 {1,S}\n3 H u0 {1,S}")
	methyl := testutils.Mol(t, testutils.MethylAdj)

	rxns, err := gen.Generate(context.Background(), generate.Request{
		Reactants: []*domain.Species{
			domain.NewSpecies("CH3", methyl),
			domain.NewSpecies("CH2", methylene),
			domain.NewSpecies("CH3", methyl),
		},
	})
	require.NoError(t, err)
	require.Len(t, rxns, 1)

	rxn := rxns[0]
	assert.Equal(t, 1, rxn.Degeneracy, "two of the three reactants are interchangeable")
	assert.Equal(t, []string{"R_rad_L", "R_birad", "R_rad_R"}, rxn.Template)
	require.Len(t, rxn.Products, 1)
	assert.True(t, m.Isomorphic(rxn.Products[0].Canonical(), testutils.Mol(t, propaneAdj)))
	assert.Equal(t, []domain.Pair{{Reactant: 0, Product: 0}, {Reactant: 1, Product: 0}, {Reactant: 2, Product: 0}}, rxn.Pairs)
}

func TestGenerateRequestValidation(t *testing.T) {
	m := molecule.NewMatcher()
	gen, err := generate.New(testutils.AbstractionFamily(t), m)
	require.NoError(t, err)

	t.Run("no reactants", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), generate.Request{})
		assert.ErrorContains(t, err, "1 to 3 reactant species")
	})

	t.Run("too many reactants", func(t *testing.T) {
		sp := domain.NewSpecies("CH4", testutils.Mol(t, testutils.MethaneAdj))
		_, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{sp, sp, sp, sp},
		})
		assert.ErrorContains(t, err, "1 to 3 reactant species")
	})

	t.Run("species without structures", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{domain.NewSpecies("empty")},
		})
		assert.ErrorContains(t, err, "without structures")
	})

	t.Run("canceled context stops enumeration", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := gen.Generate(ctx, generate.Request{
			Reactants: []*domain.Species{
				domain.NewSpecies("CH4", testutils.Mol(t, testutils.MethaneAdj)),
				domain.NewSpecies("OH", testutils.Mol(t, testutils.HydroxylAdj)),
			},
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewGenerator(t *testing.T) {
	t.Run("nil matcher", func(t *testing.T) {
		_, err := generate.New(testutils.AbstractionFamily(t), nil)
		assert.ErrorContains(t, err, "nil matcher")
	})

	t.Run("invalid family", func(t *testing.T) {
		family := testutils.AbstractionFamily(t)
		family.Name = ""
		_, err := generate.New(family, molecule.NewMatcher())
		assert.Error(t, err)
	})
}
