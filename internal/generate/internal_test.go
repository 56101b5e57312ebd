package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

func mustMol(t *testing.T, text string) *molecule.Molecule {
	t.Helper()
	m, err := molecule.ParseMolecule(text)
	require.NoError(t, err)
	return m
}

const methaneText = `1 C u0 {2,S} {3,S} {4,S} {5,S}
2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}`

func TestSameReactants(t *testing.T) {
	m := molecule.NewMatcher()
	methane := func() *domain.Species { return domain.NewSpecies("CH4", mustMol(t, methaneText)) }
	hydroxyl := domain.NewSpecies("OH", mustMol(t, "1 O u1 {2,S}\n2 H u0 {1,S}"))

	assert.Equal(t, 0, sameReactants(m, []*domain.Species{methane()}))
	assert.Equal(t, 0, sameReactants(m, []*domain.Species{methane(), hydroxyl}))
	assert.Equal(t, 2, sameReactants(m, []*domain.Species{methane(), methane()}))
	assert.Equal(t, 2, sameReactants(m, []*domain.Species{methane(), methane(), hydroxyl}))
	assert.Equal(t, 3, sameReactants(m, []*domain.Species{methane(), methane(), methane()}))
}

func TestMarkDuplicates(t *testing.T) {
	m := molecule.NewMatcher()
	reaction := func(template string, forward bool) *domain.Reaction {
		return &domain.Reaction{
			Reactants: []*domain.Species{domain.NewSpecies("CH4", mustMol(t, methaneText))},
			Products:  []*domain.Species{domain.NewSpecies("CH3", mustMol(t, "1 C u1 {2,S} {3,S} {4,S}\n2 H u0 {1,S}\n3 H u0 {1,S}\n4 H u0 {1,S}")), domain.NewSpecies("H", mustMol(t, "1 H u1"))},
			Template:  []string{template},
			IsForward: forward,
		}
	}

	sameDirection := []*domain.Reaction{reaction("A", true), reaction("B", true)}
	markDuplicates(m, sameDirection)
	assert.True(t, sameDirection[0].Duplicate)
	assert.True(t, sameDirection[1].Duplicate)

	acrossDirections := []*domain.Reaction{reaction("A", true), reaction("B", false)}
	markDuplicates(m, acrossDirections)
	assert.False(t, acrossDirections[0].Duplicate)
	assert.False(t, acrossDirections[1].Duplicate)
}

func TestSameStructureLists(t *testing.T) {
	m := molecule.NewMatcher()
	ch3 := mustMol(t, "1 C u1 {2,S} {3,S} {4,S}\n2 H u0 {1,S}\n3 H u0 {1,S}\n4 H u0 {1,S}")
	oh := mustMol(t, "1 O u1 {2,S}\n2 H u0 {1,S}")

	assert.True(t, sameStructureLists(m,
		[]domain.Structure{ch3, oh},
		[]domain.Structure{oh.Copy(), ch3.Copy()}), "order must not matter")

	assert.False(t, sameStructureLists(m,
		[]domain.Structure{ch3, ch3},
		[]domain.Structure{ch3, oh}))

	assert.False(t, sameStructureLists(m,
		[]domain.Structure{ch3},
		[]domain.Structure{ch3, ch3}))
}

func TestFluxPairs(t *testing.T) {
	adsorbed := func() *domain.Species {
		return domain.NewSpecies("HX", mustMol(t, "1 H u0 {2,S}\n2 X u0 {1,S}"))
	}
	vacant := func() *domain.Species {
		return domain.NewSpecies("X", mustMol(t, "1 X u0"))
	}

	t.Run("vacant sites carry no flux", func(t *testing.T) {
		assert.Equal(t, []int{0}, fluxIndices([]*domain.Species{adsorbed(), vacant()}))
		assert.Equal(t, []int{1}, fluxIndices([]*domain.Species{vacant(), adsorbed()}))
	})

	t.Run("all-vacant sides fall back to every index", func(t *testing.T) {
		assert.Equal(t, []int{0, 1}, fluxIndices([]*domain.Species{vacant(), vacant()}))
	})

	t.Run("gas products", func(t *testing.T) {
		h2 := mustMol(t, "1 H u0 {2,S}\n2 H u0 {1,S}")
		hx := mustMol(t, "1 H u0 {2,S}\n2 X u0 {1,S}")
		x := mustMol(t, "1 X u0")
		assert.True(t, hasGasProduct([]domain.Structure{hx, h2}))
		assert.False(t, hasGasProduct([]domain.Structure{hx, x}))
	})
}
