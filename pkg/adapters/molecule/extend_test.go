package molecule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/pkg/domain"
)

func extensionsByKind(exts []domain.Extension) map[domain.ExtensionKind][]domain.Extension {
	out := make(map[domain.ExtensionKind][]domain.Extension)
	for _, e := range exts {
		out[e.Kind] = append(out[e.Kind], e)
	}
	return out
}

func TestPatternExtensions(t *testing.T) {
	t.Run("every open dimension is proposed", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0,1] {2,[S,D]}\n2 *2 R!H u[0] {1,[S,D]}")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)

		kinds := extensionsByKind(exts)
		assert.Len(t, kinds[domain.ExtendAtomType], 2+5, "two choices on site 1, five on the R!H site")
		assert.Len(t, kinds[domain.ExtendRadical], 2, "site 1 radicals")
		assert.Len(t, kinds[domain.ExtendRing], 2)
		assert.Len(t, kinds[domain.ExtendBondOrder], 2)
		assert.Len(t, kinds[domain.ExtendExternalBond], 2)
		assert.Empty(t, kinds[domain.ExtendInternalBond], "both sites already bonded")
	})

	t.Run("names derive from the base label", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		var names []string
		for _, e := range exts {
			names = append(names, e.Label)
		}
		assert.Contains(t, names, "Root_1[C,O]->C")
		assert.Contains(t, names, "Root_1[C,O]->O")
		for _, n := range names {
			assert.True(t, strings.HasPrefix(n, "Root_"), n)
		}
	})

	t.Run("complements negate the refinement", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)
		ext := kinds[domain.ExtendAtomType][0]
		require.NotNil(t, ext.Complement)
		child := ext.Pattern.(*Pattern)
		comp := ext.Complement.(*Pattern)
		assert.Equal(t, []string{"C"}, child.Atom(0).Types)
		assert.Equal(t, []string{"O"}, comp.Atom(0).Types)
	})

	t.Run("bound dimensions stop being proposed", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0,1]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)
		require.NotEmpty(t, kinds[domain.ExtendAtomType])

		p.BindDimension(kinds[domain.ExtendAtomType][0])
		exts, err = p.Extensions("Root")
		require.NoError(t, err)
		kinds = extensionsByKind(exts)
		assert.Empty(t, kinds[domain.ExtendAtomType])
		assert.NotEmpty(t, kinds[domain.ExtendRadical], "other dimensions stay open")

		p.ClearDimensions()
		exts, err = p.Extensions("Root")
		require.NoError(t, err)
		assert.NotEmpty(t, extensionsByKind(exts)[domain.ExtendAtomType])
	})

	t.Run("internal bond proposed for unbonded pair", func(t *testing.T) {
		p := mustPat(t, "1 C {2,S}\n2 C {1,S} {3,S}\n3 C {2,S}")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)
		require.Len(t, kinds[domain.ExtendInternalBond], 1)
		ext := kinds[domain.ExtendInternalBond][0]
		assert.Equal(t, [2]int{0, 2}, ext.Sites)
		assert.Nil(t, ext.Complement)
		child := ext.Pattern.(*Pattern)
		require.NotNil(t, child.Bond(0, 2))
	})

	t.Run("external bond adds a wildcard site", func(t *testing.T) {
		p := mustPat(t, "1 *1 C u[1]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)
		require.Len(t, kinds[domain.ExtendExternalBond], 1)
		child := kinds[domain.ExtendExternalBond][0].Pattern.(*Pattern)
		require.Equal(t, 2, child.SiteCount())
		assert.Empty(t, child.Atom(1).Types)
		require.NotNil(t, child.Bond(0, 1))
		assert.Len(t, child.Bond(0, 1).Orders, 4)
	})

	t.Run("saturated hydrogen gets no external bond", func(t *testing.T) {
		p := mustPat(t, "1 H u[0] {2,S}\n2 C {1,S}")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		for _, e := range exts {
			if e.Kind == domain.ExtendExternalBond {
				assert.NotEqual(t, 0, e.Sites[0], "hydrogen with a bond is saturated")
			}
		}
	})
}

func TestPatternNarrow(t *testing.T) {
	t.Run("narrows bound atom types onto children", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O,N] u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)

		var chosen domain.Extension
		for _, e := range kinds[domain.ExtendAtomType] {
			if e.Pattern.(*Pattern).Atom(0).Types[0] == "C" {
				chosen = e
			}
		}
		require.NotNil(t, chosen.Pattern)
		p.BindDimension(chosen)

		p.Narrow([]domain.Structure{chosen.Pattern}, false, nil)
		assert.Equal(t, []string{"C"}, p.Atom(0).Types)
	})

	t.Run("narrowing is vetoed by keep", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		ext := extensionsByKind(exts)[domain.ExtendAtomType][0]
		p.BindDimension(ext)

		p.Narrow([]domain.Structure{ext.Pattern}, false, func(domain.Structure) bool { return false })
		assert.Equal(t, []string{"C", "O"}, p.Atom(0).Types)
	})

	t.Run("children outside the bound block narrowing", func(t *testing.T) {
		p := mustPat(t, "1 *1 [C,O] u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		kinds := extensionsByKind(exts)
		var cExt, oExt domain.Extension
		for _, e := range kinds[domain.ExtendAtomType] {
			if e.Pattern.(*Pattern).Atom(0).Types[0] == "C" {
				cExt = e
			} else {
				oExt = e
			}
		}
		p.BindDimension(cExt)

		// An O child is outside the recorded C bound.
		p.Narrow([]domain.Structure{cExt.Pattern, oExt.Pattern}, false, nil)
		assert.Equal(t, []string{"C", "O"}, p.Atom(0).Types)
	})

	t.Run("leaf skips indistinguishable sites", func(t *testing.T) {
		p := mustPat(t, "1 C u[0] {2,S} {3,S}\n2 [C,O] u[0] {1,S}\n3 [C,O] u[0] {1,S}")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		for _, e := range exts {
			if e.Kind == domain.ExtendAtomType && e.Sites[0] == 1 &&
				e.Pattern.(*Pattern).Atom(1).Types[0] == "C" {
				p.BindDimension(e)
			}
		}
		p.Narrow(nil, true, nil)
		assert.Equal(t, []string{"C", "O"}, p.Atom(1).Types,
			"sites 2 and 3 are twins, so neither may be narrowed on a leaf")
	})

	t.Run("ring bound narrows when children agree", func(t *testing.T) {
		p := mustPat(t, "1 C u[0]")
		exts, err := p.Extensions("Root")
		require.NoError(t, err)
		ringExt := extensionsByKind(exts)[domain.ExtendRing][0]
		p.BindDimension(ringExt)

		p.Narrow([]domain.Structure{ringExt.Pattern}, false, nil)
		require.NotNil(t, p.Atom(0).Ring)
		assert.True(t, *p.Atom(0).Ring)
	})
}
