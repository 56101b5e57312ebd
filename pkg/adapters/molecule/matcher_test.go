package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherMatch(t *testing.T) {
	m := NewMatcher()

	t.Run("abstraction site matches each methane hydrogen", func(t *testing.T) {
		pattern := mustPat(t, "1 *1 R u[0] {2,S}\n2 *2 H u[0] {1,S}")
		methane := mustMol(t, methaneAdj)

		maps := m.Match(pattern, methane)
		require.Len(t, maps, 4)
		for _, mp := range maps {
			assert.Equal(t, 0, mp[0], "site *1 must land on the carbon")
			assert.NotEqual(t, 0, mp[1])
		}
	})

	t.Run("labels pin the embedding when both sides carry them", func(t *testing.T) {
		pattern := mustPat(t, "1 *1 R u[0] {2,S}\n2 *2 H u[0] {1,S}")
		target := mustMol(t, `1 C u0 {2,S} {3,S} {4,S} {5,S}
2 *2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}`)
		maps := m.Match(pattern, target)
		require.Len(t, maps, 1)
		assert.Equal(t, 1, maps[0][1])
	})

	t.Run("radical constraint filters", func(t *testing.T) {
		pattern := mustPat(t, "1 C u[1]")
		assert.False(t, m.Matches(pattern, mustMol(t, "1 C u0")))
		assert.True(t, m.Matches(pattern, mustMol(t, "1 C u1")))
	})

	t.Run("ring pin filters", func(t *testing.T) {
		inRing := mustPat(t, "1 C r1")
		cyclopropane := mustMol(t, "1 C u0 {2,S} {3,S}\n2 C u0 {1,S} {3,S}\n3 C u0 {1,S} {2,S}")
		ethane := mustMol(t, "1 C u0 {2,S}\n2 C u0 {1,S}")
		assert.True(t, m.Matches(inRing, cyclopropane))
		assert.False(t, m.Matches(inRing, ethane))
	})

	t.Run("extra target bonds between mapped sites are allowed", func(t *testing.T) {
		unbonded := mustPat(t, "1 C\n2 C")
		ethane := mustMol(t, "1 C u0 {2,S}\n2 C u0 {1,S}")
		assert.True(t, m.Matches(unbonded, ethane))
	})

	t.Run("pattern bond must be realized", func(t *testing.T) {
		doubleBond := mustPat(t, "1 C {2,D}\n2 C {1,D}")
		ethane := mustMol(t, "1 C u0 {2,S}\n2 C u0 {1,S}")
		ethylene := mustMol(t, "1 C u0 {2,D}\n2 C u0 {1,D}")
		assert.False(t, m.Matches(doubleBond, ethane))
		assert.True(t, m.Matches(doubleBond, ethylene))
	})
}

func TestMatcherIsomorphic(t *testing.T) {
	m := NewMatcher()

	t.Run("labels do not participate", func(t *testing.T) {
		a := mustMol(t, "1 *1 C u0 {2,S}\n2 H u0 {1,S}")
		b := mustMol(t, "1 C u0 {2,S}\n2 *3 H u0 {1,S}")
		assert.True(t, m.Isomorphic(a, b))
	})

	t.Run("atom order does not matter", func(t *testing.T) {
		a := mustMol(t, "1 O u0 {2,S}\n2 H u0 {1,S}")
		b := mustMol(t, "1 H u0 {2,S}\n2 O u0 {1,S}")
		assert.True(t, m.Isomorphic(a, b))
	})

	t.Run("radical counts matter", func(t *testing.T) {
		a := mustMol(t, "1 C u1")
		b := mustMol(t, "1 C u0")
		assert.False(t, m.Isomorphic(a, b))
	})

	t.Run("bond orders matter", func(t *testing.T) {
		a := mustMol(t, "1 C u0 {2,S}\n2 C u0 {1,S}")
		b := mustMol(t, "1 C u0 {2,D}\n2 C u0 {1,D}")
		assert.False(t, m.Isomorphic(a, b))
	})

	t.Run("patterns compare constraint sets", func(t *testing.T) {
		a := mustPat(t, "1 [C,O] u[0,1]")
		b := mustPat(t, "1 [O,C] u[1,0]")
		c := mustPat(t, "1 [C,O] u[0]")
		assert.True(t, m.Isomorphic(a, b))
		assert.False(t, m.Isomorphic(a, c))
	})

	t.Run("mixed kinds never compare equal", func(t *testing.T) {
		assert.False(t, m.Isomorphic(mustMol(t, "1 C u0"), mustPat(t, "1 C u[0]")))
	})
}

func TestMatcherRefines(t *testing.T) {
	m := NewMatcher()
	parent := mustPat(t, "1 *1 R!H u[0,1] {2,S}\n2 *2 H u[0] {1,S}")

	t.Run("tighter child refines", func(t *testing.T) {
		child := mustPat(t, "1 *1 C u[0] {2,S}\n2 *2 H u[0] {1,S}")
		assert.True(t, m.Refines(child, parent))
	})

	t.Run("wider child does not", func(t *testing.T) {
		child := mustPat(t, "1 *1 R u[0,1] {2,S}\n2 *2 H u[0] {1,S}")
		assert.False(t, m.Refines(child, parent))
	})

	t.Run("child with extra sites refines", func(t *testing.T) {
		child := mustPat(t, "1 *1 C u[0] {2,S} {3,S}\n2 *2 H u[0] {1,S}\n3 O u[0] {1,S}")
		assert.True(t, m.Refines(child, parent))
	})

	t.Run("molecule refines the pattern it matches", func(t *testing.T) {
		assert.True(t, m.Refines(mustMol(t, "1 *1 C u0 {2,S}\n2 *2 H u0 {1,S}"), parent))
	})
}
