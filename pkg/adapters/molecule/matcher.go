package molecule

import (
	"sort"

	"github.com/veldtlab/grove/pkg/domain"
)

// Matcher is a backtracking subgraph matcher over the package's graph
// types. It implements ports.Matcher. The zero value is ready to use and
// safe for concurrent callers; every search walks candidate sites in
// ascending index order, so embedding order is deterministic.
type Matcher struct{}

// NewMatcher returns the package's matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Match returns every embedding of pattern into target, label-seeded:
// whenever pattern and target both carry a `*n` label, the labeled sites
// are pinned to each other.
func (Matcher) Match(pattern, target domain.Structure) []domain.Mapping {
	spec := buildSpec(pattern, target)
	if spec == nil {
		return nil
	}
	return findEmbeddings(spec, true)
}

// Matches reports whether at least one embedding exists.
func (Matcher) Matches(pattern, target domain.Structure) bool {
	spec := buildSpec(pattern, target)
	if spec == nil {
		return false
	}
	return len(findEmbeddings(spec, false)) > 0
}

// Isomorphic reports whole-structure equivalence. Site labels do not
// participate.
func (Matcher) Isomorphic(a, b domain.Structure) bool {
	switch x := a.(type) {
	case *Molecule:
		y, ok := b.(*Molecule)
		if !ok || len(x.atoms) != len(y.atoms) || !sameFormula(x, y) {
			return false
		}
		spec := moleculeIsoSpec(x, y)
		return len(findEmbeddings(spec, false)) > 0
	case *Pattern:
		y, ok := b.(*Pattern)
		if !ok || len(x.atoms) != len(y.atoms) {
			return false
		}
		spec := patternIsoSpec(x, y)
		return len(findEmbeddings(spec, false)) > 0
	}
	return false
}

// Refines reports whether child matches a subset of what parent matches:
// an embedding of parent into child exists under which every child
// constraint is contained in the corresponding parent constraint.
func (m Matcher) Refines(child, parent domain.Structure) bool {
	pp, ok := parent.(*Pattern)
	if !ok {
		return false
	}
	switch c := child.(type) {
	case *Pattern:
		spec := refineSpec(pp, c)
		return len(findEmbeddings(spec, false)) > 0
	case *Molecule:
		return m.Matches(pp, c)
	}
	return false
}

// -- search specification --

// matchSpec describes one search: the pattern side maps into the target
// side, atomOK/bondOK decide feasibility, induced additionally requires
// target bonds between mapped sites to exist on the pattern side.
type matchSpec struct {
	pCount, tCount int
	pNeighbors     func(int) []int
	tNeighbors     func(int) []int
	pHasEdge       func(i, j int) bool
	atomOK         func(pi, ti int) bool
	bondOK         func(pi, pj, ti, tj int) bool
	candidates     [][]int
	induced        bool
	exact          bool // every target site must be covered
}

func buildSpec(pattern, target domain.Structure) *matchSpec {
	switch p := pattern.(type) {
	case *Pattern:
		switch t := target.(type) {
		case *Molecule:
			return patternMoleculeSpec(p, t)
		case *Pattern:
			return refineSpec(p, t)
		}
	case *Molecule:
		if t, ok := target.(*Molecule); ok {
			return moleculeEmbedSpec(p, t)
		}
	}
	return nil
}

// labelCandidates restricts each pattern site's candidate targets to
// same-labeled target sites whenever both sides carry the label.
func labelCandidates(pCount, tCount int, pLabel, tLabel func(int) string) [][]int {
	byLabel := make(map[string][]int)
	for ti := 0; ti < tCount; ti++ {
		if l := tLabel(ti); l != "" {
			byLabel[l] = append(byLabel[l], ti)
		}
	}
	all := make([]int, tCount)
	for i := range all {
		all[i] = i
	}
	out := make([][]int, pCount)
	for pi := 0; pi < pCount; pi++ {
		if l := pLabel(pi); l != "" {
			if sites, ok := byLabel[l]; ok {
				out[pi] = sites
				continue
			}
		}
		out[pi] = all
	}
	return out
}

func patternMoleculeSpec(p *Pattern, t *Molecule) *matchSpec {
	var inRing []bool
	for _, a := range p.atoms {
		if a.Ring != nil {
			inRing = t.ringSites()
			break
		}
	}
	return &matchSpec{
		pCount:     len(p.atoms),
		tCount:     len(t.atoms),
		pNeighbors: p.Neighbors,
		tNeighbors: t.Neighbors,
		pHasEdge:   func(i, j int) bool { return p.bonds[i][j] != nil },
		atomOK: func(pi, ti int) bool {
			pa, ta := p.atoms[pi], t.atoms[ti]
			if !pa.allowedElements()[ta.Element] {
				return false
			}
			if !pa.allowedRadicals()[ta.Radicals] {
				return false
			}
			if !pa.pairAllowed(ta.Pairs) {
				return false
			}
			if pa.Ring != nil && inRing[ti] != *pa.Ring {
				return false
			}
			return true
		},
		bondOK: func(pi, pj, ti, tj int) bool {
			o, ok := t.bonds[ti][tj]
			return ok && p.bonds[pi][pj].allows(o)
		},
		candidates: labelCandidates(len(p.atoms), len(t.atoms),
			func(i int) string { return p.atoms[i].Label },
			func(i int) string { return t.atoms[i].Label }),
	}
}

// refineSpec embeds the general pattern into the refined one with
// containment checks at every site and bond.
func refineSpec(parent, child *Pattern) *matchSpec {
	return &matchSpec{
		pCount:     len(parent.atoms),
		tCount:     len(child.atoms),
		pNeighbors: parent.Neighbors,
		tNeighbors: child.Neighbors,
		pHasEdge:   func(i, j int) bool { return parent.bonds[i][j] != nil },
		atomOK: func(pi, ti int) bool {
			return patternAtomWithin(child.atoms[ti], parent.atoms[pi])
		},
		bondOK: func(pi, pj, ti, tj int) bool {
			cb := child.bonds[ti][tj]
			return cb != nil && cb.subsetOf(parent.bonds[pi][pj])
		},
		candidates: labelCandidates(len(parent.atoms), len(child.atoms),
			func(i int) string { return parent.atoms[i].Label },
			func(i int) string { return child.atoms[i].Label }),
	}
}

// patternAtomWithin reports whether every value inner admits, outer admits
// too.
func patternAtomWithin(inner, outer *PatternAtom) bool {
	oe := outer.allowedElements()
	for e := range inner.allowedElements() {
		if !oe[e] {
			return false
		}
	}
	or := outer.allowedRadicals()
	for u := range inner.allowedRadicals() {
		if !or[u] {
			return false
		}
	}
	if len(outer.Pairs) > 0 {
		if len(inner.Pairs) == 0 {
			return false
		}
		for _, v := range inner.Pairs {
			if !outer.pairAllowed(v) {
				return false
			}
		}
	}
	if outer.Ring != nil && (inner.Ring == nil || *inner.Ring != *outer.Ring) {
		return false
	}
	return true
}

func moleculeEmbedSpec(p, t *Molecule) *matchSpec {
	return &matchSpec{
		pCount:     len(p.atoms),
		tCount:     len(t.atoms),
		pNeighbors: p.Neighbors,
		tNeighbors: t.Neighbors,
		pHasEdge:   func(i, j int) bool { _, ok := p.bonds[i][j]; return ok },
		atomOK: func(pi, ti int) bool {
			return sameAtom(p.atoms[pi], t.atoms[ti])
		},
		bondOK: func(pi, pj, ti, tj int) bool {
			o, ok := t.bonds[ti][tj]
			return ok && o == p.bonds[pi][pj]
		},
		candidates: labelCandidates(len(p.atoms), len(t.atoms),
			func(i int) string { return p.atoms[i].Label },
			func(i int) string { return t.atoms[i].Label }),
	}
}

func moleculeIsoSpec(a, b *Molecule) *matchSpec {
	all := allCandidates(len(a.atoms), len(b.atoms))
	return &matchSpec{
		pCount:     len(a.atoms),
		tCount:     len(b.atoms),
		pNeighbors: a.Neighbors,
		tNeighbors: b.Neighbors,
		pHasEdge:   func(i, j int) bool { _, ok := a.bonds[i][j]; return ok },
		atomOK: func(pi, ti int) bool {
			return sameAtom(a.atoms[pi], b.atoms[ti]) && len(a.bonds[pi]) == len(b.bonds[ti])
		},
		bondOK: func(pi, pj, ti, tj int) bool {
			o, ok := b.bonds[ti][tj]
			return ok && o == a.bonds[pi][pj]
		},
		candidates: all,
		induced:    true,
		exact:      true,
	}
}

func patternIsoSpec(a, b *Pattern) *matchSpec {
	all := allCandidates(len(a.atoms), len(b.atoms))
	return &matchSpec{
		pCount:     len(a.atoms),
		tCount:     len(b.atoms),
		pNeighbors: a.Neighbors,
		tNeighbors: b.Neighbors,
		pHasEdge:   func(i, j int) bool { return a.bonds[i][j] != nil },
		atomOK: func(pi, ti int) bool {
			return samePatternAtom(a.atoms[pi], b.atoms[ti]) && len(a.bonds[pi]) == len(b.bonds[ti])
		},
		bondOK: func(pi, pj, ti, tj int) bool {
			bb := b.bonds[ti][tj]
			ab := a.bonds[pi][pj]
			return bb != nil && ab.subsetOf(bb) && bb.subsetOf(ab)
		},
		candidates: all,
		induced:    true,
		exact:      true,
	}
}

func allCandidates(pCount, tCount int) [][]int {
	all := make([]int, tCount)
	for i := range all {
		all[i] = i
	}
	out := make([][]int, pCount)
	for i := range out {
		out[i] = all
	}
	return out
}

func sameAtom(a, b *Atom) bool {
	return a.Element == b.Element && a.Radicals == b.Radicals &&
		a.Pairs == b.Pairs && a.Charge == b.Charge
}

func samePatternAtom(a, b *PatternAtom) bool {
	return sameStringSet(a.allowedElements(), b.allowedElements()) &&
		sameIntSet(a.allowedRadicals(), b.allowedRadicals()) &&
		sameIntSlice(a.Pairs, b.Pairs) &&
		samePin(a.Ring, b.Ring)
}

func sameStringSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sameIntSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func sameIntSlice(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	bs := append([]int(nil), b...)
	sort.Ints(as)
	sort.Ints(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func samePin(a, b *bool) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// sameFormula is a cheap isomorphism precheck over element, radical and
// charge totals.
func sameFormula(a, b *Molecule) bool {
	counts := make(map[string]int)
	rads, charge := 0, 0
	for _, at := range a.atoms {
		counts[at.Element]++
		rads += at.Radicals
		charge += at.Charge
	}
	for _, bt := range b.atoms {
		counts[bt.Element]--
		rads -= bt.Radicals
		charge -= bt.Charge
	}
	if rads != 0 || charge != 0 {
		return false
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// -- backtracking core --

func findEmbeddings(spec *matchSpec, all bool) []domain.Mapping {
	if spec.pCount == 0 || spec.pCount > spec.tCount {
		return nil
	}
	if spec.exact && spec.pCount != spec.tCount {
		return nil
	}
	assign := make([]int, spec.pCount)
	image := make([]int, spec.tCount)
	for i := range assign {
		assign[i] = -1
	}
	for i := range image {
		image[i] = -1
	}

	var out []domain.Mapping

	feasible := func(pi, ti int) bool {
		if !spec.atomOK(pi, ti) {
			return false
		}
		// 1. Every pattern bond into the mapped region must be realized.
		for _, pj := range spec.pNeighbors(pi) {
			if tj := assign[pj]; tj >= 0 && !spec.bondOK(pi, pj, ti, tj) {
				return false
			}
		}
		// 2. Induced searches also forbid target bonds the pattern lacks.
		if spec.induced {
			for _, tj := range spec.tNeighbors(ti) {
				if pj := image[tj]; pj >= 0 && !spec.pHasEdge(pi, pj) {
					return false
				}
			}
		}
		return true
	}

	// nextSite prefers a pattern site adjacent to the mapped region so the
	// search grows connected fronts.
	nextSite := func() int {
		free := -1
		for pi := 0; pi < spec.pCount; pi++ {
			if assign[pi] >= 0 {
				continue
			}
			if free < 0 {
				free = pi
			}
			for _, pj := range spec.pNeighbors(pi) {
				if assign[pj] >= 0 {
					return pi
				}
			}
		}
		return free
	}

	var search func() bool
	search = func() bool {
		pi := nextSite()
		if pi < 0 {
			m := make(domain.Mapping, spec.pCount)
			for i, t := range assign {
				m[i] = t
			}
			out = append(out, m)
			return !all
		}
		for _, ti := range spec.candidates[pi] {
			if image[ti] >= 0 || !feasible(pi, ti) {
				continue
			}
			assign[pi], image[ti] = ti, pi
			if search() {
				return true
			}
			assign[pi], image[ti] = -1, -1
		}
		return false
	}
	search()
	return out
}
