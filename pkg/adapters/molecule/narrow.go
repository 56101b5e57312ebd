package molecule

import (
	"fmt"

	"github.com/veldtlab/grove/pkg/domain"
)

// Narrow tightens the pattern along every dimension recorded as holding
// for all reactions during growth, as long as every child pattern stays
// within the narrowed constraint. keep, when non-nil, is consulted with the
// tentatively narrowed pattern and may veto the step; a veto reverts it.
// On leaf nodes (leaf true) sites graphically indistinguishable from a
// sibling site are skipped, since narrowing one of them would break the
// pattern's symmetry arbitrarily.
//
// Narrowing only ever contracts generality: a bound is intersected with
// the current constraint and applied only when the result is non-empty and
// strictly tighter.
func (p *Pattern) Narrow(children []domain.Structure, leaf bool, keep func(domain.Structure) bool) {
	pats := make([]*Pattern, 0, len(children))
	for _, c := range children {
		cp, ok := c.(*Pattern)
		if !ok {
			// A non-pattern child cannot be verified against a narrowed
			// constraint, so narrowing would risk orphaning it.
			return
		}
		pats = append(pats, cp)
	}

	skip := make([]bool, len(p.atoms))
	if leaf {
		for i := range p.atoms {
			skip[i] = p.indistinguishableSite(i)
		}
	}

	for i, a := range p.atoms {
		if skip[i] {
			continue
		}
		p.narrowTypes(i, a, pats, keep)
		p.narrowRadicals(i, a, pats, keep)
		p.narrowRing(i, a, pats, keep)
	}
	for i := range p.atoms {
		for j := i + 1; j < len(p.atoms); j++ {
			if b := p.bonds[i][j]; b != nil && !(skip[i] || skip[j]) {
				p.narrowOrders(i, j, b, pats, keep)
			}
		}
	}
}

func (p *Pattern) narrowTypes(i int, a *PatternAtom, children []*Pattern, keep func(domain.Structure) bool) {
	if len(a.regTypes) == 0 {
		return
	}
	allowed := a.allowedElements()
	vals := make([]string, 0, len(a.regTypes))
	for _, t := range a.regTypes {
		for _, e := range ExpandWildcard(t) {
			if allowed[e] {
				vals = appendUniqueStrings(vals, e)
			}
		}
	}
	if len(vals) == 0 || len(vals) >= len(allowed) {
		return
	}
	valSet := make(map[string]bool, len(vals))
	for _, v := range vals {
		valSet[v] = true
	}
	for _, c := range children {
		if i >= len(c.atoms) {
			return
		}
		for e := range c.atoms[i].allowedElements() {
			if !valSet[e] {
				return
			}
		}
	}
	old := a.Types
	a.Types = vals
	if keep != nil && !keep(p) {
		a.Types = old
	}
}

func (p *Pattern) narrowRadicals(i int, a *PatternAtom, children []*Pattern, keep func(domain.Structure) bool) {
	if len(a.regRadicals) == 0 {
		return
	}
	allowed := a.allowedRadicals()
	vals := make([]int, 0, len(a.regRadicals))
	for _, u := range a.regRadicals {
		if allowed[u] {
			vals = appendUniqueInts(vals, u)
		}
	}
	if len(vals) == 0 || len(vals) >= len(allowed) {
		return
	}
	valSet := make(map[int]bool, len(vals))
	for _, v := range vals {
		valSet[v] = true
	}
	for _, c := range children {
		if i >= len(c.atoms) {
			return
		}
		for u := range c.atoms[i].allowedRadicals() {
			if !valSet[u] {
				return
			}
		}
	}
	old := a.Radicals
	a.Radicals = vals
	if keep != nil && !keep(p) {
		a.Radicals = old
	}
}

func (p *Pattern) narrowRing(i int, a *PatternAtom, children []*Pattern, keep func(domain.Structure) bool) {
	if a.regRing == nil || a.Ring != nil {
		return
	}
	want := *a.regRing
	for _, c := range children {
		if i >= len(c.atoms) {
			return
		}
		if c.atoms[i].Ring == nil || *c.atoms[i].Ring != want {
			return
		}
	}
	a.Ring = &want
	if keep != nil && !keep(p) {
		a.Ring = nil
	}
}

func (p *Pattern) narrowOrders(i, j int, b *PatternBond, children []*Pattern, keep func(domain.Structure) bool) {
	if len(b.regOrders) == 0 {
		return
	}
	vals := make([]float64, 0, len(b.regOrders))
	for _, o := range b.regOrders {
		if b.allows(o) {
			vals = appendUniqueFloats(vals, o)
		}
	}
	if len(vals) == 0 || len(vals) >= len(b.Orders) {
		return
	}
	check := &PatternBond{Orders: vals}
	for _, c := range children {
		cb := c.bonds[i][j]
		if cb == nil || !cb.subsetOf(check) {
			return
		}
	}
	old := b.Orders
	b.Orders = vals
	if keep != nil && !keep(p) {
		b.Orders = old
	}
}

// indistinguishableSite reports whether another site carries the same
// constraints and bonds to the same partners with the same orders.
func (p *Pattern) indistinguishableSite(i int) bool {
	sig := p.bondSignature(i)
	for k := range p.atoms {
		if k == i || !samePatternAtom(p.atoms[i], p.atoms[k]) {
			continue
		}
		if sig == p.bondSignature(k) {
			return true
		}
	}
	return false
}

func (p *Pattern) bondSignature(i int) string {
	sig := ""
	for _, j := range p.Neighbors(i) {
		sig += fmt.Sprintf("(%d:%s)", j, p.bonds[i][j].ordersString())
	}
	return sig
}
