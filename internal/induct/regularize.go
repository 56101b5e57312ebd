package induct

import (
	"github.com/veldtlab/grove/pkg/domain"
)

// regularize narrows every explored-but-unsplit feature dimension in the
// grown tree to the tightest form covering the node's children, children
// first so parents narrow against already-narrowed patterns. Every candidate
// narrowing is vetoed unless the pattern keeps matching all reactions in the
// node's subtree. The root is left untouched; it defines what the family
// accepts.
func (in *Inducer) regularize(t *state) {
	inclusive := t.inclusiveMatches()

	var walk func(label string)
	walk = func(label string) {
		e := t.arena[label]
		if e == nil {
			return
		}
		for _, c := range e.Children {
			walk(c)
		}
		if label == t.root || e.Pattern == nil {
			return
		}
		reg, ok := e.Pattern.(domain.Regularizable)
		if !ok {
			return
		}
		var kids []domain.Structure
		for _, c := range e.Children {
			child := t.arena[c]
			if child != nil && child.Pattern != nil {
				kids = append(kids, child.Pattern)
			}
		}
		rxns := inclusive[label]
		keep := func(cand domain.Structure) bool {
			for _, tr := range rxns {
				if !in.matcher.Matches(cand, tr.Structure) {
					return false
				}
			}
			return true
		}
		reg.Narrow(kids, len(e.Children) == 0, keep)
	}
	walk(t.root)
}
