package induct

import (
	"fmt"
	"sort"

	"github.com/veldtlab/grove/pkg/domain"
)

// check validates the grown tree. Every entry must reach the root through
// its parent chain, every concrete child must refine its parent's pattern,
// and no reaction may match more than one child of the node it sits under:
// siblings partition their parent's reactions.
func (in *Inducer) check(t *state) error {
	labels := make([]string, 0, len(t.arena))
	for label := range t.arena {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		e := t.arena[label]
		if label == t.root {
			continue
		}
		seen := map[string]bool{label: true}
		cur := e
		for cur.Parent != "" {
			p := t.arena[cur.Parent]
			if p == nil {
				return &domain.KineticsError{
					Op:      "induct",
					Family:  t.family,
					Message: fmt.Sprintf("entry %s has unknown parent %s", cur.Label, cur.Parent),
				}
			}
			if seen[p.Label] {
				return &domain.KineticsError{
					Op:      "induct",
					Family:  t.family,
					Message: fmt.Sprintf("parent cycle through %s", p.Label),
				}
			}
			seen[p.Label] = true
			cur = p
		}
		if cur.Label != t.root {
			return &domain.KineticsError{
				Op:      "induct",
				Family:  t.family,
				Message: fmt.Sprintf("entry %s does not descend from the root %s", label, t.root),
			}
		}
		if e.Pattern != nil {
			p := t.arena[e.Parent]
			if p.Pattern != nil && !in.matcher.Refines(e.Pattern, p.Pattern) {
				return &domain.KineticsError{
					Op:      "induct",
					Family:  t.family,
					Message: fmt.Sprintf("entry %s is not a refinement of its parent %s", label, e.Parent),
					Structures: []string{
						e.Pattern.Render(),
						p.Pattern.Render(),
					},
				}
			}
		}
	}

	inclusive := t.inclusiveMatches()
	for _, label := range labels {
		e := t.arena[label]
		if len(e.Children) < 2 {
			continue
		}
		for _, tr := range inclusive[label] {
			hits := 0
			for _, c := range e.Children {
				child := t.arena[c]
				if child == nil || child.Pattern == nil {
					continue
				}
				if in.matcher.Matches(child.Pattern, tr.Structure) {
					hits++
				}
			}
			if hits > 1 {
				return &domain.KineticsError{
					Op:      "induct",
					Family:  t.family,
					Message: fmt.Sprintf("children of %s overlap on a training reaction", label),
					Structures: []string{
						tr.Structure.Render(),
					},
				}
			}
		}
	}
	return nil
}
