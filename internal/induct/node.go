package induct

import (
	"github.com/veldtlab/grove/pkg/domain"
)

// extendNode refines one node. It reports true when the growth pass should
// restart (the node split, or its bounds were cleared for one retry) and
// false when the node is terminal. A node whose reactions differ but admit
// no split twice in a row is a fatal KineticsError.
func (in *Inducer) extendNode(t *state, label string) (bool, error) {
	node := t.arena[label]
	rxns := t.rxns[label]

	cands, err := in.extensionEdge(node, rxns)
	if err != nil {
		return false, err
	}

	if len(cands) == 0 {
		if in.allIdentical(rxns) {
			t.terminal[label] = true
			in.logger.Debug("node terminal", "family", t.family, "node", label, "reactions", len(rxns))
			return false, nil
		}
		if t.retried[label] {
			structs := make([]string, 0, len(rxns))
			for _, tr := range rxns {
				structs = append(structs, tr.Structure.Render())
			}
			return false, &domain.KineticsError{
				Op:         "induct",
				Family:     t.family,
				Message:    "no extension splits the distinct reactions at node " + label,
				Structures: structs,
			}
		}
		t.retried[label] = true
		if ext, ok := node.Pattern.(domain.Extendable); ok {
			ext.ClearDimensions()
		}
		in.logger.Debug("cleared bounds for retry", "family", t.family, "node", label)
		return true, nil
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.obj < best.obj {
			best = c
		}
	}

	t.split(node, best)
	delete(t.retried, label)
	metrics.nodesSplit.Inc()
	in.logger.Debug("split node",
		"family", t.family, "node", label, "extension", best.ext.Label,
		"matched", len(best.matched), "rest", len(best.rest))
	return true, nil
}

// allIdentical reports whether every pair of reactions shares the same
// labeled structure: isomorphic graphs carrying the same label set.
func (in *Inducer) allIdentical(rxns []*Training) bool {
	for i := 0; i < len(rxns); i++ {
		for j := i + 1; j < len(rxns); j++ {
			if !in.sameTraining(rxns[i], rxns[j]) {
				return false
			}
		}
	}
	return true
}

func (in *Inducer) sameTraining(a, b *Training) bool {
	al, bl := a.Structure.Labels(), b.Structure.Labels()
	if len(al) != len(bl) {
		return false
	}
	for i := range al {
		if al[i] != bl[i] {
			return false
		}
	}
	return in.matcher.Isomorphic(a.Structure, b.Structure)
}

// split installs the chosen refinement under node. The matched reactions
// move to the new child; the rest move to the structural complement when
// one is constructible and otherwise stay at the parent. Chosen atom-type
// and radical refinements pin their dimension on the child.
func (t *state) split(node *domain.Entry, best scored) {
	child := &domain.Entry{
		Label:   best.ext.Label,
		Pattern: best.ext.Pattern,
		Parent:  node.Label,
	}
	if best.ext.Kind == domain.ExtendAtomType || best.ext.Kind == domain.ExtendRadical {
		if ext, ok := child.Pattern.(domain.Extendable); ok {
			ext.BindDimension(best.ext)
		}
	}
	t.arena[child.Label] = child
	node.Children = append(node.Children, child.Label)
	t.rxns[child.Label] = best.matched

	if best.ext.Complement != nil {
		comp := &domain.Entry{
			Label:   complementLabel(best.ext.Label),
			Pattern: best.ext.Complement,
			Parent:  node.Label,
		}
		t.arena[comp.Label] = comp
		node.Children = append(node.Children, comp.Label)
		t.rxns[comp.Label] = best.rest
		delete(t.rxns, node.Label)
	} else {
		t.rxns[node.Label] = best.rest
	}
}
