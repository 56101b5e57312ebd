package induct

import (
	"fmt"
	"math"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// scored is one candidate refinement of a node together with the partition
// it induces over the node's reactions and its objective value.
type scored struct {
	ext     domain.Extension
	matched []*Training
	rest    []*Training
	obj     float64
}

// extensionEdge enumerates every refinement of node that separates its
// reactions. Refinements matching all reactions record a regularization
// bound; new-bond refinements matching all reactions are expanded
// transitively until they split or run dry. Bounds recorded while scanning a
// pattern are propagated onto that pattern's surviving candidates, their
// complements, and its queued bond expansions.
func (in *Inducer) extensionEdge(node *domain.Entry, rxns []*Training) ([]scored, error) {
	root, ok := node.Pattern.(domain.Extendable)
	if !ok {
		return nil, fmt.Errorf("induct: node %s cannot enumerate extensions", node.Label)
	}
	// Bounds stick to the node itself only on its first visit; later visits
	// see a subset of the reactions and would overwrite the real state.
	firstVisit := len(node.Children) == 0

	type frame struct {
		pat  domain.Extendable
		base string
		own  bool
	}
	stack := []frame{{pat: root, base: node.Label, own: true}}
	var out []scored

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		exts, err := f.pat.Extensions(f.base)
		if err != nil {
			return nil, fmt.Errorf("induct: extending %s: %w", f.base, err)
		}

		var cands []scored
		var binds []domain.Extension   // matched every reaction
		var negs []domain.Extension    // ring dimensions matching none
		var queued []domain.Extension  // unsplit new bonds to expand
		for _, ext := range exts {
			matched, rest := in.splitTraining(ext.Pattern, rxns)
			switch {
			case len(matched) > 0 && len(rest) > 0:
				cands = append(cands, scored{
					ext:     ext,
					matched: matched,
					rest:    rest,
					obj:     in.objective(matched, rest),
				})
			case len(rest) == 0:
				switch ext.Kind {
				case domain.ExtendInternalBond, domain.ExtendExternalBond:
					queued = append(queued, ext)
				default:
					binds = append(binds, ext)
				}
			default:
				if ext.Kind == domain.ExtendRing {
					negs = append(negs, ext)
				}
			}
		}

		if f.own && firstVisit {
			for _, b := range binds {
				root.BindDimension(b)
			}
			for _, n := range negs {
				root.ExcludeDimension(n)
			}
		} else if !f.own {
			for _, b := range binds {
				f.pat.BindDimension(b)
			}
			for _, n := range negs {
				f.pat.ExcludeDimension(n)
			}
		}
		for i := range cands {
			applyBounds(cands[i].ext.Pattern, binds, negs)
			applyBounds(cands[i].ext.Complement, binds, negs)
		}
		for _, q := range queued {
			applyBounds(q.Pattern, binds, negs)
			child, ok := q.Pattern.(domain.Extendable)
			if !ok {
				continue
			}
			stack = append(stack, frame{pat: child, base: q.Label})
		}
		out = append(out, cands...)
	}
	return out, nil
}

func applyBounds(s domain.Structure, binds, negs []domain.Extension) {
	ext, ok := s.(domain.Extendable)
	if !ok {
		return
	}
	for _, b := range binds {
		ext.BindDimension(b)
	}
	for _, n := range negs {
		ext.ExcludeDimension(n)
	}
}

// splitTraining partitions rxns by whether pattern embeds into each merged
// reactant structure. Shared atom labels pin the initial mapping.
func (in *Inducer) splitTraining(pattern domain.Structure, rxns []*Training) (matched, rest []*Training) {
	for _, tr := range rxns {
		if in.matcher.Matches(pattern, tr.Structure) {
			matched = append(matched, tr)
		} else {
			rest = append(rest, tr)
		}
	}
	return matched, rest
}

// objective scores a candidate partition: the size-weighted sum of the
// population standard deviations of ln k(T) on each side. Lower is better.
func (in *Inducer) objective(matched, rest []*Training) float64 {
	T := in.cfg.ObjectiveT
	return lnRateStd(matched, T)*float64(len(matched)) + lnRateStd(rest, T)*float64(len(rest))
}

func lnRateStd(rxns []*Training, T float64) float64 {
	if len(rxns) == 0 {
		return 0
	}
	lnk := make([]float64, len(rxns))
	var mean float64
	for i, tr := range rxns {
		lnk[i] = math.Log(tr.Kinetics.Rate(T))
		mean += lnk[i]
	}
	mean /= float64(len(lnk))
	var ss float64
	for _, v := range lnk {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(lnk)))
}

// complementLabel names the structural negation of an extension: the final
// underscore-separated fragment gains an N- prefix.
func complementLabel(label string) string {
	i := strings.LastIndex(label, "_")
	if i < 0 {
		return "N-" + label
	}
	return label[:i+1] + "N-" + label[i+1:]
}
