package generate

import "github.com/veldtlab/grove/pkg/domain"

// reactionPairs computes the flux pairs. Single-reactant and single-product
// reactions pair exhaustively; otherwise the family's pair rules tie one
// product to each reactant by template label. Any rule that cannot resolve
// falls the whole reaction back to exhaustive pairing.
func (g *Generator) reactionPairs(rxn *domain.Reaction) []domain.Pair {
	if len(rxn.Reactants) == 1 || len(rxn.Products) == 1 || len(g.family.PairRules) == 0 {
		return exhaustivePairs(rxn)
	}
	pairs := make([]domain.Pair, 0, len(g.family.PairRules))
	for _, rule := range g.family.PairRules {
		ri := speciesIndexWithLabel(rxn.Reactants, rule.Reactant)
		pi := speciesIndexWithLabel(rxn.Products, rule.Product)
		if ri < 0 || pi < 0 {
			return exhaustivePairs(rxn)
		}
		pairs = append(pairs, domain.Pair{Reactant: ri, Product: pi})
	}
	return pairs
}

// exhaustivePairs pairs every reactant with every product. Vacant surface
// sites carry no flux and are left out whenever a side has anything else.
func exhaustivePairs(rxn *domain.Reaction) []domain.Pair {
	rs := fluxIndices(rxn.Reactants)
	ps := fluxIndices(rxn.Products)
	pairs := make([]domain.Pair, 0, len(rs)*len(ps))
	for _, ri := range rs {
		for _, pi := range ps {
			pairs = append(pairs, domain.Pair{Reactant: ri, Product: pi})
		}
	}
	return pairs
}

func fluxIndices(list []*domain.Species) []int {
	out := make([]int, 0, len(list))
	all := make([]int, 0, len(list))
	for i, s := range list {
		all = append(all, i)
		if c := s.Canonical(); c != nil && c.IsVacantSite() {
			continue
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// speciesIndexWithLabel finds the species whose structure carries the given
// site label.
func speciesIndexWithLabel(list []*domain.Species, label string) int {
	for i, s := range list {
		if c := s.Canonical(); c != nil && c.CountLabel(label) > 0 {
			return i
		}
	}
	return -1
}
