package domain

import "strings"

// Pair ties a reactant index to a product index for flux bookkeeping.
type Pair struct {
	Reactant int `json:"reactant" yaml:"reactant"`
	Product  int `json:"product" yaml:"product"`
}

// Reaction is a generation result. It lives for the duration of a call;
// the generator hands back fresh values and never stores them.
type Reaction struct {
	Reactants []*Species
	Products  []*Species

	// Degeneracy counts the structurally distinct mappings collapsing onto
	// this mechanism, already deflated for mutually isomorphic reactants.
	Degeneracy int

	Reversible bool

	// Duplicate marks a reaction whose species lists coincide with another
	// generated reaction's while proceeding through a different mechanism.
	Duplicate bool

	// Template is the path of tree node labels, one per reactant slot.
	Template []string

	Pairs []Pair

	// Kinetics stays nil until the estimator fills it in.
	Kinetics *RateRule

	// Family and IsForward record which family produced the reaction and in
	// which template direction.
	Family    string
	IsForward bool
}

// Order is the number of reactant molecules, which fixes the rate units.
func (r *Reaction) Order() int { return len(r.Reactants) }

// String renders the reaction equation, e.g. "CH4 + OH <=> CH3 + H2O".
func (r *Reaction) String() string {
	arrow := " => "
	if r.Reversible {
		arrow = " <=> "
	}
	return joinSpecies(r.Reactants) + arrow + joinSpecies(r.Products)
}

func joinSpecies(list []*Species) string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Label
	}
	return strings.Join(names, " + ")
}

// Copy deep-copies the reaction, its species and its kinetics.
func (r *Reaction) Copy() *Reaction {
	out := &Reaction{
		Degeneracy: r.Degeneracy,
		Reversible: r.Reversible,
		Duplicate:  r.Duplicate,
		Template:   append([]string(nil), r.Template...),
		Pairs:      append([]Pair(nil), r.Pairs...),
		Family:     r.Family,
		IsForward:  r.IsForward,
	}
	out.Reactants = make([]*Species, len(r.Reactants))
	for i, s := range r.Reactants {
		out.Reactants[i] = s.Copy()
	}
	out.Products = make([]*Species, len(r.Products))
	for i, s := range r.Products {
		out.Products[i] = s.Copy()
	}
	if r.Kinetics != nil {
		out.Kinetics = r.Kinetics.Copy()
	}
	return out
}
