// Package generate enumerates the reactions a family's template admits for
// a set of concrete reactants. It assigns reactant structures to template
// slots through the subgraph matcher, runs the recipe on every assignment,
// filters candidates and collapses the survivors into reactions with integer
// degeneracy.
package generate

import (
	"fmt"

	"github.com/veldtlab/grove/internal/recipe"
	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// PairRule ties the reactant carrying one template label to the product
// carrying another, e.g. {*1, *3} to track the heavy fragment through an
// abstraction.
type PairRule struct {
	Reactant string `json:"reactant" yaml:"reactant" mapstructure:"reactant"`
	Product  string `json:"product" yaml:"product" mapstructure:"product"`
}

// Family is one reaction family: its template patterns, its recipe engine,
// its rate-rule tree and its generation flags. Config loading fills it; the
// generator, the tree inducer and the estimator consume it.
type Family struct {
	Name string

	// Forward holds the template slots in the direction kinetics are
	// defined. Reverse is derived at load time; it stays nil for
	// self-reverse families, whose forward template serves both directions.
	Forward *domain.Template
	Reverse *domain.Template

	// Engine applies the family's graph-edit recipe.
	Engine *recipe.Engine

	// OwnReverse marks self-reverse families. Reversible false suppresses
	// reverse-direction generation entirely.
	OwnReverse bool
	Reversible bool

	// PairRules drive flux-pair bookkeeping; empty means exhaustive pairing.
	PairRules []PairRule

	// Forbidden patterns silently reject any candidate producing a matching
	// product.
	Forbidden []domain.Structure

	// Surface families adsorb onto vacant sites. RequireGasProduct drops
	// reverse-direction candidates that desorb nothing.
	Surface           bool
	RequireGasProduct bool

	// Arena owns every tree entry, keyed by label. Entry.Parent and
	// Entry.Children are label references into it.
	Arena map[string]*domain.Entry

	// Rules holds the family's rate rules keyed by the semicolon-joined
	// template label. Training ingestion fills it; the estimator reads it.
	Rules map[string][]*domain.Entry
}

// Validate checks the family's internal consistency: templates resolve,
// arena links are sound, slot counts are within range.
func (f *Family) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("family without a name")
	}
	if f.Engine == nil {
		return fmt.Errorf("family %q: no recipe engine", f.Name)
	}
	if f.Forward == nil || len(f.Forward.Reactants) == 0 {
		return fmt.Errorf("family %q: no forward template", f.Name)
	}
	if len(f.Forward.Reactants) > 3 {
		return fmt.Errorf("family %q: %d reactant slots, at most 3 supported", f.Name, len(f.Forward.Reactants))
	}
	if !f.OwnReverse && f.Reversible && f.Reverse == nil {
		return fmt.Errorf("family %q: reversible but no reverse template", f.Name)
	}
	for _, e := range f.Forward.Reactants {
		if _, ok := f.Arena[e.Label]; !ok {
			return fmt.Errorf("family %q: template slot %q missing from arena", f.Name, e.Label)
		}
	}
	for label, e := range f.Arena {
		if e.Label != label {
			return fmt.Errorf("family %q: arena key %q holds entry labeled %q", f.Name, label, e.Label)
		}
		if e.Parent != "" {
			if _, ok := f.Arena[e.Parent]; !ok {
				return fmt.Errorf("family %q: entry %q references missing parent %q", f.Name, label, e.Parent)
			}
		}
		for _, child := range e.Children {
			c, ok := f.Arena[child]
			if !ok {
				return fmt.Errorf("family %q: entry %q references missing child %q", f.Name, label, child)
			}
			if c.Parent != label {
				return fmt.Errorf("family %q: entry %q lists child %q whose parent is %q", f.Name, label, child, c.Parent)
			}
		}
	}
	return nil
}

// Entry looks up an arena entry by label.
func (f *Family) Entry(label string) (*domain.Entry, bool) {
	e, ok := f.Arena[label]
	return e, ok
}

// slots returns the reactant slot entries for a direction; self-reverse
// families use the forward template both ways.
func (f *Family) slots(forward bool) []*domain.Entry {
	if forward || f.OwnReverse {
		return f.Forward.Reactants
	}
	return f.Reverse.Reactants
}

// productCount returns the number of product components the template
// declares for a direction.
func (f *Family) productCount(forward bool) int {
	if forward || f.OwnReverse {
		return len(f.Forward.Products)
	}
	return len(f.Reverse.Products)
}

// slotPatterns resolves an entry to the concrete pattern entries it stands
// for, expanding OR logic through the arena.
func (f *Family) slotPatterns(e *domain.Entry) ([]*domain.Entry, error) {
	if !e.IsLogic() {
		if e.Pattern == nil {
			return nil, fmt.Errorf("family %q: entry %q has neither pattern nor logic", f.Name, e.Label)
		}
		return []*domain.Entry{e}, nil
	}
	var out []*domain.Entry
	for _, name := range e.Logic.Components {
		child, ok := f.Arena[name]
		if !ok {
			return nil, fmt.Errorf("family %q: logic node %q references unknown entry %q", f.Name, e.Label, name)
		}
		sub, err := f.slotPatterns(child)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// matchesEntry reports whether structure matches the entry, any logic
// component counting as a match. Labels shared by pattern and structure pin
// the embedding.
func (f *Family) matchesEntry(m ports.Matcher, e *domain.Entry, s domain.Structure) bool {
	if e.IsLogic() {
		for _, name := range e.Logic.Components {
			if child, ok := f.Arena[name]; ok && f.matchesEntry(m, child, s) {
				return true
			}
		}
		return false
	}
	return e.Pattern != nil && m.Matches(e.Pattern, s)
}

// TemplateFor assigns labeled structures to a direction's template slots and
// descends each slot subtree to its most specific matching entry. Site
// labels on the structures pin the assignment. It returns
// *domain.UndeterminableKineticsError when no assignment fits, so callers
// can fall back to the opposite direction.
func (f *Family) TemplateFor(m ports.Matcher, structs []domain.Structure, forward bool) ([]string, error) {
	slots := f.slots(forward)
	if len(structs) != len(slots) {
		return nil, &domain.UndeterminableKineticsError{
			Family: f.Name,
			Reason: fmt.Sprintf("%d structures against %d template slots", len(structs), len(slots)),
		}
	}
	for _, order := range slotOrders(len(slots)) {
		fits := true
		for i, e := range slots {
			if !f.matchesEntry(m, e, structs[order[i]]) {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}
		template := make([]string, len(slots))
		for i, e := range slots {
			template[i] = f.DescendTree(m, e, structs[order[i]]).Label
		}
		return template, nil
	}
	return nil, &domain.UndeterminableKineticsError{
		Family: f.Name,
		Reason: "structures do not fit the template slots",
	}
}

// slotOrders enumerates assignment orders for up to three slots.
func slotOrders(n int) [][]int {
	switch n {
	case 1:
		return [][]int{{0}}
	case 2:
		return [][]int{{0, 1}, {1, 0}}
	default:
		return [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	}
}

// DescendTree walks from root to the most specific entry matching structure,
// taking the first matching child at every level.
func (f *Family) DescendTree(m ports.Matcher, root *domain.Entry, s domain.Structure) *domain.Entry {
	node := root
descent:
	for {
		for _, name := range node.Children {
			child, ok := f.Arena[name]
			if !ok {
				continue
			}
			if f.matchesEntry(m, child, s) {
				node = child
				continue descent
			}
		}
		return node
	}
}

// isForbidden reports whether s matches any of the given patterns.
func isForbidden(m ports.Matcher, patterns []domain.Structure, s domain.Structure) bool {
	for _, p := range patterns {
		if m.Matches(p, s) {
			return true
		}
	}
	return false
}
