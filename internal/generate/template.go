package generate

import (
	"errors"
	"fmt"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// BuildProductTemplate applies the family's recipe to every combination of
// forward slot patterns and registers the product-side template entries in
// the arena under the given names. A product position with one surviving
// form gets a plain entry; several distinct forms become numbered children
// under an OR combinator. Combinations the recipe cannot absorb are skipped.
func (f *Family) BuildProductTemplate(m ports.Matcher, names []string) ([]*domain.Entry, error) {
	if f.Arena == nil {
		f.Arena = make(map[string]*domain.Entry)
	}
	slotForms := make([][]*domain.Entry, len(f.Forward.Reactants))
	for i, slot := range f.Forward.Reactants {
		entries, err := f.slotPatterns(slot)
		if err != nil {
			return nil, err
		}
		slotForms[i] = entries
	}

	byPosition := make([][]domain.Structure, len(names))
	applied := 0
	for _, combo := range patternCombos(slotForms) {
		structs := make([]domain.Structure, len(combo))
		for i, e := range combo {
			structs[i] = e.Pattern
		}
		products, err := f.Engine.Apply(structs, true)
		if err != nil {
			var invalid *domain.InvalidActionError
			if errors.As(err, &invalid) {
				continue
			}
			return nil, err
		}
		if len(products) != len(names) {
			return nil, fmt.Errorf("family %q: recipe yields %d products for %d template product labels",
				f.Name, len(products), len(names))
		}
		applied++
		for i, p := range products {
			byPosition[i] = appendUniqueForm(m, byPosition[i], p)
		}
	}
	if applied == 0 {
		return nil, fmt.Errorf("family %q: recipe absorbs no combination of the slot patterns", f.Name)
	}

	next := f.maxArenaIndex() + 1
	out := make([]*domain.Entry, len(names))
	for i, name := range names {
		forms := byPosition[i]
		if len(forms) == 1 {
			e := &domain.Entry{Index: next, Label: name, Pattern: forms[0]}
			next++
			f.Arena[name] = e
			out[i] = e
			continue
		}
		children := make([]string, len(forms))
		for j, form := range forms {
			label := fmt.Sprintf("%s%d", name, j+1)
			f.Arena[label] = &domain.Entry{Index: next, Label: label, Parent: name, Pattern: form}
			next++
			children[j] = label
		}
		e := &domain.Entry{
			Index:    next,
			Label:    name,
			Children: children,
			Logic:    &domain.LogicOr{Components: children},
		}
		next++
		f.Arena[name] = e
		out[i] = e
	}
	return out, nil
}

// patternCombos enumerates the Cartesian product of per-slot pattern
// entries, later slots varying fastest.
func patternCombos(slots [][]*domain.Entry) [][]*domain.Entry {
	if len(slots) == 0 {
		return nil
	}
	out := [][]*domain.Entry{{}}
	for _, forms := range slots {
		var next [][]*domain.Entry
		for _, prefix := range out {
			for _, form := range forms {
				combo := make([]*domain.Entry, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, form))
			}
		}
		out = next
	}
	return out
}

// appendUniqueForm adds s unless an isomorphic form is already present.
func appendUniqueForm(m ports.Matcher, forms []domain.Structure, s domain.Structure) []domain.Structure {
	for _, have := range forms {
		if m.Isomorphic(have, s) {
			return forms
		}
	}
	return append(forms, s)
}

func (f *Family) maxArenaIndex() int64 {
	var max int64
	for _, e := range f.Arena {
		if e.Index > max {
			max = e.Index
		}
	}
	return max
}
