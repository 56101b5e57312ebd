package molecule

import (
	"fmt"

	"github.com/veldtlab/grove/pkg/domain"
)

// Extensions enumerates the single-feature refinements of the pattern:
// atom-type, radical-count and ring-membership specializations per site,
// bond-order specializations per bond, and internal/external new-bond
// additions. Dimensions recorded through BindDimension or ExcludeDimension
// are not proposed again. base seeds the child names.
//
// Enumeration order is fixed: sites ascending (types, radicals, ring,
// external bond), then internal bonds by site pair, then bond orders by
// site pair.
func (p *Pattern) Extensions(base string) ([]domain.Extension, error) {
	var out []domain.Extension

	for i, a := range p.atoms {
		out = append(out, p.atomTypeExtensions(base, i, a)...)
		out = append(out, p.radicalExtensions(base, i, a)...)
		if ext, ok := p.ringExtension(base, i, a); ok {
			out = append(out, ext)
		}
		if ext, ok := p.externalBondExtension(base, i, a); ok {
			out = append(out, ext)
		}
	}
	for i := range p.atoms {
		for j := i + 1; j < len(p.atoms); j++ {
			if ext, ok := p.internalBondExtension(base, i, j); ok {
				out = append(out, ext)
			}
		}
	}
	for i := range p.atoms {
		for j := i + 1; j < len(p.atoms); j++ {
			out = append(out, p.bondOrderExtensions(base, i, j)...)
		}
	}
	return out, nil
}

func (p *Pattern) atomTypeExtensions(base string, i int, a *PatternAtom) []domain.Extension {
	if p.dimBound(domain.ExtendAtomType, i, -1) {
		return nil
	}
	allowed := sortedStrings(a.allowedElements())
	if len(allowed) < 2 {
		return nil
	}
	from := a.typesString()
	var out []domain.Extension
	for _, elem := range allowed {
		child := p.copy()
		child.atoms[i].Types = []string{elem}

		var comp *Pattern
		rest := make([]string, 0, len(allowed)-1)
		for _, e := range allowed {
			if e != elem {
				rest = append(rest, e)
			}
		}
		comp = p.copy()
		comp.atoms[i].Types = rest

		out = append(out, domain.Extension{
			Pattern:    child,
			Complement: comp,
			Label:      fmt.Sprintf("%s_%d%s->%s", base, i+1, from, elem),
			Kind:       domain.ExtendAtomType,
			Sites:      [2]int{i, -1},
		})
	}
	return out
}

func (p *Pattern) radicalExtensions(base string, i int, a *PatternAtom) []domain.Extension {
	if p.dimBound(domain.ExtendRadical, i, -1) {
		return nil
	}
	allowed := sortedInts(a.allowedRadicals())
	if len(allowed) < 2 {
		return nil
	}
	var out []domain.Extension
	for _, u := range allowed {
		child := p.copy()
		child.atoms[i].Radicals = []int{u}

		rest := make([]int, 0, len(allowed)-1)
		for _, v := range allowed {
			if v != u {
				rest = append(rest, v)
			}
		}
		comp := p.copy()
		comp.atoms[i].Radicals = rest

		out = append(out, domain.Extension{
			Pattern:    child,
			Complement: comp,
			Label:      fmt.Sprintf("%s_%du%d", base, i+1, u),
			Kind:       domain.ExtendRadical,
			Sites:      [2]int{i, -1},
		})
	}
	return out
}

func (p *Pattern) ringExtension(base string, i int, a *PatternAtom) (domain.Extension, bool) {
	if p.dimBound(domain.ExtendRing, i, -1) || a.Ring != nil {
		return domain.Extension{}, false
	}
	// Sites that cannot sit on a cycle have no ring dimension.
	elems := a.allowedElements()
	if len(elems) == 1 && (elems[ElemH] || elems[ElemX]) {
		return domain.Extension{}, false
	}
	in, notIn := true, false
	child := p.copy()
	child.atoms[i].Ring = &in
	comp := p.copy()
	comp.atoms[i].Ring = &notIn
	return domain.Extension{
		Pattern:    child,
		Complement: comp,
		Label:      fmt.Sprintf("%s_%dring", base, i+1),
		Kind:       domain.ExtendRing,
		Sites:      [2]int{i, -1},
	}, true
}

// externalBondExtension attaches a fresh wildcard site to site i. There is
// no structural complement for a new bond; the inducer expands unsplit new
// bonds transitively instead.
func (p *Pattern) externalBondExtension(base string, i int, a *PatternAtom) (domain.Extension, bool) {
	if p.dimBound(domain.ExtendExternalBond, i, -1) {
		return domain.Extension{}, false
	}
	if len(p.bonds[i]) >= maxBondPartner {
		return domain.Extension{}, false
	}
	// A hydrogen with a bond is saturated.
	elems := a.allowedElements()
	if len(elems) == 1 && elems[ElemH] && len(p.bonds[i]) >= 1 {
		return domain.Extension{}, false
	}
	child := p.copy()
	j := child.AddAtom(&PatternAtom{})
	child.AddBond(i, j, OrderSingle, OrderAromatic, OrderDouble, OrderTriple)
	return domain.Extension{
		Pattern: child,
		Label:   fmt.Sprintf("%s_Ext-%dR", base, i+1),
		Kind:    domain.ExtendExternalBond,
		Sites:   [2]int{i, j},
	}, true
}

func (p *Pattern) internalBondExtension(base string, i, j int) (domain.Extension, bool) {
	if p.dimBound(domain.ExtendInternalBond, i, j) || p.bonds[i][j] != nil {
		return domain.Extension{}, false
	}
	child := p.copy()
	child.AddBond(i, j, OrderSingle, OrderAromatic, OrderDouble, OrderTriple)
	return domain.Extension{
		Pattern: child,
		Label:   fmt.Sprintf("%s_Int-%d-%d", base, i+1, j+1),
		Kind:    domain.ExtendInternalBond,
		Sites:   [2]int{i, j},
	}, true
}

func (p *Pattern) bondOrderExtensions(base string, i, j int) []domain.Extension {
	b := p.bonds[i][j]
	if b == nil || len(b.Orders) < 2 || p.dimBound(domain.ExtendBondOrder, i, j) {
		return nil
	}
	var out []domain.Extension
	for _, o := range b.Orders {
		child := p.copy()
		child.bonds[i][j].Orders = []float64{o}

		rest := make([]float64, 0, len(b.Orders)-1)
		for _, v := range b.Orders {
			if v != o {
				rest = append(rest, v)
			}
		}
		comp := p.copy()
		comp.bonds[i][j].Orders = rest

		out = append(out, domain.Extension{
			Pattern:    child,
			Complement: comp,
			Label:      fmt.Sprintf("%s_%d-%d%s", base, i+1, j+1, OrderToken(o)),
			Kind:       domain.ExtendBondOrder,
			Sites:      [2]int{i, j},
		})
	}
	return out
}
