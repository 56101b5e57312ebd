package molecule

import (
	"fmt"
	"sort"
	"strings"
)

// Element tokens understood by the codec. "X" is a surface site; "R" and
// "R!H" are pattern wildcards and never appear in concrete molecules.
const (
	ElemH = "H"
	ElemC = "C"
	ElemN = "N"
	ElemO = "O"
	ElemS = "S"
	ElemX = "X"

	WildcardAny    = "R"
	WildcardNonH   = "R!H"
	maxRadicals    = 3
	maxBondPartner = 8
)

var concreteElements = []string{ElemC, ElemH, ElemN, ElemO, ElemS, ElemX}

// ExpandWildcard maps an element token to the concrete elements it admits.
func ExpandWildcard(tok string) []string {
	switch tok {
	case WildcardAny:
		return append([]string(nil), concreteElements...)
	case WildcardNonH:
		out := make([]string, 0, len(concreteElements)-1)
		for _, e := range concreteElements {
			if e != ElemH {
				out = append(out, e)
			}
		}
		return out
	default:
		return []string{tok}
	}
}

func validElement(tok string) bool {
	for _, e := range concreteElements {
		if tok == e {
			return true
		}
	}
	return false
}

// Bond order tokens: S single, B benzene (aromatic), D double, T triple,
// vdW van der Waals (order zero, surface physisorption).
const (
	OrderVanDerWaals = 0.0
	OrderSingle      = 1.0
	OrderAromatic    = 1.5
	OrderDouble      = 2.0
	OrderTriple      = 3.0
)

var orderTokens = map[string]float64{
	"S":   OrderSingle,
	"B":   OrderAromatic,
	"D":   OrderDouble,
	"T":   OrderTriple,
	"vdW": OrderVanDerWaals,
}

// OrderToken renders a bond order. Unknown orders render numerically so a
// bad value stays visible instead of disappearing.
func OrderToken(order float64) string {
	switch order {
	case OrderVanDerWaals:
		return "vdW"
	case OrderSingle:
		return "S"
	case OrderAromatic:
		return "B"
	case OrderDouble:
		return "D"
	case OrderTriple:
		return "T"
	}
	return fmt.Sprintf("%g", order)
}

// ParseOrderToken is the inverse of OrderToken.
func ParseOrderToken(tok string) (float64, error) {
	if o, ok := orderTokens[tok]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("unknown bond order token %q", tok)
}

// Atom is one site of a concrete molecule.
type Atom struct {
	Element  string
	Radicals int
	Pairs    int
	Charge   int
	Label    string
}

func (a *Atom) copy() *Atom {
	out := *a
	return &out
}

// PatternAtom is one site of a structural pattern. Empty slices mean
// "unconstrained"; Ring nil means ring membership was never pinned.
//
// The reg* fields hold regularization bounds recorded during tree growth.
// They are transient induction state: the codec never writes them and
// copies carry them along only so detached subtrees keep their bounds.
type PatternAtom struct {
	Types    []string
	Radicals []int
	Pairs    []int
	Ring     *bool
	Label    string

	regTypes    []string
	regRadicals []int
	regRing     *bool
}

func (a *PatternAtom) copy() *PatternAtom {
	out := &PatternAtom{Label: a.Label}
	out.Types = append([]string(nil), a.Types...)
	out.Radicals = append([]int(nil), a.Radicals...)
	out.Pairs = append([]int(nil), a.Pairs...)
	if a.Ring != nil {
		r := *a.Ring
		out.Ring = &r
	}
	out.regTypes = append([]string(nil), a.regTypes...)
	out.regRadicals = append([]int(nil), a.regRadicals...)
	if a.regRing != nil {
		r := *a.regRing
		out.regRing = &r
	}
	return out
}

// allowedElements expands the type list into the concrete element set.
func (a *PatternAtom) allowedElements() map[string]bool {
	out := make(map[string]bool)
	if len(a.Types) == 0 {
		for _, e := range concreteElements {
			out[e] = true
		}
		return out
	}
	for _, t := range a.Types {
		for _, e := range ExpandWildcard(t) {
			out[e] = true
		}
	}
	return out
}

// allowedRadicals expands the radical constraint; empty means 0..maxRadicals.
func (a *PatternAtom) allowedRadicals() map[int]bool {
	out := make(map[int]bool)
	if len(a.Radicals) == 0 {
		for u := 0; u <= maxRadicals; u++ {
			out[u] = true
		}
		return out
	}
	for _, u := range a.Radicals {
		out[u] = true
	}
	return out
}

// pairAllowed checks a concrete lone-pair count against the constraint;
// an empty constraint admits anything.
func (a *PatternAtom) pairAllowed(p int) bool {
	if len(a.Pairs) == 0 {
		return true
	}
	for _, v := range a.Pairs {
		if v == p {
			return true
		}
	}
	return false
}

// typesString renders the type constraint for the codec and for naming.
func (a *PatternAtom) typesString() string {
	switch len(a.Types) {
	case 0:
		return WildcardAny
	case 1:
		return a.Types[0]
	}
	return "[" + strings.Join(a.Types, ",") + "]"
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func sortedStrings(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
