package molecule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// PatternBond is one edge of a pattern. Orders lists the admitted bond
// orders, ascending; regOrders holds the regularization bound recorded
// during tree growth (nil until bound).
type PatternBond struct {
	Orders []float64

	regOrders []float64
}

func (b *PatternBond) copy() *PatternBond {
	return &PatternBond{
		Orders:    append([]float64(nil), b.Orders...),
		regOrders: append([]float64(nil), b.regOrders...),
	}
}

// allows reports whether a concrete order satisfies the constraint.
func (b *PatternBond) allows(order float64) bool {
	for _, o := range b.Orders {
		if o == order {
			return true
		}
	}
	return false
}

// subsetOf reports whether every admitted order is admitted by other.
func (b *PatternBond) subsetOf(other *PatternBond) bool {
	for _, o := range b.Orders {
		if !other.allows(o) {
			return false
		}
	}
	return true
}

// ordersString renders the order constraint for the codec and for naming.
func (b *PatternBond) ordersString() string {
	if len(b.Orders) == 1 {
		return OrderToken(b.Orders[0])
	}
	toks := make([]string, len(b.Orders))
	for i, o := range b.Orders {
		toks[i] = OrderToken(o)
	}
	return "[" + strings.Join(toks, ",") + "]"
}

// Pattern is a structural pattern over molecular graphs: sites admit sets
// of elements, radical counts and bond orders, with optional ring pins. It
// implements domain.Structure plus the Extendable and Regularizable hooks
// consumed by tree induction.
type Pattern struct {
	atoms []*PatternAtom
	bonds map[int]map[int]*PatternBond

	// Dimensions already explored during induction, keyed by kind and the
	// affected site pair. Entries here stop Extensions from proposing the
	// same dimension again; boundRing false records a negative ring bound.
	boundDims map[dimKey]bool
}

type dimKey struct {
	kind domain.ExtensionKind
	a, b int
}

// NewPattern returns an empty pattern.
func NewPattern() *Pattern {
	return &Pattern{
		bonds:     make(map[int]map[int]*PatternBond),
		boundDims: make(map[dimKey]bool),
	}
}

// AddAtom appends a site and returns its index.
func (p *Pattern) AddAtom(a *PatternAtom) int {
	p.atoms = append(p.atoms, a)
	return len(p.atoms) - 1
}

// AddBond connects two sites, replacing any existing bond between them.
func (p *Pattern) AddBond(i, j int, orders ...float64) {
	b := &PatternBond{Orders: append([]float64(nil), orders...)}
	sort.Float64s(b.Orders)
	p.setBond(i, j, b)
}

func (p *Pattern) setBond(i, j int, b *PatternBond) {
	if p.bonds[i] == nil {
		p.bonds[i] = make(map[int]*PatternBond)
	}
	if p.bonds[j] == nil {
		p.bonds[j] = make(map[int]*PatternBond)
	}
	p.bonds[i][j] = b
	p.bonds[j][i] = b
}

func (p *Pattern) removeBond(i, j int) {
	delete(p.bonds[i], j)
	delete(p.bonds[j], i)
}

// Atom returns the site's pattern atom. Mutating it mutates the pattern.
func (p *Pattern) Atom(i int) *PatternAtom { return p.atoms[i] }

// Bond returns the constraint between two sites, nil when unbonded.
func (p *Pattern) Bond(i, j int) *PatternBond { return p.bonds[i][j] }

// Neighbors returns the bonded partners of a site in ascending order.
func (p *Pattern) Neighbors(i int) []int {
	out := make([]int, 0, len(p.bonds[i]))
	for j := range p.bonds[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// -- domain.Structure --

// Copy returns a deep copy, labels and recorded dimensions included.
func (p *Pattern) Copy() domain.Structure { return p.copy() }

func (p *Pattern) copy() *Pattern {
	out := NewPattern()
	for _, a := range p.atoms {
		out.atoms = append(out.atoms, a.copy())
	}
	for i, row := range p.bonds {
		for j, b := range row {
			if i < j {
				out.setBond(i, j, b.copy())
			}
		}
	}
	for k, v := range p.boundDims {
		out.boundDims[k] = v
	}
	return out
}

// Merge returns the disjoint union of the receiver and other, the
// receiver's sites first. Other must be a *Pattern.
func (p *Pattern) Merge(other domain.Structure) domain.Structure {
	op, ok := other.(*Pattern)
	if !ok {
		panic(fmt.Sprintf("molecule: cannot merge %T into *Pattern", other))
	}
	out := p.copy()
	off := len(out.atoms)
	for _, a := range op.atoms {
		out.atoms = append(out.atoms, a.copy())
	}
	for i, row := range op.bonds {
		for j, b := range row {
			if i < j {
				out.setBond(i+off, j+off, b.copy())
			}
		}
	}
	for k, v := range op.boundDims {
		k.a += off
		if k.b >= 0 {
			k.b += off
		}
		out.boundDims[k] = v
	}
	return out
}

// Split partitions the pattern into its connected components, preserving
// relative site order inside each component. Recorded dimensions do not
// survive a split.
func (p *Pattern) Split() []domain.Structure {
	seen := make([]bool, len(p.atoms))
	var out []domain.Structure
	for start := range p.atoms {
		if seen[start] {
			continue
		}
		var sites []int
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			sites = append(sites, i)
			for _, j := range p.Neighbors(i) {
				if !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		sort.Ints(sites)
		sub := NewPattern()
		remap := make(map[int]int, len(sites))
		for _, i := range sites {
			remap[i] = sub.AddAtom(p.atoms[i].copy())
		}
		for _, i := range sites {
			for j, b := range p.bonds[i] {
				if i < j {
					sub.setBond(remap[i], remap[j], b.copy())
				}
			}
		}
		out = append(out, sub)
	}
	return out
}

func (p *Pattern) SiteCount() int { return len(p.atoms) }

func (p *Pattern) SiteLabel(i int) string { return p.atoms[i].Label }

func (p *Pattern) SetSiteLabel(i int, label string) { p.atoms[i].Label = label }

func (p *Pattern) Labels() []string {
	set := make(map[string]bool)
	for _, a := range p.atoms {
		if a.Label != "" {
			set[a.Label] = true
		}
	}
	return sortedStrings(set)
}

func (p *Pattern) CountLabel(label string) int {
	n := 0
	for _, a := range p.atoms {
		if a.Label == label {
			n++
		}
	}
	return n
}

func (p *Pattern) RelabelOccurrence(label string, n int, to string) error {
	seen := 0
	for _, a := range p.atoms {
		if a.Label != label {
			continue
		}
		if seen == n {
			a.Label = to
			return nil
		}
		seen++
	}
	return fmt.Errorf("label %q has %d occurrence(s), wanted occurrence %d", label, seen, n)
}

func (p *Pattern) ClearLabels() {
	for _, a := range p.atoms {
		a.Label = ""
	}
}

func (p *Pattern) labeledSite(action, label string) (int, *domain.InvalidActionError) {
	found := -1
	for i, a := range p.atoms {
		if a.Label != label {
			continue
		}
		if found >= 0 {
			return 0, &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("label %q occurs more than once", label)}
		}
		found = i
	}
	if found < 0 {
		return 0, &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("no site labeled %q", label)}
	}
	return found, nil
}

func (p *Pattern) labeledPair(action, label1, label2 string) (int, int, *domain.InvalidActionError) {
	if label1 != label2 {
		i, err := p.labeledSite(action, label1)
		if err != nil {
			return 0, 0, err
		}
		j, err := p.labeledSite(action, label2)
		if err != nil {
			return 0, 0, err
		}
		return i, j, nil
	}
	var sites []int
	for i, a := range p.atoms {
		if a.Label == label1 {
			sites = append(sites, i)
		}
	}
	if len(sites) != 2 {
		return 0, 0, &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("label %q occurs %d time(s), need exactly 2", label1, len(sites))}
	}
	return sites[0], sites[1], nil
}

func (p *Pattern) FormBond(label1, label2 string, order float64) error {
	const action = "FORM_BOND"
	if order != OrderSingle && order != OrderVanDerWaals {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("cannot form bond of order %s", OrderToken(order))}
	}
	i, j, aerr := p.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	if p.bonds[i][j] != nil {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("sites %q and %q are already bonded", label1, label2)}
	}
	p.AddBond(i, j, order)
	return nil
}

func (p *Pattern) BreakBond(label1, label2 string, order float64) error {
	const action = "BREAK_BOND"
	i, j, aerr := p.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	if p.bonds[i][j] == nil {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("no bond between %q and %q", label1, label2)}
	}
	p.removeBond(i, j)
	return nil
}

// ChangeBond shifts every admitted order of an existing bond by delta.
func (p *Pattern) ChangeBond(label1, label2 string, delta float64) error {
	const action = "CHANGE_BOND"
	i, j, aerr := p.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	b := p.bonds[i][j]
	if b == nil {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("no bond between %q and %q", label1, label2)}
	}
	next := make([]float64, 0, len(b.Orders))
	for _, o := range b.Orders {
		if o == OrderAromatic {
			return &domain.InvalidActionError{Action: action, Reason: "cannot change the order of an aromatic bond"}
		}
		n := o + delta
		if n != OrderSingle && n != OrderDouble && n != OrderTriple {
			return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("bond order %g out of range", n)}
		}
		next = append(next, n)
	}
	b.Orders = next
	return nil
}

// ChangeRadical shifts every admitted radical count. An unconstrained site
// stays unconstrained.
func (p *Pattern) ChangeRadical(label string, delta int) error {
	action := "GAIN_RADICAL"
	if delta < 0 {
		action = "LOSE_RADICAL"
	}
	i, aerr := p.labeledSite(action, label)
	if aerr != nil {
		return aerr
	}
	a := p.atoms[i]
	if len(a.Radicals) == 0 {
		return nil
	}
	next := make([]int, 0, len(a.Radicals))
	for _, u := range a.Radicals {
		n := u + delta
		if n < 0 || n > maxRadicals {
			return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("radical count %d out of range on %q", n, label)}
		}
		next = append(next, n)
	}
	a.Radicals = next
	return nil
}

// ChangePair shifts every admitted lone-pair count. An unconstrained site
// stays unconstrained.
func (p *Pattern) ChangePair(label string, delta int) error {
	action := "GAIN_PAIR"
	if delta < 0 {
		action = "LOSE_PAIR"
	}
	i, aerr := p.labeledSite(action, label)
	if aerr != nil {
		return aerr
	}
	a := p.atoms[i]
	if len(a.Pairs) == 0 {
		return nil
	}
	next := make([]int, 0, len(a.Pairs))
	for _, pr := range a.Pairs {
		n := pr + delta
		if n < 0 {
			return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("lone pair count %d out of range on %q", n, label)}
		}
		next = append(next, n)
	}
	a.Pairs = next
	return nil
}

// NetCharge is always zero: patterns do not constrain formal charges.
func (p *Pattern) NetCharge() int { return 0 }

// Kekulize redistributes bonds pinned to the aromatic order into
// alternating single/double orders, the same way Molecule.Kekulize does.
// Bonds merely admitting the aromatic order among others are untouched.
func (p *Pattern) Kekulize() error {
	var sites []int
	aromatic := make(map[int][]int)
	for i := range p.atoms {
		for j, b := range p.bonds[i] {
			if len(b.Orders) == 1 && b.Orders[0] == OrderAromatic {
				aromatic[i] = append(aromatic[i], j)
			}
		}
		if len(aromatic[i]) > 0 {
			sites = append(sites, i)
			sort.Ints(aromatic[i])
		}
	}
	if len(sites) == 0 {
		return nil
	}
	broken := false
	for _, i := range sites {
		if len(aromatic[i]) < 2 {
			broken = true
			break
		}
	}
	if !broken {
		return nil
	}
	match := make(map[int]int, len(sites))
	if !kekuleMatch(sites, aromatic, match, 0) {
		return fmt.Errorf("no kekulized form exists for broken aromatic system")
	}
	for _, i := range sites {
		for _, j := range aromatic[i] {
			if i < j {
				if match[i] == j {
					p.AddBond(i, j, OrderDouble)
				} else {
					p.AddBond(i, j, OrderSingle)
				}
			}
		}
	}
	return nil
}

func (p *Pattern) IsPattern() bool { return true }

// IsVacantSite reports whether the pattern is a single site constrained to
// exactly the surface element.
func (p *Pattern) IsVacantSite() bool {
	return len(p.atoms) == 1 && len(p.atoms[0].Types) == 1 && p.atoms[0].Types[0] == ElemX
}

// IsAdsorbed reports whether any surface site is bonded.
func (p *Pattern) IsAdsorbed() bool {
	for i, a := range p.atoms {
		if len(a.Types) == 1 && a.Types[0] == ElemX && len(p.bonds[i]) > 0 {
			return true
		}
	}
	return false
}

// Render returns the pattern in its adjacency text form.
func (p *Pattern) Render() string { return renderPattern(p) }

// String implements fmt.Stringer for log and error output.
func (p *Pattern) String() string { return p.Render() }

// -- regularization dimension bookkeeping --

// BindDimension records that ext's feature held for every reaction at the
// node. Later Extensions calls stop proposing the dimension, and Narrow may
// tighten the pattern onto the recorded values.
func (p *Pattern) BindDimension(ext domain.Extension) {
	key := dimKey{kind: ext.Kind, a: ext.Sites[0], b: ext.Sites[1]}
	child, _ := ext.Pattern.(*Pattern)
	switch ext.Kind {
	case domain.ExtendAtomType:
		if key.a < len(p.atoms) && child != nil && key.a < len(child.atoms) {
			p.atoms[key.a].regTypes = appendUniqueStrings(p.atoms[key.a].regTypes, child.atoms[key.a].Types...)
		}
	case domain.ExtendRadical:
		if key.a < len(p.atoms) && child != nil && key.a < len(child.atoms) {
			p.atoms[key.a].regRadicals = appendUniqueInts(p.atoms[key.a].regRadicals, child.atoms[key.a].Radicals...)
		}
	case domain.ExtendRing:
		if key.a < len(p.atoms) {
			v := true
			p.atoms[key.a].regRing = &v
		}
	case domain.ExtendBondOrder:
		if b := p.bonds[key.a][key.b]; b != nil && child != nil {
			if cb := child.bonds[key.a][key.b]; cb != nil {
				b.regOrders = appendUniqueFloats(b.regOrders, cb.Orders...)
			}
		}
	}
	p.boundDims[key] = true
}

// ExcludeDimension records a dimension no reaction at the node exhibits.
// Only ring dimensions carry a usable negative bound; everything else is
// simply not proposed again.
func (p *Pattern) ExcludeDimension(ext domain.Extension) {
	key := dimKey{kind: ext.Kind, a: ext.Sites[0], b: ext.Sites[1]}
	if ext.Kind == domain.ExtendRing && key.a < len(p.atoms) {
		v := false
		p.atoms[key.a].regRing = &v
	}
	p.boundDims[key] = true
}

// ClearDimensions forgets every recorded bound so the next Extensions call
// starts from scratch.
func (p *Pattern) ClearDimensions() {
	p.boundDims = make(map[dimKey]bool)
	for _, a := range p.atoms {
		a.regTypes = nil
		a.regRadicals = nil
		a.regRing = nil
	}
	for i, row := range p.bonds {
		for j, b := range row {
			if i < j {
				b.regOrders = nil
			}
		}
	}
}

func (p *Pattern) dimBound(kind domain.ExtensionKind, a, b int) bool {
	return p.boundDims[dimKey{kind: kind, a: a, b: b}]
}

// -- small helpers --

func appendUniqueStrings(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	sort.Strings(dst)
	return dst
}

func appendUniqueInts(dst []int, vals ...int) []int {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	sort.Ints(dst)
	return dst
}

func appendUniqueFloats(dst []float64, vals ...float64) []float64 {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	sort.Float64s(dst)
	return dst
}
