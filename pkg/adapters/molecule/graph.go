package molecule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// Molecule is a concrete molecular graph: every site carries exactly one
// element and exact electron counts. It implements domain.Structure.
//
// Sites are addressed by index; the recipe actions address them through
// their `*n` labels instead so edits survive merges and splits.
type Molecule struct {
	atoms []*Atom
	bonds map[int]map[int]float64
}

// NewMolecule returns an empty molecule.
func NewMolecule() *Molecule {
	return &Molecule{bonds: make(map[int]map[int]float64)}
}

// AddAtom appends an atom and returns its site index.
func (m *Molecule) AddAtom(a *Atom) int {
	m.atoms = append(m.atoms, a)
	return len(m.atoms) - 1
}

// AddBond connects two sites, replacing any existing bond between them.
func (m *Molecule) AddBond(i, j int, order float64) {
	if m.bonds[i] == nil {
		m.bonds[i] = make(map[int]float64)
	}
	if m.bonds[j] == nil {
		m.bonds[j] = make(map[int]float64)
	}
	m.bonds[i][j] = order
	m.bonds[j][i] = order
}

func (m *Molecule) removeBond(i, j int) {
	delete(m.bonds[i], j)
	delete(m.bonds[j], i)
}

// Atom returns the site's atom. Mutating it mutates the molecule.
func (m *Molecule) Atom(i int) *Atom { return m.atoms[i] }

// BondOrder reports the bond order between two sites; ok is false when the
// sites are not bonded.
func (m *Molecule) BondOrder(i, j int) (float64, bool) {
	o, ok := m.bonds[i][j]
	return o, ok
}

// Neighbors returns the bonded partners of a site in ascending order.
func (m *Molecule) Neighbors(i int) []int {
	out := make([]int, 0, len(m.bonds[i]))
	for j := range m.bonds[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// -- domain.Structure --

// Copy returns a deep copy, labels included.
func (m *Molecule) Copy() domain.Structure { return m.copy() }

func (m *Molecule) copy() *Molecule {
	out := NewMolecule()
	for _, a := range m.atoms {
		out.atoms = append(out.atoms, a.copy())
	}
	for i, row := range m.bonds {
		for j, o := range row {
			if i < j {
				out.AddBond(i, j, o)
			}
		}
	}
	return out
}

// Merge returns the disjoint union of the receiver and other, the
// receiver's sites first. Other must be a *Molecule.
func (m *Molecule) Merge(other domain.Structure) domain.Structure {
	om, ok := other.(*Molecule)
	if !ok {
		panic(fmt.Sprintf("molecule: cannot merge %T into *Molecule", other))
	}
	out := m.copy()
	off := len(out.atoms)
	for _, a := range om.atoms {
		out.atoms = append(out.atoms, a.copy())
	}
	for i, row := range om.bonds {
		for j, o := range row {
			if i < j {
				out.AddBond(i+off, j+off, o)
			}
		}
	}
	return out
}

// Split partitions the molecule into its connected components, preserving
// relative site order inside each component.
func (m *Molecule) Split() []domain.Structure {
	comp := m.components()
	out := make([]domain.Structure, 0, len(comp))
	for _, sites := range comp {
		sub := NewMolecule()
		remap := make(map[int]int, len(sites))
		for _, i := range sites {
			remap[i] = sub.AddAtom(m.atoms[i].copy())
		}
		for _, i := range sites {
			for j, o := range m.bonds[i] {
				if i < j {
					sub.AddBond(remap[i], remap[j], o)
				}
			}
		}
		out = append(out, sub)
	}
	return out
}

// components groups site indices by connectivity, ordered by each
// component's lowest site.
func (m *Molecule) components() [][]int {
	seen := make([]bool, len(m.atoms))
	var comps [][]int
	for start := range m.atoms {
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
			for _, j := range m.Neighbors(i) {
				if !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		sort.Ints(sites)
		comps = append(comps, sites)
	}
	return comps
}

func (m *Molecule) SiteCount() int { return len(m.atoms) }

func (m *Molecule) SiteLabel(i int) string { return m.atoms[i].Label }

func (m *Molecule) SetSiteLabel(i int, label string) { m.atoms[i].Label = label }

// Labels returns the occupied site labels, sorted and deduplicated.
func (m *Molecule) Labels() []string {
	set := make(map[string]bool)
	for _, a := range m.atoms {
		if a.Label != "" {
			set[a.Label] = true
		}
	}
	return sortedStrings(set)
}

func (m *Molecule) CountLabel(label string) int {
	n := 0
	for _, a := range m.atoms {
		if a.Label == label {
			n++
		}
	}
	return n
}

// RelabelOccurrence renames the n-th site (0-based, site index order)
// carrying label.
func (m *Molecule) RelabelOccurrence(label string, n int, to string) error {
	seen := 0
	for _, a := range m.atoms {
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

func (m *Molecule) ClearLabels() {
	for _, a := range m.atoms {
		a.Label = ""
	}
}

// labeledSite resolves a label expected on exactly one site.
func (m *Molecule) labeledSite(action, label string) (int, *domain.InvalidActionError) {
	found := -1
	for i, a := range m.atoms {
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

// labeledPair resolves a bond action's two endpoints. When both labels are
// equal the label must occur on exactly two sites, which become the
// endpoints (ring closures between same-labeled radicals).
func (m *Molecule) labeledPair(action, label1, label2 string) (int, int, *domain.InvalidActionError) {
	if label1 != label2 {
		i, err := m.labeledSite(action, label1)
		if err != nil {
			return 0, 0, err
		}
		j, err := m.labeledSite(action, label2)
		if err != nil {
			return 0, 0, err
		}
		return i, j, nil
	}
	var sites []int
	for i, a := range m.atoms {
		if a.Label == label1 {
			sites = append(sites, i)
		}
	}
	if len(sites) != 2 {
		return 0, 0, &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("label %q occurs %d time(s), need exactly 2", label1, len(sites))}
	}
	return sites[0], sites[1], nil
}

// FormBond creates a bond between the labeled sites. Only single and van
// der Waals bonds can be formed directly.
func (m *Molecule) FormBond(label1, label2 string, order float64) error {
	const action = "FORM_BOND"
	if order != OrderSingle && order != OrderVanDerWaals {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("cannot form bond of order %s", OrderToken(order))}
	}
	i, j, aerr := m.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	if _, exists := m.bonds[i][j]; exists {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("sites %q and %q are already bonded", label1, label2)}
	}
	m.AddBond(i, j, order)
	return nil
}

// BreakBond removes the bond between the labeled sites.
func (m *Molecule) BreakBond(label1, label2 string, order float64) error {
	const action = "BREAK_BOND"
	i, j, aerr := m.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	if _, exists := m.bonds[i][j]; !exists {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("no bond between %q and %q", label1, label2)}
	}
	m.removeBond(i, j)
	return nil
}

// ChangeBond shifts the order of an existing bond by delta. Aromatic bonds
// cannot be shifted; the resulting order must be single, double or triple.
func (m *Molecule) ChangeBond(label1, label2 string, delta float64) error {
	const action = "CHANGE_BOND"
	i, j, aerr := m.labeledPair(action, label1, label2)
	if aerr != nil {
		return aerr
	}
	old, exists := m.bonds[i][j]
	if !exists {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("no bond between %q and %q", label1, label2)}
	}
	if old == OrderAromatic {
		return &domain.InvalidActionError{Action: action, Reason: "cannot change the order of an aromatic bond"}
	}
	next := old + delta
	if next != OrderSingle && next != OrderDouble && next != OrderTriple {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("bond order %g out of range", next)}
	}
	m.AddBond(i, j, next)
	return nil
}

// ChangeRadical shifts the unpaired-electron count of the labeled site.
func (m *Molecule) ChangeRadical(label string, delta int) error {
	action := "GAIN_RADICAL"
	if delta < 0 {
		action = "LOSE_RADICAL"
	}
	i, aerr := m.labeledSite(action, label)
	if aerr != nil {
		return aerr
	}
	next := m.atoms[i].Radicals + delta
	if next < 0 || next > maxRadicals {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("radical count %d out of range on %q", next, label)}
	}
	m.atoms[i].Radicals = next
	return nil
}

// ChangePair shifts the lone-pair count of the labeled site.
func (m *Molecule) ChangePair(label string, delta int) error {
	action := "GAIN_PAIR"
	if delta < 0 {
		action = "LOSE_PAIR"
	}
	i, aerr := m.labeledSite(action, label)
	if aerr != nil {
		return aerr
	}
	next := m.atoms[i].Pairs + delta
	if next < 0 {
		return &domain.InvalidActionError{Action: action, Reason: fmt.Sprintf("lone pair count %d out of range on %q", next, label)}
	}
	m.atoms[i].Pairs = next
	return nil
}

func (m *Molecule) NetCharge() int {
	total := 0
	for _, a := range m.atoms {
		total += a.Charge
	}
	return total
}

// Kekulize redistributes aromatic bonds into alternating single/double
// orders when a recipe edit broke the aromatic system. An intact aromatic
// system (every aromatic site holding at least two aromatic bonds) is left
// alone. Redistribution assigns every aromatic site exactly one double
// bond; when no such assignment exists the molecule cannot exist in a
// kekulized form and the edit is rejected.
func (m *Molecule) Kekulize() error {
	// 1. Collect the aromatic subgraph.
	var sites []int
	aromatic := make(map[int][]int)
	for i := range m.atoms {
		for j, o := range m.bonds[i] {
			if o == OrderAromatic {
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

	// 2. Intact rings need no redistribution.
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

	// 3. Find a perfect matching over the aromatic subgraph.
	match := make(map[int]int, len(sites))
	if !kekuleMatch(sites, aromatic, match, 0) {
		return fmt.Errorf("no kekulized form exists for broken aromatic system")
	}

	// 4. Rewrite matched pairs as double bonds, the rest as single.
	for _, i := range sites {
		for _, j := range aromatic[i] {
			if i < j {
				if match[i] == j {
					m.AddBond(i, j, OrderDouble)
				} else {
					m.AddBond(i, j, OrderSingle)
				}
			}
		}
	}
	return nil
}

// kekuleMatch backtracks over sites[k:] pairing every site with exactly one
// aromatic partner.
func kekuleMatch(sites []int, aromatic map[int][]int, match map[int]int, k int) bool {
	for k < len(sites) {
		if _, done := match[sites[k]]; !done {
			break
		}
		k++
	}
	if k == len(sites) {
		return true
	}
	i := sites[k]
	for _, j := range aromatic[i] {
		if _, taken := match[j]; taken {
			continue
		}
		match[i], match[j] = j, i
		if kekuleMatch(sites, aromatic, match, k+1) {
			return true
		}
		delete(match, i)
		delete(match, j)
	}
	return false
}

func (m *Molecule) IsPattern() bool { return false }

// IsVacantSite reports whether the molecule is a single unoccupied surface
// site.
func (m *Molecule) IsVacantSite() bool {
	return len(m.atoms) == 1 && m.atoms[0].Element == ElemX
}

// IsAdsorbed reports whether any surface site is bonded to an adsorbate.
func (m *Molecule) IsAdsorbed() bool {
	for i, a := range m.atoms {
		if a.Element == ElemX && len(m.bonds[i]) > 0 {
			return true
		}
	}
	return false
}

// RemoveVanDerWaals drops all van der Waals bonds. The generator calls it
// on products that desorbed but kept their physisorption bond.
func (m *Molecule) RemoveVanDerWaals() {
	for i, row := range m.bonds {
		for j, o := range row {
			if o == OrderVanDerWaals && i < j {
				m.removeBond(i, j)
			}
		}
	}
}

// Render returns the molecule in its adjacency text form.
func (m *Molecule) Render() string { return renderMolecule(m) }

// String implements fmt.Stringer for log and error output.
func (m *Molecule) String() string { return m.Render() }

// Formula renders the molecular formula in Hill order: carbon, hydrogen,
// then the remaining elements alphabetically.
func (m *Molecule) Formula() string {
	counts := make(map[string]int)
	for _, a := range m.atoms {
		counts[a.Element]++
	}
	var b strings.Builder
	write := func(el string) {
		n := counts[el]
		if n == 0 {
			return
		}
		b.WriteString(el)
		if n > 1 {
			b.WriteString(strconv.Itoa(n))
		}
		delete(counts, el)
	}
	write(ElemC)
	write(ElemH)
	rest := make(map[string]bool, len(counts))
	for el := range counts {
		rest[el] = true
	}
	for _, el := range sortedStrings(rest) {
		write(el)
	}
	return b.String()
}

// ringSites reports, per site, whether the site lies on a cycle. An edge on
// a cycle is exactly a non-bridge edge, so bridges are found first.
func (m *Molecule) ringSites() []bool {
	n := len(m.atoms)
	disc := make([]int, n)
	low := make([]int, n)
	inRing := make([]bool, n)
	for i := range disc {
		disc[i] = -1
	}
	timer := 0

	var dfs func(u, parent int)
	dfs = func(u, parent int) {
		disc[u] = timer
		low[u] = timer
		timer++
		skippedParent := false
		for _, v := range m.Neighbors(u) {
			if v == parent && !skippedParent {
				skippedParent = true
				continue
			}
			if disc[v] == -1 {
				dfs(v, u)
				if low[v] < low[u] {
					low[u] = low[v]
				}
				if low[v] <= disc[u] {
					inRing[u] = true
					inRing[v] = true
				}
			} else {
				// A back edge closes a cycle through both endpoints.
				inRing[u] = true
				inRing[v] = true
				if disc[v] < low[u] {
					low[u] = disc[v]
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		if disc[i] == -1 {
			dfs(i, -1)
		}
	}
	return inRing
}
