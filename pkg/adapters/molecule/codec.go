package molecule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// The adjacency text form is line oriented, one site per line:
//
//	1 *1 C u1 {2,S} {3,S}
//	2    O u0 p2 {1,S}
//	3    H u0 {1,S}
//
// Patterns use the same shape with set-valued fields and wildcards:
//
//	1 *1 [C,O] u[0,1] r1 {2,[S,D]}
//	2 *2 R!H u[0] {1,[S,D]}
//
// Fields after the index: optional `*n` label, element or bracketed type
// list, `u` radicals, optional `p` lone pairs, optional `c` charge
// (molecules), optional `r0`/`r1` ring pin (patterns), then one `{i,order}`
// token per bond. Bonds must be declared on both endpoint lines with
// matching orders.

// ParseMolecule parses the adjacency text form of a concrete molecule.
func ParseMolecule(text string) (*Molecule, error) {
	lines, err := splitAdjacency(text)
	if err != nil {
		return nil, err
	}
	m := NewMolecule()
	index := make(map[int]int, len(lines))
	for _, ln := range lines {
		a := &Atom{Label: ln.label}
		if len(ln.types) != 1 {
			return nil, fmt.Errorf("adjacency line %d: molecule site needs exactly one element, got %q", ln.num, strings.Join(ln.types, ","))
		}
		a.Element = ln.types[0]
		if !validElement(a.Element) {
			return nil, fmt.Errorf("adjacency line %d: unknown element %q", ln.num, a.Element)
		}
		if len(ln.radicals) != 1 {
			return nil, fmt.Errorf("adjacency line %d: molecule site needs exactly one radical count", ln.num)
		}
		a.Radicals = ln.radicals[0]
		if a.Radicals < 0 || a.Radicals > maxRadicals {
			return nil, fmt.Errorf("adjacency line %d: radical count %d out of range", ln.num, a.Radicals)
		}
		switch len(ln.pairs) {
		case 0:
		case 1:
			a.Pairs = ln.pairs[0]
		default:
			return nil, fmt.Errorf("adjacency line %d: molecule site needs exactly one lone pair count", ln.num)
		}
		a.Charge = ln.charge
		if ln.ring != nil {
			return nil, fmt.Errorf("adjacency line %d: ring pins are pattern-only", ln.num)
		}
		index[ln.index] = m.AddAtom(a)
	}
	link := func(i, j int, orders []float64) error {
		if len(orders) != 1 {
			return fmt.Errorf("molecule bonds carry exactly one order")
		}
		m.AddBond(i, j, orders[0])
		return nil
	}
	if err := resolveBonds(lines, index, link); err != nil {
		return nil, err
	}
	return m, nil
}

// ParsePattern parses the adjacency text form of a structural pattern.
func ParsePattern(text string) (*Pattern, error) {
	lines, err := splitAdjacency(text)
	if err != nil {
		return nil, err
	}
	p := NewPattern()
	index := make(map[int]int, len(lines))
	for _, ln := range lines {
		a := &PatternAtom{Label: ln.label, Ring: ln.ring}
		for _, t := range ln.types {
			if !validElement(t) && t != WildcardAny && t != WildcardNonH {
				return nil, fmt.Errorf("adjacency line %d: unknown type %q", ln.num, t)
			}
		}
		if !(len(ln.types) == 1 && ln.types[0] == WildcardAny) {
			a.Types = append([]string(nil), ln.types...)
			sort.Strings(a.Types)
		}
		a.Radicals = append([]int(nil), ln.radicals...)
		sort.Ints(a.Radicals)
		for _, u := range a.Radicals {
			if u < 0 || u > maxRadicals {
				return nil, fmt.Errorf("adjacency line %d: radical count %d out of range", ln.num, u)
			}
		}
		a.Pairs = append([]int(nil), ln.pairs...)
		sort.Ints(a.Pairs)
		if ln.charge != 0 {
			return nil, fmt.Errorf("adjacency line %d: charges are molecule-only", ln.num)
		}
		index[ln.index] = p.AddAtom(a)
	}
	link := func(i, j int, orders []float64) error {
		p.AddBond(i, j, orders...)
		return nil
	}
	if err := resolveBonds(lines, index, link); err != nil {
		return nil, err
	}
	return p, nil
}

// renderMolecule writes the canonical adjacency text: sites renumbered
// 1-based in index order, bonds sorted by partner.
func renderMolecule(m *Molecule) string {
	var b strings.Builder
	for i, a := range m.atoms {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d", i+1)
		if a.Label != "" {
			fmt.Fprintf(&b, " %s", a.Label)
		}
		fmt.Fprintf(&b, " %s u%d", a.Element, a.Radicals)
		if a.Pairs != 0 {
			fmt.Fprintf(&b, " p%d", a.Pairs)
		}
		if a.Charge != 0 {
			fmt.Fprintf(&b, " c%+d", a.Charge)
		}
		for _, j := range m.Neighbors(i) {
			fmt.Fprintf(&b, " {%d,%s}", j+1, OrderToken(m.bonds[i][j]))
		}
	}
	return b.String()
}

func renderPattern(p *Pattern) string {
	var b strings.Builder
	for i, a := range p.atoms {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d", i+1)
		if a.Label != "" {
			fmt.Fprintf(&b, " %s", a.Label)
		}
		fmt.Fprintf(&b, " %s", a.typesString())
		if len(a.Radicals) > 0 {
			fmt.Fprintf(&b, " u[%s]", joinInts(a.Radicals))
		}
		if len(a.Pairs) > 0 {
			fmt.Fprintf(&b, " p[%s]", joinInts(a.Pairs))
		}
		if a.Ring != nil {
			if *a.Ring {
				b.WriteString(" r1")
			} else {
				b.WriteString(" r0")
			}
		}
		for _, j := range p.Neighbors(i) {
			fmt.Fprintf(&b, " {%d,%s}", j+1, p.bonds[i][j].ordersString())
		}
	}
	return b.String()
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// -- line scanner --

type adjLine struct {
	num      int // 1-based input line number, for errors
	index    int // declared site index
	label    string
	types    []string
	radicals []int
	pairs    []int
	charge   int
	ring     *bool
	bonds    []adjBond
}

type adjBond struct {
	partner int
	orders  []float64
}

func splitAdjacency(text string) ([]adjLine, error) {
	var out []adjLine
	seen := make(map[int]bool)
	for num, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		ln, err := parseAdjLine(line)
		if err != nil {
			return nil, fmt.Errorf("adjacency line %d: %w", num+1, err)
		}
		ln.num = num + 1
		if seen[ln.index] {
			return nil, fmt.Errorf("adjacency line %d: duplicate site index %d", num+1, ln.index)
		}
		seen[ln.index] = true
		out = append(out, ln)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty adjacency text")
	}
	return out, nil
}

func parseAdjLine(line string) (adjLine, error) {
	var ln adjLine
	fields := strings.Fields(line)
	idx, err := strconv.Atoi(fields[0])
	if err != nil {
		return ln, fmt.Errorf("site index %q is not a number", fields[0])
	}
	ln.index = idx
	sawType := false
	for _, tok := range fields[1:] {
		switch {
		case strings.HasPrefix(tok, "*"):
			if ln.label != "" {
				return ln, fmt.Errorf("two labels on one site")
			}
			ln.label = tok
		case strings.HasPrefix(tok, "{"):
			bond, err := parseBondToken(tok)
			if err != nil {
				return ln, err
			}
			ln.bonds = append(ln.bonds, bond)
		case tok == "r0" || tok == "r1":
			v := tok == "r1"
			ln.ring = &v
		case strings.HasPrefix(tok, "u"):
			vals, err := parseIntSet(tok[1:])
			if err != nil {
				return ln, fmt.Errorf("bad radical token %q: %w", tok, err)
			}
			ln.radicals = vals
		case strings.HasPrefix(tok, "p"):
			vals, err := parseIntSet(tok[1:])
			if err != nil {
				return ln, fmt.Errorf("bad lone pair token %q: %w", tok, err)
			}
			ln.pairs = vals
		case strings.HasPrefix(tok, "c"):
			v, err := strconv.Atoi(strings.TrimPrefix(tok[1:], "+"))
			if err != nil {
				return ln, fmt.Errorf("bad charge token %q", tok)
			}
			ln.charge = v
		case !sawType:
			types, err := parseTypeToken(tok)
			if err != nil {
				return ln, err
			}
			ln.types = types
			sawType = true
		default:
			return ln, fmt.Errorf("unexpected token %q", tok)
		}
	}
	if !sawType {
		return ln, fmt.Errorf("missing element or type set")
	}
	return ln, nil
}

func parseTypeToken(tok string) ([]string, error) {
	if strings.HasPrefix(tok, "[") {
		if !strings.HasSuffix(tok, "]") {
			return nil, fmt.Errorf("unterminated type set %q", tok)
		}
		var out []string
		for _, part := range strings.Split(tok[1:len(tok)-1], ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty type set %q", tok)
		}
		return out, nil
	}
	return []string{tok}, nil
}

func parseIntSet(body string) ([]int, error) {
	if strings.HasPrefix(body, "[") {
		if !strings.HasSuffix(body, "]") {
			return nil, fmt.Errorf("unterminated set")
		}
		var out []int
		for _, part := range strings.Split(body[1:len(body)-1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", part)
			}
			out = append(out, v)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty set")
		}
		return out, nil
	}
	v, err := strconv.Atoi(body)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", body)
	}
	return []int{v}, nil
}

func parseBondToken(tok string) (adjBond, error) {
	var bond adjBond
	if !strings.HasSuffix(tok, "}") {
		return bond, fmt.Errorf("unterminated bond token %q", tok)
	}
	body := tok[1 : len(tok)-1]
	comma := strings.Index(body, ",")
	if comma < 0 {
		return bond, fmt.Errorf("bond token %q needs a partner and an order", tok)
	}
	partner, err := strconv.Atoi(body[:comma])
	if err != nil {
		return bond, fmt.Errorf("bond partner %q is not a number", body[:comma])
	}
	bond.partner = partner
	spec := body[comma+1:]
	var toks []string
	if strings.HasPrefix(spec, "[") {
		if !strings.HasSuffix(spec, "]") {
			return bond, fmt.Errorf("unterminated order set in %q", tok)
		}
		toks = strings.Split(spec[1:len(spec)-1], ",")
	} else {
		toks = []string{spec}
	}
	for _, t := range toks {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		o, err := ParseOrderToken(t)
		if err != nil {
			return bond, err
		}
		bond.orders = append(bond.orders, o)
	}
	if len(bond.orders) == 0 {
		return bond, fmt.Errorf("bond token %q carries no orders", tok)
	}
	sort.Float64s(bond.orders)
	return bond, nil
}

// resolveBonds checks the two-sided bond declarations and hands each edge
// to link exactly once.
func resolveBonds(lines []adjLine, index map[int]int, link func(i, j int, orders []float64) error) error {
	type edge struct{ a, b int }
	declared := make(map[edge][]float64)
	for _, ln := range lines {
		for _, bd := range ln.bonds {
			if _, ok := index[bd.partner]; !ok {
				return fmt.Errorf("adjacency line %d: bond to undeclared site %d", ln.num, bd.partner)
			}
			if bd.partner == ln.index {
				return fmt.Errorf("adjacency line %d: site bonded to itself", ln.num)
			}
			e := edge{a: ln.index, b: bd.partner}
			if e.a > e.b {
				e.a, e.b = e.b, e.a
			}
			if prev, ok := declared[e]; ok {
				if !floatsEqual(prev, bd.orders) {
					return fmt.Errorf("adjacency line %d: bond %d-%d declared with conflicting orders", ln.num, e.a, e.b)
				}
				if err := link(index[e.a], index[e.b], bd.orders); err != nil {
					return fmt.Errorf("adjacency line %d: %w", ln.num, err)
				}
				delete(declared, e)
				continue
			}
			declared[e] = bd.orders
		}
	}
	for e := range declared {
		return fmt.Errorf("bond %d-%d declared on one line only", e.a, e.b)
	}
	return nil
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
