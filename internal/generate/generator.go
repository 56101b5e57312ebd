package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// Request is one generation call. Each reactant species carries its
// resonance variants; every variant participates in slot assignment.
type Request struct {
	Reactants []*domain.Species

	// Products, when set, keeps only reactions producing exactly these
	// species.
	Products []*domain.Species
}

// Generator enumerates a single family's reactions.
type Generator struct {
	family  *Family
	matcher ports.Matcher
	global  []domain.Structure
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the generator's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger.With("family", g.family.Name)
		}
	}
}

// WithGlobalForbidden adds forbidden patterns checked for every family on
// top of the family's own list.
func WithGlobalForbidden(patterns ...domain.Structure) Option {
	return func(g *Generator) {
		g.global = append(g.global, patterns...)
	}
}

// New validates the family and returns a generator over it.
func New(family *Family, matcher ports.Matcher, opts ...Option) (*Generator, error) {
	if matcher == nil {
		return nil, fmt.Errorf("generate: nil matcher")
	}
	if err := family.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		family:  family,
		matcher: matcher,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// candidate is one surviving slot assignment before degeneracy collapse.
type candidate struct {
	reactants []domain.Structure // labeled copies in slot order
	products  []domain.Structure // recipe output, already ordered
	template  []string           // most specific tree node per slot
}

// Generate enumerates the reactions the family admits for the requested
// reactants. Self-reverse families verify every forward reaction from the
// product side; other reversible families enumerate the reverse template
// too, flagged with IsForward=false.
func (g *Generator) Generate(ctx context.Context, req Request) ([]*domain.Reaction, error) {
	if len(req.Reactants) == 0 || len(req.Reactants) > 3 {
		return nil, fmt.Errorf("generate: want 1 to 3 reactant species, got %d", len(req.Reactants))
	}
	for _, s := range req.Reactants {
		if s == nil || len(s.Structures) == 0 {
			return nil, fmt.Errorf("generate: reactant species without structures")
		}
	}

	same := sameReactants(g.matcher, req.Reactants)

	forward, err := g.direction(ctx, req, true, same)
	if err != nil {
		return nil, err
	}

	out := forward
	if g.family.OwnReverse {
		kept := forward[:0]
		for _, rxn := range forward {
			ok, err := g.verifyReverse(ctx, rxn)
			if err != nil {
				return nil, err
			}
			if ok {
				kept = append(kept, rxn)
			}
		}
		out = kept
	} else if g.family.Reversible {
		reverse, err := g.direction(ctx, req, false, same)
		if err != nil {
			return nil, err
		}
		out = append(out, reverse...)
	}

	markDuplicates(g.matcher, out)
	metrics.reactionsGenerated.Add(float64(len(out)))
	g.logger.Info("generated reactions",
		"family", g.family.Name,
		"reactants", len(req.Reactants),
		"count", len(out))
	return out, nil
}

// direction enumerates, filters and collapses one template direction.
func (g *Generator) direction(ctx context.Context, req Request, forward bool, same int) ([]*domain.Reaction, error) {
	cands, err := g.enumerate(ctx, req.Reactants, forward, true)
	if err != nil {
		return nil, err
	}
	if len(req.Products) > 0 {
		kept := cands[:0]
		for _, c := range cands {
			if matchesRequestedProducts(g.matcher, c.products, req.Products) {
				kept = append(kept, c)
			}
		}
		cands = kept
	}
	return g.collapse(cands, same, forward), nil
}

// enumerate tries every assignment of reactant variants to template slots
// and returns the candidates surviving the rejection rules. Slot orders are
// enumerated exhaustively; redundant assignments from mutually isomorphic
// reactants are deflated later by the degeneracy divisor.
func (g *Generator) enumerate(ctx context.Context, species []*domain.Species, forward, useForbidden bool) ([]candidate, error) {
	slots := g.family.slots(forward)
	slotEntries := make([][]*domain.Entry, len(slots))
	for i, s := range slots {
		entries, err := g.family.slotPatterns(s)
		if err != nil {
			return nil, err
		}
		slotEntries[i] = entries
	}

	// Matching must see unlabeled structures; training and user species may
	// carry labels of their own.
	variants := make([][]domain.Structure, len(species))
	for i, sp := range species {
		variants[i] = make([]domain.Structure, len(sp.Structures))
		for j, v := range sp.Structures {
			c := v.Copy()
			c.ClearLabels()
			variants[i][j] = c
		}
	}

	var out []candidate
	add := func(structs []domain.Structure, matched []*domain.Entry, maps []domain.Mapping) error {
		cand, ok, err := g.buildCandidate(structs, matched, maps, slots, forward, useForbidden)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, cand)
		}
		return nil
	}

	switch {
	case len(species) == 1 && len(slots) == 1:
		for _, v := range variants[0] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := g.assign(add, []domain.Structure{v}, slotEntries); err != nil {
				return nil, err
			}
		}

	case len(species) == 2 && len(slots) == 2:
		for _, va := range variants[0] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, vb := range variants[1] {
				if err := g.assign(add, []domain.Structure{va, vb}, slotEntries); err != nil {
					return nil, err
				}
				if err := g.assign(add, []domain.Structure{vb, va}, slotEntries); err != nil {
					return nil, err
				}
			}
		}

	case len(species) == 2 && len(slots) == 3 && g.family.Surface:
		if err := g.enumerateSurfacePair(ctx, variants, slotEntries, add); err != nil {
			return nil, err
		}

	case len(species) == 3 && len(slots) == 3:
		perms := [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
		for _, va := range variants[0] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, vb := range variants[1] {
				for _, vc := range variants[2] {
					triple := [3]domain.Structure{va, vb, vc}
					for _, p := range perms {
						structs := []domain.Structure{triple[p[0]], triple[p[1]], triple[p[2]]}
						if err := g.assign(add, structs, slotEntries); err != nil {
							return nil, err
						}
					}
				}
			}
		}
	}
	return out, nil
}

// enumerateSurfacePair handles two concrete reactants against a template
// with two vacant-site slots: the site structure is reused for both.
func (g *Generator) enumerateSurfacePair(ctx context.Context, variants [][]domain.Structure, slotEntries [][]*domain.Entry, add func([]domain.Structure, []*domain.Entry, []domain.Mapping) error) error {
	vacant := make([]int, 0, 2)
	other := -1
	for i, entries := range slotEntries {
		allVacant := len(entries) > 0
		for _, e := range entries {
			if !e.Pattern.IsVacantSite() {
				allVacant = false
				break
			}
		}
		if allVacant {
			vacant = append(vacant, i)
		} else {
			other = i
		}
	}
	if len(vacant) != 2 || other < 0 {
		return nil
	}

	for swap := 0; swap < 2; swap++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sites, adsorbates := variants[swap], variants[1-swap]
		for _, site := range sites {
			if !site.IsVacantSite() {
				continue
			}
			for _, ads := range adsorbates {
				// An adsorbate already bound to a site cannot adsorb again.
				if ads.IsAdsorbed() {
					continue
				}
				structs := make([]domain.Structure, 3)
				structs[vacant[0]] = site
				structs[vacant[1]] = site.Copy()
				structs[other] = ads
				if err := g.assign(add, structs, slotEntries); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// assign enumerates every embedding combination of structs against the slot
// patterns and feeds each to add.
func (g *Generator) assign(add func([]domain.Structure, []*domain.Entry, []domain.Mapping) error, structs []domain.Structure, slotEntries [][]*domain.Entry) error {
	matchesPerSlot := make([][]slotMatch, len(structs))
	for i, s := range structs {
		matchesPerSlot[i] = g.matchSlot(s, slotEntries[i])
		if len(matchesPerSlot[i]) == 0 {
			return nil
		}
	}

	matched := make([]*domain.Entry, len(structs))
	maps := make([]domain.Mapping, len(structs))
	var walk func(i int) error
	walk = func(i int) error {
		if i == len(structs) {
			return add(structs, matched, maps)
		}
		for _, m := range matchesPerSlot[i] {
			matched[i] = m.entry
			maps[i] = m.mapping
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0)
}

type slotMatch struct {
	entry   *domain.Entry
	mapping domain.Mapping
}

// matchSlot returns every embedding of the slot's patterns into s.
func (g *Generator) matchSlot(s domain.Structure, entries []*domain.Entry) []slotMatch {
	var out []slotMatch
	for _, e := range entries {
		for _, m := range g.matcher.Match(e.Pattern, s) {
			out = append(out, slotMatch{entry: e, mapping: m})
		}
	}
	return out
}

// buildCandidate labels fresh copies from the matched patterns, runs the
// recipe and applies the rejection rules. ok=false means the candidate was
// rejected; err signals a broken family definition.
func (g *Generator) buildCandidate(structs []domain.Structure, matched []*domain.Entry, maps []domain.Mapping, slots []*domain.Entry, forward, useForbidden bool) (candidate, bool, error) {
	// 1. Transfer the template labels onto reactant copies.
	copies := make([]domain.Structure, len(structs))
	for i, s := range structs {
		c := s.Copy()
		c.ClearLabels()
		pattern := matched[i].Pattern
		for pi, ti := range maps[i] {
			if label := pattern.SiteLabel(pi); label != "" {
				c.SetSiteLabel(ti, label)
			}
		}
		copies[i] = c
	}

	// 2. Run the recipe. Candidates it cannot absorb are skipped.
	products, err := g.family.Engine.Apply(copies, forward)
	if err != nil {
		var invalid *domain.InvalidActionError
		if errors.As(err, &invalid) {
			metrics.candidatesRejected.WithLabelValues("recipe").Inc()
			return candidate{}, false, nil
		}
		return candidate{}, false, err
	}

	// 3. A product count differing from the template's declaration means
	// the template does not apply to this mapping.
	if len(products) != g.family.productCount(forward) {
		metrics.candidatesRejected.WithLabelValues("product_count").Inc()
		return candidate{}, false, nil
	}

	// 4. Desorbed products keep their physisorption bond; drop it.
	for _, p := range products {
		if r, ok := p.(interface{ RemoveVanDerWaals() }); ok {
			r.RemoveVanDerWaals()
		}
	}

	// 5. Forbidden products reject silently.
	if useForbidden {
		for _, p := range products {
			if isForbidden(g.matcher, g.family.Forbidden, p) || isForbidden(g.matcher, g.global, p) {
				metrics.candidatesRejected.WithLabelValues("forbidden").Inc()
				return candidate{}, false, nil
			}
		}
	}

	// 6. Charge must balance across sides.
	if netCharge(copies) != netCharge(products) {
		metrics.candidatesRejected.WithLabelValues("charge").Inc()
		return candidate{}, false, nil
	}

	// 7. Identity reactions carry no flux.
	if sameStructureLists(g.matcher, copies, products) {
		metrics.candidatesRejected.WithLabelValues("identity").Inc()
		return candidate{}, false, nil
	}

	// 8. Reversed adsorption must actually desorb something.
	if !forward && g.family.RequireGasProduct && !hasGasProduct(products) {
		metrics.candidatesRejected.WithLabelValues("no_gas_product").Inc()
		return candidate{}, false, nil
	}

	// 9. Record the most specific tree node per slot.
	template := make([]string, len(slots))
	for i, root := range slots {
		template[i] = g.family.DescendTree(g.matcher, root, copies[i]).Label
	}

	return candidate{reactants: copies, products: products, template: template}, true, nil
}

// collapse groups candidates into one reaction per mechanism. Candidates
// sharing a template and isomorphic species lists count toward one
// degeneracy figure, deflated when the requested reactants were mutually
// isomorphic (both slot orders were enumerated for the same pair).
func (g *Generator) collapse(cands []candidate, same int, forward bool) []*domain.Reaction {
	type group struct {
		first candidate
		count int
	}
	var groups []*group
next:
	for _, c := range cands {
		for _, grp := range groups {
			if sameTemplate(grp.first.template, c.template) &&
				sameStructureLists(g.matcher, grp.first.reactants, c.reactants) &&
				sameStructureLists(g.matcher, grp.first.products, c.products) {
				grp.count++
				continue next
			}
		}
		groups = append(groups, &group{first: c, count: 1})
	}

	divisor := 1
	switch same {
	case 2:
		divisor = 2
	case 3:
		divisor = 6
	}

	out := make([]*domain.Reaction, 0, len(groups))
	for _, grp := range groups {
		deg := grp.count / divisor
		if deg < 1 {
			deg = 1
		}
		rxn := &domain.Reaction{
			Reactants:  speciesList(grp.first.reactants),
			Products:   speciesList(grp.first.products),
			Degeneracy: deg,
			Reversible: g.family.Reversible,
			Template:   append([]string(nil), grp.first.template...),
			Family:     g.family.Name,
			IsForward:  forward,
		}
		rxn.Pairs = g.reactionPairs(rxn)
		out = append(out, rxn)
	}
	return out
}

// verifyReverse regenerates a self-reverse family's reaction from the
// product side and checks for exactly one reverse mechanism. false drops the
// forward reaction: its reverse is blocked by the forbidden list.
func (g *Generator) verifyReverse(ctx context.Context, rxn *domain.Reaction) (bool, error) {
	reverse, err := g.reverseMechanisms(ctx, rxn, true)
	if err != nil {
		return false, err
	}
	switch {
	case len(reverse) == 1:
		return true, nil

	case len(reverse) == 0:
		// Retry without the forbidden list: a hit there means the forward
		// reaction is irreversible because its reverse is forbidden.
		retry, err := g.reverseMechanisms(ctx, rxn, false)
		if err != nil {
			return false, err
		}
		if len(retry) > 0 {
			metrics.candidatesRejected.WithLabelValues("forbidden_reverse").Inc()
			g.logger.Debug("dropping reaction whose reverse is forbidden", "template", rxn.Template)
			return false, nil
		}
		return false, &domain.KineticsError{
			Op:         "generate.reverse",
			Family:     g.family.Name,
			Message:    "no reverse mechanism found in self-reverse family",
			Structures: renderReaction(rxn),
		}

	default:
		// Copies of one mechanism are tolerated; genuinely distinct reverse
		// mechanisms are a definition error.
		for _, other := range reverse[1:] {
			if !sameSpeciesLists(g.matcher, reverse[0].Reactants, other.Reactants) ||
				!sameSpeciesLists(g.matcher, reverse[0].Products, other.Products) {
				return false, &domain.KineticsError{
					Op:         "generate.reverse",
					Family:     g.family.Name,
					Message:    fmt.Sprintf("%d non-equivalent reverse mechanisms found in self-reverse family", len(reverse)),
					Structures: renderReaction(rxn),
				}
			}
		}
		return true, nil
	}
}

// reverseMechanisms generates from the reaction's products and keeps the
// mechanisms that regenerate its reactants.
func (g *Generator) reverseMechanisms(ctx context.Context, rxn *domain.Reaction, useForbidden bool) ([]*domain.Reaction, error) {
	cands, err := g.enumerate(ctx, rxn.Products, true, useForbidden)
	if err != nil {
		return nil, err
	}
	targets := canonicalStructures(rxn.Reactants)
	kept := cands[:0]
	for _, c := range cands {
		if sameStructureLists(g.matcher, c.products, targets) {
			kept = append(kept, c)
		}
	}
	same := sameReactants(g.matcher, rxn.Products)
	return g.collapse(kept, same, true), nil
}

// sameReactants classifies mutually isomorphic reactants: 0 all distinct,
// 2 one isomorphic pair, 3 all three alike.
func sameReactants(m ports.Matcher, reactants []*domain.Species) int {
	switch len(reactants) {
	case 2:
		if speciesAlike(m, reactants[0], reactants[1]) {
			return 2
		}
	case 3:
		ab := speciesAlike(m, reactants[0], reactants[1])
		ac := speciesAlike(m, reactants[0], reactants[2])
		bc := speciesAlike(m, reactants[1], reactants[2])
		switch {
		case ab && ac && bc:
			return 3
		case ab || ac || bc:
			return 2
		}
	}
	return 0
}

func speciesAlike(m ports.Matcher, a, b *domain.Species) bool {
	if a == b {
		return true
	}
	for _, va := range a.Structures {
		for _, vb := range b.Structures {
			if m.Isomorphic(va, vb) {
				return true
			}
		}
	}
	return false
}

// markDuplicates flags reactions sharing species lists while proceeding
// through different mechanisms.
func markDuplicates(m ports.Matcher, rxns []*domain.Reaction) {
	for i := 0; i < len(rxns); i++ {
		for j := i + 1; j < len(rxns); j++ {
			if rxns[i].IsForward != rxns[j].IsForward {
				continue
			}
			if sameSpeciesLists(m, rxns[i].Reactants, rxns[j].Reactants) &&
				sameSpeciesLists(m, rxns[i].Products, rxns[j].Products) {
				rxns[i].Duplicate = true
				rxns[j].Duplicate = true
			}
		}
	}
}

// sameStructureLists reports multiset equality under isomorphism.
func sameStructureLists(m ports.Matcher, a, b []domain.Structure) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	var match func(i int) bool
	match = func(i int) bool {
		if i == len(a) {
			return true
		}
		for j := range b {
			if used[j] || !m.Isomorphic(a[i], b[j]) {
				continue
			}
			used[j] = true
			if match(i + 1) {
				return true
			}
			used[j] = false
		}
		return false
	}
	return match(0)
}

func sameSpeciesLists(m ports.Matcher, a, b []*domain.Species) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	var match func(i int) bool
	match = func(i int) bool {
		if i == len(a) {
			return true
		}
		for j := range b {
			if used[j] || !speciesAlike(m, a[i], b[j]) {
				continue
			}
			used[j] = true
			if match(i + 1) {
				return true
			}
			used[j] = false
		}
		return false
	}
	return match(0)
}

// matchesRequestedProducts checks the candidate's products against the
// requested species, any resonance variant counting as a match.
func matchesRequestedProducts(m ports.Matcher, products []domain.Structure, requested []*domain.Species) bool {
	if len(products) != len(requested) {
		return false
	}
	used := make([]bool, len(requested))
	var match func(i int) bool
	match = func(i int) bool {
		if i == len(products) {
			return true
		}
		for j, sp := range requested {
			if used[j] {
				continue
			}
			for _, v := range sp.Structures {
				if m.Isomorphic(products[i], v) {
					used[j] = true
					if match(i + 1) {
						return true
					}
					used[j] = false
					break
				}
			}
		}
		return false
	}
	return match(0)
}

func sameTemplate(a, b []string) bool {
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

func netCharge(list []domain.Structure) int {
	total := 0
	for _, s := range list {
		total += s.NetCharge()
	}
	return total
}

func hasGasProduct(products []domain.Structure) bool {
	for _, p := range products {
		if !p.IsAdsorbed() && !p.IsVacantSite() {
			return true
		}
	}
	return false
}

// speciesList wraps product structures as species, named by formula when the
// structure can render one.
func speciesList(structs []domain.Structure) []*domain.Species {
	out := make([]*domain.Species, len(structs))
	for i, s := range structs {
		label := ""
		if f, ok := s.(interface{ Formula() string }); ok {
			label = f.Formula()
		}
		out[i] = domain.NewSpecies(label, s)
	}
	return out
}

func canonicalStructures(list []*domain.Species) []domain.Structure {
	out := make([]domain.Structure, 0, len(list))
	for _, s := range list {
		if c := s.Canonical(); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func renderReaction(rxn *domain.Reaction) []string {
	var out []string
	for _, s := range rxn.Reactants {
		if c := s.Canonical(); c != nil {
			out = append(out, c.Render())
		}
	}
	for _, s := range rxn.Products {
		if c := s.Canonical(); c != nil {
			out = append(out, c.Render())
		}
	}
	return out
}
