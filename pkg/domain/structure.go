package domain

// Structure is the boundary to the molecular-graph subsystem. Both concrete
// molecules and structural patterns (groups) satisfy it; IsPattern tells them
// apart. Sites are addressed two ways: by index for matcher mappings, and by
// the stable `*n` atom labels for recipe actions.
//
// Implementations live outside the core (see pkg/adapters/molecule for the
// reference one); the engine never depends on a concrete graph type.
type Structure interface {
	// Copy returns a deep copy. Labels are preserved.
	Copy() Structure

	// Merge returns a new structure holding the disjoint union of the
	// receiver and other. The receiver's sites come first in index order.
	Merge(other Structure) Structure

	// Split partitions the structure into its connected components.
	Split() []Structure

	SiteCount() int
	SiteLabel(i int) string
	SetSiteLabel(i int, label string)

	// Labels returns the occupied labels in sorted order. CountLabel reports
	// how many sites carry label.
	Labels() []string
	CountLabel(label string) int

	// RelabelOccurrence renames the n-th site (0-based, in site index order)
	// carrying label. It fails when fewer than n+1 sites carry the label.
	RelabelOccurrence(label string, n int, to string) error

	// ClearLabels removes every site label.
	ClearLabels()

	// Recipe actions, addressed by label. Each returns *InvalidActionError
	// when the structure cannot legally absorb the change.
	FormBond(label1, label2 string, order float64) error
	BreakBond(label1, label2 string, order float64) error
	ChangeBond(label1, label2 string, delta float64) error
	ChangeRadical(label string, delta int) error
	ChangePair(label string, delta int) error

	// NetCharge is the formal charge summed over all sites.
	NetCharge() int

	// Kekulize redistributes aromatic bonds into alternating orders after an
	// edit invalidated the aromatic form. Failure on a concrete molecule
	// rejects the candidate.
	Kekulize() error

	// IsPattern reports whether the structure is a pattern (wildcards
	// allowed) rather than a concrete molecule.
	IsPattern() bool

	// IsVacantSite reports whether the structure is exactly one unoccupied
	// surface site. IsAdsorbed reports whether any surface site is bonded to
	// an adsorbate.
	IsVacantSite() bool
	IsAdsorbed() bool

	// Render returns the structure in its adjacency text form.
	Render() string
}

// Mapping relates pattern site indices to target site indices for one
// subgraph embedding.
type Mapping map[int]int

// ExtensionKind names the feature dimension a pattern refinement pins down.
type ExtensionKind int

const (
	ExtendAtomType ExtensionKind = iota
	ExtendRadical
	ExtendRing
	ExtendBondOrder
	ExtendInternalBond
	ExtendExternalBond
)

func (k ExtensionKind) String() string {
	switch k {
	case ExtendAtomType:
		return "atom"
	case ExtendRadical:
		return "radical"
	case ExtendRing:
		return "ring"
	case ExtendBondOrder:
		return "order"
	case ExtendInternalBond:
		return "int-bond"
	case ExtendExternalBond:
		return "ext-bond"
	}
	return "unknown"
}

// Extension is one candidate single-feature refinement of a pattern, as
// enumerated by the pattern subsystem during tree induction.
type Extension struct {
	// Pattern is the refined pattern; Complement is its structural negation
	// (nil when no complement is constructible, e.g. new-bond extensions).
	Pattern    Structure
	Complement Structure

	// Label names the refined pattern's tree node, built from the base
	// label handed to Extensions.
	Label string

	Kind ExtensionKind

	// Sites are the affected site indices; Sites[1] is -1 for single-site
	// dimensions.
	Sites [2]int
}

// Extendable is implemented by patterns that can enumerate refinements and
// remember which feature dimensions were already explored. The tree inducer
// type-asserts tree-node patterns to it.
type Extendable interface {
	// Extensions enumerates candidate refinements, skipping dimensions
	// already bound. base seeds the child naming.
	Extensions(base string) ([]Extension, error)

	// BindDimension records that ext's feature holds for every reaction at
	// the node, so later enumerations stop proposing it.
	BindDimension(ext Extension)

	// ExcludeDimension records that ext's feature holds for no reaction at
	// the node (ring dimensions only).
	ExcludeDimension(ext Extension)

	// ClearDimensions forgets all recorded bounds.
	ClearDimensions()
}

// Regularizable is implemented by patterns that can tighten their explored
// dimensions to the narrowest form covering a set of child patterns. keep is
// consulted with each candidate narrowing and may veto it; leaf marks nodes
// without children, where graphically indistinguishable sites are skipped.
type Regularizable interface {
	Narrow(children []Structure, leaf bool, keep func(Structure) bool)
}

// Species is a named molecule together with its resonance variants, as
// supplied by the caller. The generator tries every variant against the
// template slots.
type Species struct {
	Label      string
	Structures []Structure
}

// NewSpecies builds a species from one or more structure variants.
func NewSpecies(label string, variants ...Structure) *Species {
	return &Species{Label: label, Structures: variants}
}

// Canonical returns the first structure variant, the species' canonical form.
func (s *Species) Canonical() Structure {
	if s == nil || len(s.Structures) == 0 {
		return nil
	}
	return s.Structures[0]
}

// Copy deep-copies the species and its variants.
func (s *Species) Copy() *Species {
	out := &Species{Label: s.Label, Structures: make([]Structure, len(s.Structures))}
	for i, st := range s.Structures {
		out.Structures[i] = st.Copy()
	}
	return out
}
