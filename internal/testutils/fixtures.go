package testutils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/recipe"
	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

// Mol parses adjacency text as a concrete molecule, failing the test on a
// parse error.
func Mol(t *testing.T, text string) *molecule.Molecule {
	t.Helper()
	m, err := molecule.ParseMolecule(text)
	require.NoError(t, err, "bad molecule fixture")
	return m
}

// Pat parses adjacency text as a structural pattern, failing the test on a
// parse error.
func Pat(t *testing.T, text string) *molecule.Pattern {
	t.Helper()
	p, err := molecule.ParsePattern(text)
	require.NoError(t, err, "bad pattern fixture")
	return p
}

// Recipe builds an action sequence, failing the test on a malformed action.
func Recipe(t *testing.T, actions ...domain.Action) *domain.Recipe {
	t.Helper()
	r := &domain.Recipe{}
	for _, a := range actions {
		require.NoError(t, r.AddAction(a), "bad recipe fixture")
	}
	return r
}

func entry(index int64, label, parent string, children []string, pattern domain.Structure) *domain.Entry {
	return &domain.Entry{
		Index:    index,
		Label:    label,
		Parent:   parent,
		Children: children,
		Pattern:  pattern,
	}
}

// AbstractionFamily builds a self-reverse hydrogen-abstraction family with a
// two-level tree on both slots:
//
//	X_H (*1 R!H - *2 H)        Y_rad (*3 R u1)
//	├── C_H                    ├── C_rad
//	└── O_H                    └── O_rad
//
// Recipe: break *1-*2, form *2-*3, *1 gains a radical, *3 loses one. Every
// call returns a fresh instance, so tests may mutate the arena freely.
func AbstractionFamily(t *testing.T) *generate.Family {
	t.Helper()

	fwd := Recipe(t,
		domain.Action{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
		domain.Action{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*3", Order: 1},
		domain.Action{Kind: domain.ActionGainRadical, Label1: "*1", Order: 1},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*3", Order: 1},
	)
	eng, err := recipe.New("h_abstraction", fwd, recipe.Tables{})
	require.NoError(t, err)

	arena := map[string]*domain.Entry{
		"X_H":   entry(1, "X_H", "", []string{"C_H", "O_H"}, Pat(t, "1 *1 R!H u[0] {2,S}\n2 *2 H u[0] {1,S}")),
		"C_H":   entry(2, "C_H", "X_H", nil, Pat(t, "1 *1 C u[0] {2,S}\n2 *2 H u[0] {1,S}")),
		"O_H":   entry(3, "O_H", "X_H", nil, Pat(t, "1 *1 O u[0] {2,S}\n2 *2 H u[0] {1,S}")),
		"Y_rad": entry(4, "Y_rad", "", []string{"C_rad", "O_rad"}, Pat(t, "1 *3 R u[1]")),
		"C_rad": entry(5, "C_rad", "Y_rad", nil, Pat(t, "1 *3 C u[1]")),
		"O_rad": entry(6, "O_rad", "Y_rad", nil, Pat(t, "1 *3 O u[1]")),
	}

	return &generate.Family{
		Name: "h_abstraction",
		Forward: &domain.Template{
			Reactants: []*domain.Entry{arena["X_H"], arena["Y_rad"]},
			Products:  []*domain.Entry{{Label: "X_rad"}, {Label: "Y_H"}},
		},
		Engine:     eng,
		OwnReverse: true,
		Reversible: true,
		PairRules: []generate.PairRule{
			{Reactant: "*1", Product: "*1"},
			{Reactant: "*3", Product: "*3"},
		},
		Arena: arena,
	}
}

// RecombinationFamily builds a reversible radical-recombination family whose
// forward template repeats the *1 label across both slots, exercising the
// duplicate and restore relabel tables. The reverse template matches a
// carbon-carbon single bond.
func RecombinationFamily(t *testing.T) *generate.Family {
	t.Helper()

	fwd := Recipe(t,
		domain.Action{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*2", Order: 1},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*1", Order: 1},
		domain.Action{Kind: domain.ActionLoseRadical, Label1: "*2", Order: 1},
	)
	tables := recipe.Tables{
		Duplicate: []recipe.DuplicateRule{{Label: "*1", Replacement: "*2"}},
		Restore:   []recipe.RenameRule{{From: "*2", To: "*1"}},
	}
	eng, err := recipe.New("radical_recombination", fwd, tables)
	require.NoError(t, err)

	arena := map[string]*domain.Entry{
		"Y_rad": entry(1, "Y_rad", "", []string{"C_rad"}, Pat(t, "1 *1 R u[1]")),
		"C_rad": entry(2, "C_rad", "Y_rad", nil, Pat(t, "1 *1 C u[1]")),
		"C_C":   entry(3, "C_C", "", nil, Pat(t, "1 *1 C u[0] {2,S}\n2 *2 C u[0] {1,S}")),
	}

	return &generate.Family{
		Name: "radical_recombination",
		Forward: &domain.Template{
			Reactants: []*domain.Entry{arena["Y_rad"], arena["Y_rad"]},
			Products:  []*domain.Entry{{Label: "Y_Y"}},
		},
		Reverse: &domain.Template{
			Reactants: []*domain.Entry{arena["C_C"]},
			Products:  []*domain.Entry{{Label: "Y_rad_1"}, {Label: "Y_rad_2"}},
		},
		Engine:     eng,
		Reversible: true,
		Arena:      arena,
	}
}

// AdsorptionFamily builds a dissociative-adsorption family: a gas-phase
// sigma bond splits across two vacant surface sites. The reverse direction
// requires a gas product, mirroring associative desorption.
func AdsorptionFamily(t *testing.T) *generate.Family {
	t.Helper()

	fwd := Recipe(t,
		domain.Action{Kind: domain.ActionBreakBond, Label1: "*1", Label2: "*2", Order: 1},
		domain.Action{Kind: domain.ActionFormBond, Label1: "*1", Label2: "*3", Order: 1},
		domain.Action{Kind: domain.ActionFormBond, Label1: "*2", Label2: "*4", Order: 1},
	)
	eng, err := recipe.New("dissociative_adsorption", fwd, recipe.Tables{})
	require.NoError(t, err)

	arena := map[string]*domain.Entry{
		"H2":   entry(1, "H2", "", nil, Pat(t, "1 *1 H u[0] {2,S}\n2 *2 H u[0] {1,S}")),
		"X_1":  entry(2, "X_1", "", nil, Pat(t, "1 *3 X u[0]")),
		"X_2":  entry(3, "X_2", "", nil, Pat(t, "1 *4 X u[0]")),
		"HX_1": entry(4, "HX_1", "", nil, Pat(t, "1 *1 H u[0] {2,S}\n2 *3 X u[0] {1,S}")),
		"HX_2": entry(5, "HX_2", "", nil, Pat(t, "1 *2 H u[0] {2,S}\n2 *4 X u[0] {1,S}")),
	}

	return &generate.Family{
		Name: "dissociative_adsorption",
		Forward: &domain.Template{
			Reactants: []*domain.Entry{arena["H2"], arena["X_1"], arena["X_2"]},
			Products:  []*domain.Entry{{Label: "HX_1"}, {Label: "HX_2"}},
		},
		Reverse: &domain.Template{
			Reactants: []*domain.Entry{arena["HX_1"], arena["HX_2"]},
			Products:  []*domain.Entry{{Label: "H2"}, {Label: "X_1"}, {Label: "X_2"}},
		},
		Engine:            eng,
		Reversible:        true,
		Surface:           true,
		RequireGasProduct: true,
		Arena:             arena,
	}
}

// Common adjacency fixtures shared across generator, inducer and estimator
// tests.
const (
	MethaneAdj = `1 C u0 {2,S} {3,S} {4,S} {5,S}
2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}`

	MethylAdj = `1 C u1 {2,S} {3,S} {4,S}
2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}`

	HydroxylAdj = `1 O u1 {2,S}
2 H u0 {1,S}`

	WaterAdj = `1 O u0 {2,S} {3,S}
2 H u0 {1,S}
3 H u0 {1,S}`

	EthaneAdj = `1 C u0 {2,S} {3,S} {4,S} {5,S}
2 C u0 {1,S} {6,S} {7,S} {8,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}
6 H u0 {2,S}
7 H u0 {2,S}
8 H u0 {2,S}`

	HydrogenAdj = `1 H u0 {2,S}
2 H u0 {1,S}`

	VacantSiteAdj = `1 X u0`

	AdsorbedHAdj = `1 H u0 {2,S}
2 X u0 {1,S}`
)
