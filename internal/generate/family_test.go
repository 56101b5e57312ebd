package generate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/testutils"
	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

func TestFamilyValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*generate.Family)
		wantErr string
	}{
		{
			name:   "well-formed family",
			mutate: func(f *generate.Family) {},
		},
		{
			name:    "missing name",
			mutate:  func(f *generate.Family) { f.Name = "" },
			wantErr: "without a name",
		},
		{
			name:    "missing engine",
			mutate:  func(f *generate.Family) { f.Engine = nil },
			wantErr: "no recipe engine",
		},
		{
			name:    "missing forward template",
			mutate:  func(f *generate.Family) { f.Forward = nil },
			wantErr: "no forward template",
		},
		{
			name: "too many slots",
			mutate: func(f *generate.Family) {
				e := f.Forward.Reactants[0]
				f.Forward.Reactants = []*domain.Entry{e, e, e, e}
			},
			wantErr: "at most 3",
		},
		{
			name:    "reversible without reverse template",
			mutate:  func(f *generate.Family) { f.OwnReverse = false },
			wantErr: "no reverse template",
		},
		{
			name:    "slot missing from arena",
			mutate:  func(f *generate.Family) { delete(f.Arena, "Y_rad") },
			wantErr: "missing from arena",
		},
		{
			name: "arena key does not match entry label",
			mutate: func(f *generate.Family) {
				e := f.Arena["C_rad"]
				delete(f.Arena, "C_rad")
				f.Arena["Z_rad"] = e
				f.Arena["Y_rad"].Children = []string{"O_rad"}
			},
			wantErr: "arena key",
		},
		{
			name: "entry with unknown parent",
			mutate: func(f *generate.Family) {
				f.Arena["stray"] = &domain.Entry{Label: "stray", Parent: "nope"}
			},
			wantErr: "missing parent",
		},
		{
			name: "entry with unknown child",
			mutate: func(f *generate.Family) {
				f.Arena["X_H"].Children = append(f.Arena["X_H"].Children, "ghost")
			},
			wantErr: "missing child",
		},
		{
			name: "child whose parent points elsewhere",
			mutate: func(f *generate.Family) {
				f.Arena["C_H"].Parent = "Y_rad"
			},
			wantErr: "whose parent is",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			family := testutils.AbstractionFamily(t)
			tc.mutate(family)
			err := family.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestDescendTree(t *testing.T) {
	m := molecule.NewMatcher()
	family := testutils.AbstractionFamily(t)

	xh, ok := family.Entry("X_H")
	require.True(t, ok)
	yRad, ok := family.Entry("Y_rad")
	require.True(t, ok)

	t.Run("descends to the most specific pattern", func(t *testing.T) {
		methane := testutils.Mol(t, testutils.MethaneAdj)
		assert.Equal(t, "C_H", family.DescendTree(m, xh, methane).Label)

		water := testutils.Mol(t, testutils.WaterAdj)
		assert.Equal(t, "O_H", family.DescendTree(m, xh, water).Label)

		hydroxyl := testutils.Mol(t, testutils.HydroxylAdj)
		assert.Equal(t, "O_rad", family.DescendTree(m, yRad, hydroxyl).Label)
	})

	t.Run("stops where no child matches", func(t *testing.T) {
		ammonia := testutils.Mol(t, "1 N u0 {2,S} {3,S} {4,S}\n2 H u0 {1,S}\n3 H u0 {1,S}\n4 H u0 {1,S}")
		assert.Equal(t, "X_H", family.DescendTree(m, xh, ammonia).Label)
	})

	t.Run("walks through logic nodes", func(t *testing.T) {
		f := testutils.AbstractionFamily(t)
		f.Arena["YC_or"] = &domain.Entry{
			Index:    7,
			Label:    "YC_or",
			Parent:   "Y_rad",
			Children: []string{"C_rad", "O_rad"},
			Logic:    &domain.LogicOr{Components: []string{"C_rad", "O_rad"}},
		}
		f.Arena["Y_rad"].Children = []string{"YC_or"}
		f.Arena["C_rad"].Parent = "YC_or"
		f.Arena["O_rad"].Parent = "YC_or"
		require.NoError(t, f.Validate())

		root, ok := f.Entry("Y_rad")
		require.True(t, ok)
		hydroxyl := testutils.Mol(t, testutils.HydroxylAdj)
		assert.Equal(t, "O_rad", f.DescendTree(m, root, hydroxyl).Label)
	})
}

func TestTemplateFor(t *testing.T) {
	m := molecule.NewMatcher()
	family := testutils.AbstractionFamily(t)

	methane := testutils.Mol(t, `1 *1 C u0 {2,S} {3,S} {4,S} {5,S}
2 *2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}`)
	hydroxyl := testutils.Mol(t, "1 *3 O u1 {2,S}\n2 H u0 {1,S}")

	t.Run("descends every slot", func(t *testing.T) {
		template, err := family.TemplateFor(m, []domain.Structure{methane, hydroxyl}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"C_H", "O_rad"}, template)
	})

	t.Run("assignment order does not matter", func(t *testing.T) {
		template, err := family.TemplateFor(m, []domain.Structure{hydroxyl, methane}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{"C_H", "O_rad"}, template)
	})

	t.Run("rejects structures that fit no slot", func(t *testing.T) {
		_, err := family.TemplateFor(m, []domain.Structure{methane, methane}, true)
		var undet *domain.UndeterminableKineticsError
		require.ErrorAs(t, err, &undet)
		assert.Equal(t, "h_abstraction", undet.Family)
	})

	t.Run("rejects a slot count mismatch", func(t *testing.T) {
		_, err := family.TemplateFor(m, []domain.Structure{methane}, true)
		var undet *domain.UndeterminableKineticsError
		require.ErrorAs(t, err, &undet)
		assert.Contains(t, undet.Reason, "template slots")
	})
}

// logicSlotFamily rebuilds the abstraction family with the radical slot
// turned into an OR combinator over its two children.
func logicSlotFamily(t *testing.T, components ...string) *generate.Family {
	t.Helper()
	family := testutils.AbstractionFamily(t)
	family.Arena["Y_rad"] = &domain.Entry{
		Index:    4,
		Label:    "Y_rad",
		Children: []string{"C_rad", "O_rad"},
		Logic:    &domain.LogicOr{Components: components},
	}
	family.Forward.Reactants[1] = family.Arena["Y_rad"]
	return family
}

func TestGenerateLogicSlot(t *testing.T) {
	m := molecule.NewMatcher()
	methane := domain.NewSpecies("CH4", testutils.Mol(t, testutils.MethaneAdj))
	hydroxyl := domain.NewSpecies("OH", testutils.Mol(t, testutils.HydroxylAdj))

	t.Run("a combinator slot matches through its components", func(t *testing.T) {
		gen, err := generate.New(logicSlotFamily(t, "C_rad", "O_rad"), m)
		require.NoError(t, err)

		rxns, err := gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methane, hydroxyl},
		})
		require.NoError(t, err)
		require.Len(t, rxns, 1)
		assert.Equal(t, 4, rxns[0].Degeneracy)
		assert.Equal(t, []string{"C_H", "O_rad"}, rxns[0].Template)
	})

	t.Run("a combinator naming an unknown entry fails generation", func(t *testing.T) {
		gen, err := generate.New(logicSlotFamily(t, "C_rad", "ghost"), m)
		require.NoError(t, err)

		_, err = gen.Generate(context.Background(), generate.Request{
			Reactants: []*domain.Species{methane, hydroxyl},
		})
		assert.ErrorContains(t, err, "unknown entry")
	})
}
