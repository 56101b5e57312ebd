package induct_test

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldtlab/grove/internal/induct"
	"github.com/veldtlab/grove/internal/testutils"
	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
)

// The merged root of a hydrogen-abstraction family: any heavy atom bonded to
// the transferred hydrogen, next to any radical site.
const abstractionRootAdj = `1 *1 R!H u[0] {2,S}
2 *2 H u[0] {1,S}
3 *3 R u[1]`

const (
	methaneLabeledAdj = `1 *1 C u0 {2,S} {3,S} {4,S} {5,S}
2 *2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}
5 H u0 {1,S}`

	ammoniaLabeledAdj = `1 *1 N u0 {2,S} {3,S} {4,S}
2 *2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}`

	hydroxylRadAdj = `1 *3 O u1 {2,S}
2 H u0 {1,S}`

	methylRadAdj = `1 *3 C u1 {2,S} {3,S} {4,S}
2 H u0 {1,S}
3 H u0 {1,S}
4 H u0 {1,S}`

	hydroxylUnlabeledAdj = `1 O u1 {2,S}
2 H u0 {1,S}`
)

func newInducer(t *testing.T, cfg induct.Config) *induct.Inducer {
	t.Helper()
	in, err := induct.New(cfg, molecule.NewMatcher())
	require.NoError(t, err)
	return in
}

// training merges the given adjacency texts into one labeled structure with
// simple single-parameter kinetics k(T) = a.
func training(t *testing.T, id int64, a float64, texts ...string) *induct.Training {
	t.Helper()
	var merged domain.Structure
	for _, text := range texts {
		m := testutils.Mol(t, text)
		if merged == nil {
			merged = m
		} else {
			merged = merged.Merge(m)
		}
	}
	return &induct.Training{
		ID:        id,
		Label:     fmt.Sprintf("rxn-%d", id),
		Structure: merged,
		Kinetics:  &domain.Arrhenius{A: a, T0: 1, Units: "m^3/(mol*s)"},
		Rank:      3,
	}
}

func abstractionRoot(t *testing.T) *domain.Entry {
	t.Helper()
	return &domain.Entry{Label: "Root", Pattern: testutils.Pat(t, abstractionRootAdj)}
}

func TestGrowSplitsByRadicalElement(t *testing.T) {
	in := newInducer(t, induct.Config{})
	t1 := training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj)
	t2 := training(t, 2, 1e6, methaneLabeledAdj, methylRadAdj)

	res, err := in.Grow(context.Background(), induct.Request{
		Family:   "h_abstraction",
		Root:     abstractionRoot(t),
		Training: []*induct.Training{t1, t2},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "Root", res.Root)

	root := res.Entries["Root"]
	child := res.Entries["Root_3R->C"]
	comp := res.Entries["Root_N-3R->C"]
	require.NotNil(t, root)
	require.NotNil(t, child)
	require.NotNil(t, comp)

	assert.Equal(t, []string{"Root_3R->C", "Root_N-3R->C"}, root.Children)
	assert.Equal(t, "Root", child.Parent)
	assert.Equal(t, "Root", comp.Parent)
	assert.Equal(t, int64(0), root.Index)
	assert.Equal(t, int64(1), child.Index)
	assert.Equal(t, int64(2), comp.Index)

	require.Len(t, res.Matches["Root_3R->C"], 1)
	assert.Same(t, t2, res.Matches["Root_3R->C"][0])
	require.Len(t, res.Matches["Root_N-3R->C"], 1)
	assert.Same(t, t1, res.Matches["Root_N-3R->C"][0])
	assert.Empty(t, res.Matches["Root"])

	// Regularization narrowed the explored abstraction site down to carbon
	// on the leaves, while the root keeps the family's full generality.
	m := molecule.NewMatcher()
	nh3ch3 := training(t, 3, 1e6, ammoniaLabeledAdj, methylRadAdj)
	assert.True(t, m.Matches(child.Pattern, t2.Structure))
	assert.False(t, m.Matches(child.Pattern, nh3ch3.Structure))
	assert.True(t, m.Matches(root.Pattern, nh3ch3.Structure))
}

func TestGrowIdenticalReactionsTerminal(t *testing.T) {
	in := newInducer(t, induct.Config{})
	t1 := training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj)
	t2 := training(t, 2, 2e8, methaneLabeledAdj, hydroxylRadAdj)

	res, err := in.Grow(context.Background(), induct.Request{
		Family:   "h_abstraction",
		Root:     abstractionRoot(t),
		Training: []*induct.Training{t1, t2},
	})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Empty(t, res.Entries["Root"].Children)
	require.Len(t, res.Matches["Root"], 2)
}

func TestGrowUnsplittableReactions(t *testing.T) {
	in := newInducer(t, induct.Config{})
	// Same molecular graphs, but the second reaction never labeled its
	// radical site: no feature dimension can tell them apart.
	t1 := training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj)
	t2 := training(t, 2, 1e6, methaneLabeledAdj, hydroxylUnlabeledAdj)

	_, err := in.Grow(context.Background(), induct.Request{
		Family:   "h_abstraction",
		Root:     abstractionRoot(t),
		Training: []*induct.Training{t1, t2},
	})
	var kerr *domain.KineticsError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "induct", kerr.Op)
	assert.Equal(t, "h_abstraction", kerr.Family)
	assert.Contains(t, kerr.Message, "Root")
	assert.Len(t, kerr.Structures, 2)
}

func fourTrainings(t *testing.T) []*induct.Training {
	t.Helper()
	return []*induct.Training{
		training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj),
		training(t, 2, 1e6, methaneLabeledAdj, methylRadAdj),
		training(t, 3, 3e8, ammoniaLabeledAdj, hydroxylRadAdj),
		training(t, 4, 2e6, ammoniaLabeledAdj, methylRadAdj),
	}
}

func TestGrowDeterminism(t *testing.T) {
	wantLabels := []string{
		"Root",
		"Root_3R->C",
		"Root_3R->C_1R!H->C",
		"Root_3R->C_N-1R!H->C",
		"Root_N-3R->C",
		"Root_N-3R->C_1R!H->C",
		"Root_N-3R->C_N-1R!H->C",
	}
	wantMatches := map[string]int64{
		"Root_3R->C_1R!H->C":     2,
		"Root_3R->C_N-1R!H->C":   4,
		"Root_N-3R->C_1R!H->C":   1,
		"Root_N-3R->C_N-1R!H->C": 3,
	}

	var prev *induct.Result
	for run := 0; run < 2; run++ {
		in := newInducer(t, induct.Config{})
		res, err := in.Grow(context.Background(), induct.Request{
			Family:   "h_abstraction",
			Root:     abstractionRoot(t),
			Training: fourTrainings(t),
		})
		require.NoError(t, err)

		var labels []string
		for label := range res.Entries {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		assert.Equal(t, wantLabels, labels)

		for label, id := range wantMatches {
			require.Len(t, res.Matches[label], 1, "matches at %s", label)
			assert.Equal(t, id, res.Matches[label][0].ID, "matches at %s", label)
		}

		if prev != nil {
			for label, e := range res.Entries {
				pe := prev.Entries[label]
				require.NotNil(t, pe, "entry %s missing from first run", label)
				assert.Equal(t, pe.Index, e.Index, "index of %s", label)
				assert.Equal(t, pe.Parent, e.Parent, "parent of %s", label)
				assert.Equal(t, pe.Children, e.Children, "children of %s", label)
			}
		}
		prev = res
	}
}

func TestGrowParallelMatchesSerial(t *testing.T) {
	serial, err := newInducer(t, induct.Config{}).Grow(context.Background(), induct.Request{
		Family:   "h_abstraction",
		Root:     abstractionRoot(t),
		Training: fourTrainings(t),
	})
	require.NoError(t, err)

	parallel, err := newInducer(t, induct.Config{
		Workers:             2,
		MinSplittableNodes:  1,
		MinReactionsToSpawn: 1,
	}).Grow(context.Background(), induct.Request{
		Family:   "h_abstraction",
		Root:     abstractionRoot(t),
		Training: fourTrainings(t),
	})
	require.NoError(t, err)

	require.Len(t, parallel.Entries, len(serial.Entries))
	for label, se := range serial.Entries {
		pe := parallel.Entries[label]
		require.NotNil(t, pe, "entry %s missing from parallel run", label)
		assert.Equal(t, se.Parent, pe.Parent, "parent of %s", label)
		assert.ElementsMatch(t, se.Children, pe.Children, "children of %s", label)
	}
	for label, slist := range serial.Matches {
		plist := parallel.Matches[label]
		require.Len(t, plist, len(slist), "matches at %s", label)
		var sids, pids []int64
		for i := range slist {
			sids = append(sids, slist[i].ID)
			pids = append(pids, plist[i].ID)
		}
		assert.ElementsMatch(t, sids, pids, "matches at %s", label)
	}
}

func TestGrowRequestErrors(t *testing.T) {
	in := newInducer(t, induct.Config{})
	ok := func() induct.Request {
		return induct.Request{
			Family:   "h_abstraction",
			Root:     abstractionRoot(t),
			Training: []*induct.Training{training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj)},
		}
	}

	t.Run("no root", func(t *testing.T) {
		req := ok()
		req.Root = nil
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "without a root pattern")
	})
	t.Run("concrete root", func(t *testing.T) {
		req := ok()
		req.Root = &domain.Entry{Label: "Root", Pattern: testutils.Mol(t, testutils.MethaneAdj)}
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "cannot enumerate extensions")
	})
	t.Run("no training", func(t *testing.T) {
		req := ok()
		req.Training = nil
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "without training reactions")
	})
	t.Run("missing kinetics", func(t *testing.T) {
		req := ok()
		req.Training[0].Kinetics = nil
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "without kinetics")
	})
	t.Run("bad prefactor", func(t *testing.T) {
		req := ok()
		req.Training[0].Kinetics.A = 0
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "non-positive")
	})
	t.Run("training outside root", func(t *testing.T) {
		req := ok()
		req.Training = append(req.Training, training(t, 2, 1e8, testutils.HydrogenAdj))
		_, err := in.Grow(context.Background(), req)
		assert.ErrorContains(t, err, "does not match the root pattern")
	})
	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := in.Grow(ctx, ok())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewInducer(t *testing.T) {
	_, err := induct.New(induct.Config{}, nil)
	assert.ErrorContains(t, err, "nil matcher")
}

// ruleResult hand-builds a two-leaf tree with one training reaction per
// leaf, for exercising rule fitting and cross-validation in isolation.
func ruleResult(t *testing.T) (*induct.Result, *induct.Training, *induct.Training) {
	t.Helper()
	t1 := training(t, 1, 1e8, methaneLabeledAdj, hydroxylRadAdj)
	t2 := training(t, 2, 1e6, methaneLabeledAdj, methylRadAdj)
	res := &induct.Result{
		Family: "h_abstraction",
		Root:   "Root",
		Entries: map[string]*domain.Entry{
			"Root":   {Label: "Root", Children: []string{"Root_A", "Root_B"}},
			"Root_A": {Label: "Root_A", Parent: "Root"},
			"Root_B": {Label: "Root_B", Parent: "Root"},
		},
		Matches: map[string][]*induct.Training{
			"Root_A": {t1},
			"Root_B": {t2},
		},
	}
	return res, t1, t2
}

func TestFitRules(t *testing.T) {
	res, _, _ := ruleResult(t)
	in := newInducer(t, induct.Config{})
	require.NoError(t, in.FitRules(res))

	leaf := res.Entries["Root_A"]
	require.NotNil(t, leaf.Data)
	assert.Equal(t, 11, leaf.Rank)
	assert.InEpsilon(t, 1e8, leaf.Data.Kinetics.A, 1e-9)
	assert.Contains(t, leaf.Data.Comment, "fitted to 1 training reactions at node Root_A")

	unc := leaf.Data.Uncertainty
	require.NotNil(t, unc)
	single := math.Log(1e5) / 2
	assert.Zero(t, unc.Mu)
	assert.InDelta(t, single*single, unc.Var, 1e-9)
	assert.Equal(t, 1, unc.N)
	assert.InDelta(t, 1000.0, unc.Tref, 1e-9)
	assert.Equal(t, "Root_A", unc.Correlation)

	root := res.Entries["Root"]
	require.NotNil(t, root.Data)
	assert.InEpsilon(t, 1e7, root.Data.Kinetics.A, 1e-9)

	runc := root.Data.Uncertainty
	require.NotNil(t, runc)
	d := math.Log(1e6 / 1e8)
	assert.InDelta(t, 0, runc.Mu, 1e-12)
	assert.InDelta(t, 2*d*d, runc.Var, 1e-9)
	assert.Equal(t, 2, runc.N)
	assert.Contains(t, root.Data.Comment, "fitted to 2 training reactions at node Root")
}

func TestCrossValidate(t *testing.T) {
	res, t1, t2 := ruleResult(t)
	in := newInducer(t, induct.Config{})

	errs, err := in.CrossValidate(res, 2, 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.InDelta(t, math.Log(1e6/1e8), errs[t1.ID], 1e-9)
	assert.InDelta(t, math.Log(1e8/1e6), errs[t2.ID], 1e-9)

	_, err = in.CrossValidate(res, 1, 0)
	assert.ErrorContains(t, err, "at least 2 folds")
	_, err = in.CrossValidate(res, 3, 0)
	assert.ErrorContains(t, err, "cannot fill 3 folds")
	_, err = in.CrossValidate(res, 2, -1)
	assert.ErrorContains(t, err, "negative climb count")
}
