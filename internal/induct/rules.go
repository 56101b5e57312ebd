package induct

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/veldtlab/grove/pkg/domain"
)

// autoRuleRank is the rank recorded on every fitted rule entry.
const autoRuleRank = 11

// rankAccuracyJmol maps a training reaction's rank to the expected accuracy
// of its rate data as an activation-energy spread in J/mol. Rank 1 is exact
// data; unknown ranks fall back to 10 kcal/mol.
var rankAccuracyJmol = map[int]float64{
	0:  4.0 * 4184,
	1:  0.0,
	2:  0.5 * 4184,
	3:  1.0 * 4184,
	4:  1.5 * 4184,
	5:  2.5 * 4184,
	6:  3.5 * 4184,
	7:  4.0 * 4184,
	8:  5.0 * 4184,
	9:  5.5 * 4184,
	10: 10.0 * 4184,
	11: 15.0 * 4184,
}

func rankAccuracy(rank int) float64 {
	if acc, ok := rankAccuracyJmol[rank]; ok {
		return acc
	}
	return 10.0 * 4184
}

// FitRules fits a rate rule onto every entry of a grown tree that has
// matching reactions anywhere in its subtree. Fitted entries carry rank 11.
func (in *Inducer) FitRules(res *Result) error {
	inclusive := inclusiveMatches(res.Root, res.Entries, res.Matches)

	labels := make([]string, 0, len(res.Entries))
	for label := range res.Entries {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		rxns := inclusive[label]
		if len(rxns) == 0 {
			continue
		}
		rule, err := in.makeRule(label, rxns)
		if err != nil {
			return err
		}
		e := res.Entries[label]
		e.Data = rule
		e.Rank = autoRuleRank
		metrics.rulesFitted.Inc()
	}
	return nil
}

// makeRule fits kinetics to the reactions matched at one node. A single
// reaction gets an uncertainty bounded by FmaxSingle; several reactions get
// a rank-weighted mean and variance of the leave-one-out deviations at Tref.
func (in *Inducer) makeRule(label string, rxns []*Training) (*domain.RateRule, error) {
	Tref := in.cfg.Tref
	kin := averageKinetics(rxns)

	var unc *domain.RateUncertainty
	if len(rxns) == 1 {
		v := math.Log(in.cfg.FmaxSingle) / 2
		unc = &domain.RateUncertainty{
			Mu:          0,
			Var:         v * v,
			N:           1,
			Tref:        Tref,
			Correlation: label,
		}
	} else {
		n := len(rxns)
		dln := make([]float64, n)
		loo := make([]*Training, 0, n-1)
		for i, tr := range rxns {
			loo = loo[:0]
			loo = append(loo, rxns[:i]...)
			loo = append(loo, rxns[i+1:]...)
			refit := averageKinetics(loo)
			dln[i] = math.Log(refit.Rate(Tref) / tr.Kinetics.Rate(Tref))
		}
		weights := make([]float64, n)
		var v1, v2, muNum float64
		for i, tr := range rxns {
			va := rankAccuracy(tr.Rank) / (2 * domain.GasConstant * Tref)
			if va <= 0 {
				// Exact data still gets a finite weight.
				va = rankAccuracy(2) / (2 * domain.GasConstant * Tref)
			}
			w := 1 / (va * va)
			weights[i] = w
			v1 += w
			v2 += w * w
			muNum += w * dln[i]
		}
		mu := muNum / v1
		var ss float64
		for i := range dln {
			d := dln[i] - mu
			ss += weights[i] * d * d
		}
		unc = &domain.RateUncertainty{
			Mu:          mu,
			Var:         ss / (v1 - v2/v1),
			N:           n,
			Tref:        Tref,
			Correlation: label,
		}
	}

	return &domain.RateRule{
		Kinetics:    kin,
		Uncertainty: unc,
		Comment: fmt.Sprintf("Rate rule fitted to %d training reactions at node %s\n"+
			"Total Standard Deviation in ln(k): %g", len(rxns), label,
			unc.ExpectedLogUncertainty()/0.398),
	}, nil
}

// averageKinetics combines rate models in log space: geometric mean of A,
// arithmetic means of n and Ea. A is renormalized to T0 = 1 first.
func averageKinetics(rxns []*Training) *domain.Arrhenius {
	var sumLnA, sumN, sumEa float64
	for _, tr := range rxns {
		k := tr.Kinetics
		a := k.A
		if k.T0 != 0 && k.T0 != 1 {
			a /= math.Pow(k.T0, k.N)
		}
		sumLnA += math.Log(a)
		sumN += k.N
		sumEa += k.Ea
	}
	n := float64(len(rxns))
	return &domain.Arrhenius{
		A:     math.Exp(sumLnA / n),
		N:     sumN / n,
		Ea:    sumEa / n,
		T0:    1,
		Units: rxns[0].Kinetics.Units,
	}
}

// CrossValidate estimates the tree's out-of-sample error: the training
// reactions are shuffled into folds, and each held-out reaction is estimated
// from the deepest ancestor of its node that retains at least two other
// reactions, climbing iters extra levels first. The result maps training IDs
// to ln(k_estimate/k_training) at Tref.
func (in *Inducer) CrossValidate(res *Result, folds, iters int) (map[int64]float64, error) {
	if folds < 2 {
		return nil, fmt.Errorf("induct: cross-validation needs at least 2 folds, got %d", folds)
	}
	if iters < 0 {
		return nil, fmt.Errorf("induct: negative climb count %d", iters)
	}

	type placed struct {
		tr    *Training
		label string
	}
	var all []placed
	for label, list := range res.Matches {
		for _, tr := range list {
			all = append(all, placed{tr: tr, label: label})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].tr.ID != all[j].tr.ID {
			return all[i].tr.ID < all[j].tr.ID
		}
		return all[i].label < all[j].label
	})
	if len(all) < folds {
		return nil, fmt.Errorf("induct: %d reactions cannot fill %d folds", len(all), folds)
	}

	inclusive := inclusiveMatches(res.Root, res.Entries, res.Matches)
	rng := rand.New(rand.NewSource(in.cfg.Seed))
	perm := rng.Perm(len(all))

	errs := make(map[int64]float64, len(all))
	start := 0
	for f := 0; f < folds; f++ {
		size := len(all) / folds
		if f < len(all)%folds {
			size++
		}
		test := map[*Training]bool{}
		for _, ind := range perm[start : start+size] {
			test[all[ind].tr] = true
		}

		for _, ind := range perm[start : start+size] {
			p := all[ind]
			label := p.label
			for {
				e := res.Entries[label]
				if e == nil || e.Parent == "" {
					break
				}
				if countNonTest(inclusive[label], test) > 1 {
					break
				}
				label = e.Parent
			}
			for k := 0; k < iters; k++ {
				e := res.Entries[label]
				if e == nil || e.Parent == "" {
					break
				}
				label = e.Parent
			}

			rest := make([]*Training, 0, len(inclusive[label]))
			for _, tr := range inclusive[label] {
				if !test[tr] {
					rest = append(rest, tr)
				}
			}
			if len(rest) == 0 {
				return nil, &domain.UndeterminableKineticsError{
					Family:   res.Family,
					Template: []string{label},
					Reason:   "no training reactions left outside the held-out fold",
				}
			}
			fit := averageKinetics(rest)
			errs[p.tr.ID] = math.Log(fit.Rate(in.cfg.Tref) / p.tr.Kinetics.Rate(in.cfg.Tref))
		}
		start += size
	}
	return errs, nil
}

func countNonTest(rxns []*Training, test map[*Training]bool) int {
	n := 0
	for _, tr := range rxns {
		if !test[tr] {
			n++
		}
	}
	return n
}
