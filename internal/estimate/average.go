package estimate

import (
	"fmt"
	"math"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// FillByAveragingUp fills gaps in the rule table by averaging child
// combinations, recursively from the root template down. A combination
// already holding a ranked rule is kept as is; rank-zero rules are
// distrusted and recomputed from children when any child data exists.
// Synthetic averages carry rank 11, index 0 and an
// "Average of [a + b + ...]" provenance.
func (e *Estimator) FillByAveragingUp(rs *RuleSet) error {
	if rs == nil || len(rs.Top) == 0 {
		return fmt.Errorf("estimate: rule set without a root template")
	}
	for _, label := range rs.Top {
		if _, ok := rs.Arena[label]; !ok {
			return fmt.Errorf("estimate: root template label %q not in family %q", label, rs.Family)
		}
	}
	memo := make(map[string]*domain.RateRule)
	e.averageUp(rs, rs.Top, memo)
	e.logger.Debug("filled rule table by averaging",
		"family", rs.Family, "rules", len(rs.Rules))
	return nil
}

// averageUp returns the combination's rate model, materializing child
// averages into the table as it recurses. nil means no data anywhere below.
func (e *Estimator) averageUp(rs *RuleSet, template []string, memo map[string]*domain.RateRule) *domain.RateRule {
	key := TemplateLabel(template)
	if data, done := memo[key]; done {
		return data
	}

	if r := bestRule(rs.Rules[key]); r != nil && r.Rank > 0 {
		memo[key] = r.Data
		return r.Data
	}

	// Candidates per slot: its children when it has any, else itself.
	slots := make([][]string, len(template))
	for i, label := range template {
		entry := rs.Arena[label]
		if entry != nil && len(entry.Children) > 0 {
			slots[i] = entry.Children
		} else {
			slots[i] = []string{label}
		}
	}

	var (
		models []*domain.Arrhenius
		names  []string
	)
	for _, child := range combinations(slots) {
		ck := TemplateLabel(child)
		if ck == key {
			continue
		}
		data, done := memo[ck]
		if !done {
			data = e.averageUp(rs, child, memo)
		}
		if data != nil && data.Kinetics != nil {
			models = append(models, data.Kinetics)
			names = append(names, ck)
		}
	}

	if len(models) == 0 {
		memo[key] = nil
		return nil
	}

	comment := "Average of [" + strings.Join(names, " + ") + "]"
	avg := &domain.RateRule{Kinetics: averageModels(models), Comment: comment}
	rs.Rules[key] = []*domain.Entry{{
		Label:     key,
		Data:      avg,
		Rank:      averagedRuleRank,
		ShortDesc: comment,
	}}
	memo[key] = avg
	metrics.rulesFilled.Inc()
	return avg
}

// combinations expands per-slot candidate lists into every template
// combination, later slots varying fastest.
func combinations(slots [][]string) [][]string {
	out := [][]string{nil}
	for _, options := range slots {
		next := make([][]string, 0, len(out)*len(options))
		for _, prefix := range out {
			for _, opt := range options {
				comb := make([]string, len(prefix)+1)
				copy(comb, prefix)
				comb[len(prefix)] = opt
				next = append(next, comb)
			}
		}
		out = next
	}
	return out
}

// averageModels combines rate models in log space: geometric mean of A,
// arithmetic means of n and Ea. A is renormalized to T0 = 1 first, so the
// average's log-rate equals the mean of the inputs' log-rates at every
// temperature.
func averageModels(models []*domain.Arrhenius) *domain.Arrhenius {
	var sumLnA, sumN, sumEa float64
	for _, k := range models {
		a := k.A
		if k.T0 != 0 && k.T0 != 1 {
			a /= math.Pow(k.T0, k.N)
		}
		sumLnA += math.Log(a)
		sumN += k.N
		sumEa += k.Ea
	}
	n := float64(len(models))
	return &domain.Arrhenius{
		A:     math.Exp(sumLnA / n),
		N:     sumN / n,
		Ea:    sumEa / n,
		T0:    1,
		Units: models[0].Units,
	}
}
