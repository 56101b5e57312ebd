// Package estimate resolves numeric rate models from a family's rule table.
// A rule directly attached to the requested template combination is returned
// as an exact match; otherwise the estimator climbs the combination lattice
// one parent at a time and averages whatever the first populated level
// holds. FillByAveragingUp pre-fills interior combinations with child
// averages so the climb lands on data quickly.
package estimate

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/veldtlab/grove/pkg/domain"
)

// Defaults for the reverse-fit temperature grid.
const (
	DefaultFitTmin   = 298.0
	DefaultFitTmax   = 2000.0
	DefaultFitPoints = 25
)

// averagedRuleRank marks rule entries synthesized by child averaging.
const averagedRuleRank = 11

// Config carries the estimator's numeric settings. The fit bounds shape the
// temperature grid used for reverse-direction Arrhenius fits.
type Config struct {
	FitTmin   float64 `yaml:"fit_tmin" mapstructure:"fit_tmin"`
	FitTmax   float64 `yaml:"fit_tmax" mapstructure:"fit_tmax"`
	FitPoints int     `yaml:"fit_points" mapstructure:"fit_points"`
}

func (c *Config) applyDefaults() {
	if c.FitTmin == 0 {
		c.FitTmin = DefaultFitTmin
	}
	if c.FitTmax == 0 {
		c.FitTmax = DefaultFitTmax
	}
	if c.FitPoints == 0 {
		c.FitPoints = DefaultFitPoints
	}
}

// RuleSet is one family's rate-rule table: the pattern hierarchy, the root
// template, and rule entries keyed by their joined template label. A key may
// hold several entries (one per training reaction); selection prefers
// non-zero rank, then the lowest (rank, index).
type RuleSet struct {
	Family string
	Arena  map[string]*domain.Entry
	Top    []string
	Rules  map[string][]*domain.Entry
}

// NewRuleSet returns an empty rule table over a family's pattern hierarchy.
// top names the root template, one label per reactant slot.
func NewRuleSet(family string, arena map[string]*domain.Entry, top ...string) *RuleSet {
	return &RuleSet{
		Family: family,
		Arena:  arena,
		Top:    top,
		Rules:  make(map[string][]*domain.Entry),
	}
}

// Add appends a rule entry under its own label.
func (rs *RuleSet) Add(e *domain.Entry) {
	if rs.Rules == nil {
		rs.Rules = make(map[string][]*domain.Entry)
	}
	rs.Rules[e.Label] = append(rs.Rules[e.Label], e)
}

// SeedFromArena lifts the per-node rate models of a grown tree into the rule
// table: a tree node's label doubles as its single-slot template. Entries
// are shared, not copied; Estimate deep-copies data on the way out. Keys
// already present are left alone.
func (rs *RuleSet) SeedFromArena() {
	if rs.Rules == nil {
		rs.Rules = make(map[string][]*domain.Entry, len(rs.Arena))
	}
	for label, e := range rs.Arena {
		if e.Data == nil || e.Data.Kinetics == nil {
			continue
		}
		if len(rs.Rules[label]) == 0 {
			rs.Rules[label] = []*domain.Entry{e}
		}
	}
}

// TemplateLabel joins a template path into its rule-table key, "a;b".
func TemplateLabel(template []string) string {
	return strings.Join(template, ";")
}

func formatTemplate(template []string) string {
	return "[" + TemplateLabel(template) + "]"
}

// Estimator resolves rate models against rule sets. It holds no per-family
// state and is safe for concurrent use.
type Estimator struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the estimator's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an estimator, filling zero config fields from the defaults.
func New(cfg Config, opts ...Option) *Estimator {
	cfg.applyDefaults()
	e := &Estimator{
		cfg:    cfg,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the rate model for a template path, preferring the most
// specific data available. The returned entry is non-nil only when the rule
// table holds the requested combination itself; any climb or averaging
// yields a nil entry. The model is always an independent copy, scaled by the
// reaction path degeneracy. When no combination on any level of the parent
// lattice carries data, the error is a *domain.UndeterminableKineticsError.
func (e *Estimator) Estimate(rs *RuleSet, template []string, degeneracy int) (*domain.RateRule, *domain.Entry, error) {
	if rs == nil || len(template) == 0 {
		return nil, nil, fmt.Errorf("estimate: empty template")
	}
	for _, label := range template {
		if _, ok := rs.Arena[label]; !ok {
			return nil, nil, fmt.Errorf("estimate: template label %q not in family %q", label, rs.Family)
		}
	}
	if degeneracy < 1 {
		degeneracy = 1
	}

	original := formatTemplate(template)
	level := [][]string{template}
	for len(level) > 0 {
		type hit struct {
			rule     *domain.Entry
			template []string
		}
		var hits []hit
		for _, t := range level {
			if r := bestRule(rs.Rules[TemplateLabel(t)]); r != nil {
				hits = append(hits, hit{rule: r, template: t})
			}
		}
		if len(hits) == 0 {
			level = parentLevel(rs, level)
			continue
		}

		var (
			out    *domain.RateRule
			exact  *domain.Entry
			method string
		)
		if len(hits) == 1 {
			out = hits[0].rule.Data.Copy()
			matched := formatTemplate(hits[0].template)
			if matched == original {
				exact = hits[0].rule
				method = "exact"
				appendComment(out, "Exact match found for rate rule "+matched)
			} else {
				method = "template"
				appendComment(out, "Estimated using template "+matched+" for rate rule "+original)
			}
		} else {
			models := make([]*domain.Arrhenius, len(hits))
			names := make([]string, len(hits))
			for i, h := range hits {
				models[i] = h.rule.Data.Kinetics
				names[i] = formatTemplate(h.template)
			}
			out = &domain.RateRule{Kinetics: averageModels(models)}
			method = "average"
			appendComment(out, "Estimated using average of templates "+
				strings.Join(names, " + ")+" for rate rule "+original)
		}

		out.Kinetics.ScaleA(float64(degeneracy))
		if degeneracy > 1 {
			appendComment(out, fmt.Sprintf("Multiplied by reaction path degeneracy %d", degeneracy))
		}
		appendComment(out, "family: "+rs.Family)
		metrics.estimates.WithLabelValues(method).Inc()
		e.logger.Debug("estimated rate rule",
			"family", rs.Family, "template", original, "method", method)
		return out, exact, nil
	}

	return nil, nil, &domain.UndeterminableKineticsError{
		Family:   rs.Family,
		Template: append([]string(nil), template...),
		Reason:   "no rate data reachable from the template",
	}
}

// bestRule picks among rule entries sharing one template key. Any non-zero
// rank present restricts the choice to ranked entries ordered by
// (rank, index); otherwise the lowest index wins. Entries without kinetics
// never qualify.
func bestRule(entries []*domain.Entry) *domain.Entry {
	var usable []*domain.Entry
	for _, e := range entries {
		if e.Data != nil && e.Data.Kinetics != nil {
			usable = append(usable, e)
		}
	}
	switch len(usable) {
	case 0:
		return nil
	case 1:
		return usable[0]
	}
	var ranked []*domain.Entry
	for _, e := range usable {
		if e.Rank > 0 {
			ranked = append(ranked, e)
		}
	}
	if len(ranked) > 0 {
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Rank != ranked[j].Rank {
				return ranked[i].Rank < ranked[j].Rank
			}
			return ranked[i].Index < ranked[j].Index
		})
		return ranked[0]
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].Index < usable[j].Index })
	return usable[0]
}

// parentLevel builds the next lattice level: every combination reachable by
// replacing exactly one slot with its parent, deduplicated, slot order
// preserved.
func parentLevel(rs *RuleSet, level [][]string) [][]string {
	var out [][]string
	seen := make(map[string]bool)
	for _, template := range level {
		for i, label := range template {
			entry := rs.Arena[label]
			if entry == nil || entry.Parent == "" {
				continue
			}
			up := append([]string(nil), template...)
			up[i] = entry.Parent
			key := TemplateLabel(up)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, up)
		}
	}
	return out
}

func appendComment(r *domain.RateRule, text string) {
	if r.Comment != "" {
		r.Comment += "\n"
	}
	r.Comment += text
}
