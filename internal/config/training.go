package config

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/veldtlab/grove/internal/estimate"
	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/induct"
	"github.com/veldtlab/grove/pkg/domain"
)

// DefaultTrainingRank grades training reactions that carry no explicit rank.
const DefaultTrainingRank = 3

// TrainingReaction is one measured reaction from a family's training block.
// Species structures keep their site labels; they pin the template
// assignment during ingestion.
type TrainingReaction struct {
	Index      int64
	Label      string
	Degeneracy int
	Rank       int
	ShortDesc  string
	Reactants  []*domain.Species
	Products   []*domain.Species
	Kinetics   *domain.Arrhenius
}

// classified is one training reaction resolved into the direction the
// family's kinetics are defined: its template, the forward-direction
// kinetics and the path degeneracy of that direction.
type classified struct {
	tr         *TrainingReaction
	template   []string
	kinetics   *domain.Arrhenius
	degeneracy int
	species    []*domain.Species
	reverse    bool
}

// Train folds the loaded training reactions into the family's rule table.
// Reactions fitting the forward template become rules directly; reactions
// that only fit with reactants and products swapped are reversed across the
// equilibrium first, which needs a thermo source.
func (l *Loader) Train(ctx context.Context, loaded *Loaded) error {
	f := loaded.Family
	if f.Rules == nil {
		f.Rules = make(map[string][]*domain.Entry)
	}
	resolved, err := l.classify(ctx, f, loaded.Training)
	if err != nil {
		return err
	}
	next := maxRuleIndex(f.Rules) + 1
	forward, reverse := 0, 0
	for _, c := range resolved {
		l.addTrainingRule(f, c, next)
		next++
		if c.reverse {
			reverse++
			metrics.trainingRules.WithLabelValues("reverse").Inc()
		} else {
			forward++
			metrics.trainingRules.WithLabelValues("forward").Inc()
		}
	}
	l.logger.Info("training ingested",
		"family", f.Name,
		"forward", forward,
		"reverse", reverse)
	return nil
}

// classify assigns each training reaction to the family's forward template.
// Reactions that do not fit are retried from the product side: their
// kinetics are reversed through the equilibrium constant and the path
// degeneracy is read off the regenerated reaction.
func (l *Loader) classify(ctx context.Context, f *generate.Family, training []TrainingReaction) ([]classified, error) {
	out := make([]classified, 0, len(training))
	var flipped []*TrainingReaction
	for i := range training {
		tr := &training[i]
		template, err := f.TemplateFor(l.matcher, canonicalStructures(tr.Reactants), true)
		if err != nil {
			var undet *domain.UndeterminableKineticsError
			if errors.As(err, &undet) {
				flipped = append(flipped, tr)
				continue
			}
			return nil, err
		}
		out = append(out, classified{
			tr:         tr,
			template:   template,
			kinetics:   tr.Kinetics,
			degeneracy: tr.Degeneracy,
			species:    tr.Reactants,
		})
	}
	if len(flipped) == 0 {
		return out, nil
	}

	if l.thermo == nil {
		return nil, fmt.Errorf("config: training reaction %d of family %q only fits in reverse and no thermo source is configured",
			flipped[0].Index, f.Name)
	}
	gen, err := generate.New(f, l.matcher, generate.WithLogger(l.logger))
	if err != nil {
		return nil, err
	}
	for _, tr := range flipped {
		template, err := f.TemplateFor(l.matcher, canonicalStructures(tr.Products), true)
		if err != nil {
			return nil, fmt.Errorf("config: training reaction %d of family %q fits neither direction: %w",
				tr.Index, f.Name, err)
		}
		measured := &domain.Reaction{
			Reactants: tr.Reactants,
			Products:  tr.Products,
			Kinetics:  &domain.RateRule{Kinetics: tr.Kinetics},
			Family:    f.Name,
		}
		rev, err := l.estimator.ReverseRate(ctx, measured, l.thermo)
		if err != nil {
			return nil, fmt.Errorf("config: reversing training reaction %d of family %q: %w", tr.Index, f.Name, err)
		}
		degeneracy, err := regeneratedDegeneracy(ctx, gen, f, tr, template)
		if err != nil {
			return nil, err
		}
		out = append(out, classified{
			tr:         tr,
			template:   template,
			kinetics:   rev,
			degeneracy: degeneracy,
			species:    tr.Products,
			reverse:    true,
		})
	}
	return out, nil
}

// regeneratedDegeneracy regenerates the reaction in the direction kinetics
// are defined and reads the path degeneracy off the one reaction matching
// the template.
func regeneratedDegeneracy(ctx context.Context, gen *generate.Generator, f *generate.Family, tr *TrainingReaction, template []string) (int, error) {
	rxns, err := gen.Generate(ctx, generate.Request{Reactants: tr.Products, Products: tr.Reactants})
	if err != nil {
		return 0, fmt.Errorf("config: regenerating training reaction %d of family %q: %w", tr.Index, f.Name, err)
	}
	var hits []*domain.Reaction
	for _, r := range rxns {
		if r.IsForward && slices.Equal(r.Template, template) {
			hits = append(hits, r)
		}
	}
	if len(hits) != 1 {
		return 0, &domain.KineticsError{
			Op:     "config.train",
			Family: f.Name,
			Message: fmt.Sprintf("training reaction %d: expected one regenerated reaction for template %s, got %d",
				tr.Index, estimate.TemplateLabel(template), len(hits)),
		}
	}
	return hits[0].Degeneracy, nil
}

// addTrainingRule writes one resolved training reaction as a rate rule. The
// stored kinetics are renormalized to T0 = 1 K and divided down to a single
// reaction path.
func (l *Loader) addTrainingRule(f *generate.Family, c classified, index int64) {
	data := c.kinetics.Copy()
	data.ChangeT0(1)
	if c.degeneracy > 1 {
		data.ScaleA(1 / float64(c.degeneracy))
	}
	key := estimate.TemplateLabel(c.template)
	short := fmt.Sprintf("Rate rule generated from training reaction %d.", c.tr.Index)
	if c.tr.ShortDesc != "" {
		short += " " + c.tr.ShortDesc
	}
	f.Rules[key] = append(f.Rules[key], &domain.Entry{
		Index:     index,
		Label:     key,
		Rank:      c.tr.Rank,
		ShortDesc: short,
		LongDesc:  c.tr.Label,
		Data: &domain.RateRule{
			Kinetics: data,
			Comment:  fmt.Sprintf("From training reaction %d used for %s", c.tr.Index, key),
		},
	})
	l.logger.Debug("training rule added",
		"family", f.Name,
		"template", key,
		"training", c.tr.Index,
		"reverse", c.reverse)
}

// InductionRequest prepares tree growth for a family: the forward slot
// patterns merged into a single root entry and one merged, labeled reactant
// structure per training reaction, carrying per-path forward kinetics.
func (l *Loader) InductionRequest(ctx context.Context, loaded *Loaded) (*induct.Request, error) {
	f := loaded.Family
	var root domain.Structure
	for _, slot := range f.Forward.Reactants {
		if slot.IsLogic() || slot.Pattern == nil {
			return nil, fmt.Errorf("config: family %q: slot %q has no concrete pattern to grow a tree from",
				f.Name, slot.Label)
		}
		if root == nil {
			root = slot.Pattern.Copy()
		} else {
			root = root.Merge(slot.Pattern)
		}
	}
	if root == nil {
		return nil, fmt.Errorf("config: family %q has no forward slots", f.Name)
	}

	resolved, err := l.classify(ctx, f, loaded.Training)
	if err != nil {
		return nil, err
	}
	training := make([]*induct.Training, 0, len(resolved))
	for _, c := range resolved {
		var merged domain.Structure
		for _, sp := range c.species {
			s := sp.Canonical()
			if s == nil {
				return nil, fmt.Errorf("config: training reaction %d of family %q: species without structures",
					c.tr.Index, f.Name)
			}
			if merged == nil {
				merged = s.Copy()
			} else {
				merged = merged.Merge(s)
			}
		}
		kin := c.kinetics.Copy()
		kin.ChangeT0(1)
		if c.degeneracy > 1 {
			kin.ScaleA(1 / float64(c.degeneracy))
		}
		training = append(training, &induct.Training{
			ID:        c.tr.Index,
			Label:     c.tr.Label,
			Structure: merged,
			Kinetics:  kin,
			Rank:      c.tr.Rank,
		})
	}
	return &induct.Request{
		Family:   f.Name,
		Root:     &domain.Entry{Label: "Root", Pattern: root},
		Training: training,
	}, nil
}

func canonicalStructures(species []*domain.Species) []domain.Structure {
	out := make([]domain.Structure, len(species))
	for i, sp := range species {
		out[i] = sp.Canonical()
	}
	return out
}

func maxRuleIndex(rules map[string][]*domain.Entry) int64 {
	var max int64
	for _, entries := range rules {
		for _, e := range entries {
			if e.Index > max {
				max = e.Index
			}
		}
	}
	return max
}
