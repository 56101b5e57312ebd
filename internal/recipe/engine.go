// Package recipe executes a family's ordered graph-edit actions against
// labeled reactant structures. Apply is direction-aware: the forward recipe
// is the family definition's action list, the reverse its action-wise
// inverse. Inputs are merged into one working structure before editing and
// split into candidate products afterwards; relabel tables bridge the
// families whose site labels only disambiguate correctly in one direction.
package recipe

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/veldtlab/grove/pkg/domain"
)

// DuplicateRule renames the second occurrence of Label to Replacement before
// forward execution. Families whose template repeats a label (both slots of
// a recombination carry *1) need it so actions can address distinct sites.
type DuplicateRule struct {
	Label       string `json:"label" yaml:"label" mapstructure:"label"`
	Replacement string `json:"replacement" yaml:"replacement" mapstructure:"replacement"`
}

// RenameRule renames every site labeled From to To. Rows in one table apply
// simultaneously, so a table may swap a pair of labels.
type RenameRule struct {
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to" yaml:"to" mapstructure:"to"`
}

// Tables is the per-family relabel configuration. It is reviewable data, not
// inferred logic; the zero value applies no renames.
type Tables struct {
	// Duplicate applies before forward execution.
	Duplicate []DuplicateRule `json:"duplicate,omitempty" yaml:"duplicate,omitempty" mapstructure:"duplicate"`
	// Restore applies after reverse execution, putting the forward label set
	// back in place.
	Restore []RenameRule `json:"restore,omitempty" yaml:"restore,omitempty" mapstructure:"restore"`
	// Product applies to each split product so that self-reverse families
	// emit products carrying reactant-style labels for forbidden checks and
	// reverse matching.
	Product []RenameRule `json:"product,omitempty" yaml:"product,omitempty" mapstructure:"product"`
}

// Validate rejects malformed tables at load time.
func (t Tables) Validate() error {
	for _, row := range t.Duplicate {
		if !domain.ValidSiteLabel(row.Label) || !domain.ValidSiteLabel(row.Replacement) {
			return fmt.Errorf("duplicate table row %q -> %q: labels must be *n", row.Label, row.Replacement)
		}
		if row.Label == row.Replacement {
			return fmt.Errorf("duplicate table row %q: replacement must differ from label", row.Label)
		}
	}
	if err := validateRenames("restore", t.Restore); err != nil {
		return err
	}
	return validateRenames("product", t.Product)
}

func validateRenames(table string, rows []RenameRule) error {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if !domain.ValidSiteLabel(row.From) || !domain.ValidSiteLabel(row.To) {
			return fmt.Errorf("%s table row %q -> %q: labels must be *n", table, row.From, row.To)
		}
		if row.From == row.To {
			return fmt.Errorf("%s table row %q: rename to itself", table, row.From)
		}
		if seen[row.From] {
			return fmt.Errorf("%s table renames %q twice", table, row.From)
		}
		seen[row.From] = true
	}
	return nil
}

// Engine applies one family's recipe in either direction.
type Engine struct {
	family  string
	forward *domain.Recipe
	reverse *domain.Recipe
	tables  Tables
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("family", e.family)
		}
	}
}

// New validates the forward recipe and tables, derives the reverse recipe,
// and returns a ready engine.
func New(family string, forward *domain.Recipe, tables Tables, opts ...Option) (*Engine, error) {
	if forward == nil || len(forward.Actions) == 0 {
		return nil, fmt.Errorf("family %q: empty recipe", family)
	}
	for _, act := range forward.Actions {
		if err := act.Validate(); err != nil {
			return nil, fmt.Errorf("family %q: %w", family, err)
		}
	}
	reverse, err := forward.Reverse()
	if err != nil {
		return nil, fmt.Errorf("family %q: %w", family, err)
	}
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("family %q: %w", family, err)
	}
	e := &Engine{
		family:  family,
		forward: forward.Copy(),
		reverse: reverse,
		tables:  tables,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Family returns the owning family's name.
func (e *Engine) Family() string { return e.family }

// Forward returns a copy of the forward action sequence.
func (e *Engine) Forward() *domain.Recipe { return e.forward.Copy() }

// Reverse returns a copy of the action-wise inverse sequence.
func (e *Engine) Reverse() *domain.Recipe { return e.reverse.Copy() }

// Apply merges the labeled reactant structures, runs the directional action
// sequence, and returns the split product structures. Inputs are not
// mutated.
//
// Error classes matter to callers: a *domain.InvalidActionError means this
// particular candidate cannot absorb the recipe and should be skipped;
// anything else indicates a broken family definition.
func (e *Engine) Apply(structs []domain.Structure, forward bool) ([]domain.Structure, error) {
	if len(structs) == 0 {
		return nil, &domain.KineticsError{Op: "recipe.apply", Family: e.family, Message: "no reactant structures"}
	}

	// 1. Merge the inputs into one working structure.
	working := structs[0].Copy()
	for _, s := range structs[1:] {
		working = working.Merge(s)
	}

	// 2. Forward applications rename duplicated template labels first so
	// that actions address distinct sites.
	if forward {
		if err := e.splitDuplicateLabels(working); err != nil {
			return nil, err
		}
	}

	// 3. Run the directional action sequence.
	recipe := e.forward
	if !forward {
		recipe = e.reverse
	}
	for _, act := range recipe.Actions {
		if err := applyAction(working, act); err != nil {
			return nil, fmt.Errorf("applying %s: %w", act, err)
		}
	}

	// 4. Restore any aromatic system the edit broke. A pattern that cannot
	// kekulize means the product template itself is unusable, which is a
	// family-definition problem rather than a bad candidate.
	if err := working.Kekulize(); err != nil {
		if working.IsPattern() {
			return nil, &domain.KineticsError{
				Op:         "recipe.apply",
				Family:     e.family,
				Message:    fmt.Sprintf("product pattern cannot kekulize: %v", err),
				Structures: []string{working.Render()},
			}
		}
		return nil, &domain.InvalidActionError{Action: "KEKULIZE", Reason: err.Error()}
	}

	// 5. Reverse applications put the forward label set back.
	if !forward {
		rename(working, e.tables.Restore)
	}

	// 6. Split into candidate products and fix their order.
	products := working.Split()
	for _, p := range products {
		rename(p, e.tables.Product)
	}
	orderProducts(products)

	e.logger.Debug("recipe applied",
		"forward", forward,
		"reactants", len(structs),
		"products", len(products))
	return products, nil
}

// splitDuplicateLabels applies the duplicate table. A row whose label does
// not occur exactly twice in the merged structure is a definition error.
func (e *Engine) splitDuplicateLabels(s domain.Structure) error {
	for _, row := range e.tables.Duplicate {
		if n := s.CountLabel(row.Label); n != 2 {
			return &domain.KineticsError{
				Op:         "recipe.apply",
				Family:     e.family,
				Message:    fmt.Sprintf("label %s occurs %d times, duplicate relabeling needs exactly 2", row.Label, n),
				Structures: []string{s.Render()},
			}
		}
		if err := s.RelabelOccurrence(row.Label, 1, row.Replacement); err != nil {
			return &domain.KineticsError{Op: "recipe.apply", Family: e.family, Message: err.Error()}
		}
	}
	return nil
}

// rename applies every row of a table simultaneously.
func rename(s domain.Structure, rows []RenameRule) {
	if len(rows) == 0 {
		return
	}
	moves := make(map[int]string)
	for _, row := range rows {
		for i := 0; i < s.SiteCount(); i++ {
			if s.SiteLabel(i) == row.From {
				moves[i] = row.To
			}
		}
	}
	for i, to := range moves {
		s.SetSiteLabel(i, to)
	}
}

func applyAction(s domain.Structure, act domain.Action) error {
	switch act.Kind {
	case domain.ActionChangeBond:
		return s.ChangeBond(act.Label1, act.Label2, act.Order)
	case domain.ActionFormBond:
		return s.FormBond(act.Label1, act.Label2, act.Order)
	case domain.ActionBreakBond:
		return s.BreakBond(act.Label1, act.Label2, act.Order)
	case domain.ActionGainRadical:
		return s.ChangeRadical(act.Label1, int(act.Order))
	case domain.ActionLoseRadical:
		return s.ChangeRadical(act.Label1, -int(act.Order))
	case domain.ActionGainPair:
		return s.ChangePair(act.Label1, int(act.Order))
	case domain.ActionLosePair:
		return s.ChangePair(act.Label1, -int(act.Order))
	}
	return &domain.ActionError{Action: act.String(), Reason: "unknown action kind"}
}

// orderProducts fixes the product order: with two products the one holding
// *1 comes first; with three they sort ascending by their lowest numeric
// label. Other counts keep the split order, which follows reactant site
// order already.
func orderProducts(products []domain.Structure) {
	switch len(products) {
	case 2:
		if products[0].CountLabel("*1") == 0 && products[1].CountLabel("*1") > 0 {
			products[0], products[1] = products[1], products[0]
		}
	case 3:
		sort.SliceStable(products, func(i, j int) bool {
			return lowestLabel(products[i]) < lowestLabel(products[j])
		})
	}
}

func lowestLabel(s domain.Structure) int {
	low := math.MaxInt
	for _, l := range s.Labels() {
		if !domain.ValidSiteLabel(l) {
			continue
		}
		if n, err := strconv.Atoi(l[1:]); err == nil && n < low {
			low = n
		}
	}
	return low
}
