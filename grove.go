package grove

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/veldtlab/grove/internal/config"
	"github.com/veldtlab/grove/internal/estimate"
	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/induct"
	"github.com/veldtlab/grove/pkg/adapters/molecule"
	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// Version is the library version reported by the CLI and the MCP server.
const Version = "0.3.0"

// Engine is the high-level entry point for the Grove library. It loads a
// directory of reaction family definitions and exposes reaction generation,
// training ingestion, tree induction and rate estimation over them.
type Engine struct {
	loader    *config.Loader
	matcher   ports.Matcher
	store     ports.RuleStore
	locker    ports.Locker
	thermo    ports.ThermoSource
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	inductCfg induct.Config
	estimator *estimate.Estimator

	families map[string]*config.Loaded
	gens     map[string]*generate.Generator
	trees    map[string]*induct.Result
	global   []domain.Structure

	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMatcher injects a custom subgraph matcher, bypassing the default
// molecule adapter.
func WithMatcher(m ports.Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithStore attaches a rule store for persisting and reloading grown trees.
func WithStore(s ports.RuleStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker guards whole-family store rewrites when several processes
// share one backend.
func WithLocker(l ports.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithThermo supplies the thermochemistry source used to reverse training
// reactions stored against the family's direction.
func WithThermo(src ports.ThermoSource) Option {
	return func(e *Engine) {
		e.thermo = src
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithGlobalForbidden adds forbidden patterns checked for every family on
// top of each family's own list.
func WithGlobalForbidden(patterns ...domain.Structure) Option {
	return func(e *Engine) {
		e.global = append(e.global, patterns...)
	}
}

// WithWorkers sets how many helper goroutines tree growth may hand
// subtrees to. Zero grows trees on the calling goroutine alone.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.inductCfg.Workers = n
	}
}

// WithObjectiveTemperature sets the temperature at which rates are compared
// when scoring candidate tree splits (default 1000 K).
func WithObjectiveTemperature(T float64) Option {
	return func(e *Engine) {
		e.inductCfg.ObjectiveT = T
		e.inductCfg.Tref = T
	}
}

// WithSeed fixes the random seed driving training-batch shuffling, making
// cascade-batched growth reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.inductCfg.Seed = seed
	}
}

// WithBatchSize caps how many training reactions are folded into a tree
// per growth pass.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		e.inductCfg.MaxBatchSize = n
	}
}

// New initializes a Grove Engine over a directory of family definition
// files (one YAML document per family).
func New(familyDir string, opts ...Option) (*Engine, error) {
	if familyDir == "" {
		return nil, fmt.Errorf("familyDir is required")
	}

	eng := &Engine{
		gens:  make(map[string]*generate.Generator),
		trees: make(map[string]*induct.Result),
	}
	for _, opt := range opts {
		opt(eng)
	}

	absPath, err := filepath.Abs(familyDir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	eng.Name = filepath.Base(absPath)

	// Ensure logger is initialized (so we don't pass nil to the internal
	// components, which would overwrite their defaults).
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	eng.logger = eng.logger.With("library", eng.Name)

	if eng.matcher == nil {
		eng.matcher = molecule.NewMatcher()
	}

	codec := config.Codec{
		Pattern: func(text string) (domain.Structure, error) {
			return molecule.ParsePattern(text)
		},
		Molecule: func(text string) (domain.Structure, error) {
			return molecule.ParseMolecule(text)
		},
	}
	loaderOpts := []config.Option{config.WithLogger(eng.logger)}
	if eng.thermo != nil {
		loaderOpts = append(loaderOpts, config.WithThermo(eng.thermo))
	}
	eng.loader, err = config.New(codec, eng.matcher, loaderOpts...)
	if err != nil {
		return nil, err
	}

	eng.families, err = eng.loader.LoadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load family definitions: %w", err)
	}

	for name, loaded := range eng.families {
		gen, err := generate.New(loaded.Family, eng.matcher,
			generate.WithLogger(eng.logger),
			generate.WithGlobalForbidden(eng.global...))
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", name, err)
		}
		eng.gens[name] = gen
	}

	eng.estimator = estimate.New(estimate.Config{}, estimate.WithLogger(eng.logger))
	return eng, nil
}

// Families returns the loaded family names, sorted.
func (e *Engine) Families() []string {
	names := make([]string, 0, len(e.families))
	for name := range e.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSpecies builds a species from adjacency text, one text per resonance
// variant, using the engine's structure codec.
func (e *Engine) ParseSpecies(label string, texts ...string) (*domain.Species, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("species %q: at least one structure is required", label)
	}
	variants := make([]domain.Structure, len(texts))
	for i, text := range texts {
		m, err := molecule.ParseMolecule(text)
		if err != nil {
			return nil, fmt.Errorf("species %q: %w", label, err)
		}
		variants[i] = m
	}
	return domain.NewSpecies(label, variants...), nil
}

// Generate enumerates one family's reactions for the given reactants.
// Optional products restrict the output to reactions producing exactly
// those species. Families whose template does not apply return an empty
// slice, not an error.
func (e *Engine) Generate(ctx context.Context, family string, reactants []*domain.Species, products ...*domain.Species) ([]*domain.Reaction, error) {
	gen, ok := e.gens[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	rxns, err := gen.Generate(ctx, generate.Request{
		Reactants: reactants,
		Products:  products,
	})
	if err != nil {
		return nil, err
	}
	for _, rxn := range rxns {
		e.emitReaction(ctx, rxn)
	}
	return rxns, nil
}

// React runs every loaded family against the reactants and concatenates
// the results, families in sorted name order.
func (e *Engine) React(ctx context.Context, reactants ...*domain.Species) ([]*domain.Reaction, error) {
	var out []*domain.Reaction
	for _, name := range e.Families() {
		rxns, err := e.Generate(ctx, name, reactants)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", name, err)
		}
		out = append(out, rxns...)
	}
	return out, nil
}

// Train folds a family's training reactions into its rate-rule table.
// An empty family name trains every loaded family.
func (e *Engine) Train(ctx context.Context, family string) error {
	if family == "" {
		for _, name := range e.Families() {
			if err := e.Train(ctx, name); err != nil {
				return err
			}
		}
		return nil
	}
	loaded, ok := e.families[family]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	return e.loader.Train(ctx, loaded)
}

// Estimate resolves a rate model for a template path in a family's
// hierarchy, climbing to less specific combinations when the exact one has
// no data. degeneracy scales the returned pre-exponential factor.
func (e *Engine) Estimate(ctx context.Context, family string, template []string, degeneracy int) (*domain.RateRule, error) {
	loaded, ok := e.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	rule, exact, err := e.estimator.Estimate(e.ruleSet(loaded), template, degeneracy)
	if err != nil {
		return nil, err
	}
	e.emitEstimate(ctx, family, template, exact != nil)
	return rule, nil
}

// EstimateReaction fills in a generated reaction's kinetics from its
// family's rule table. On *domain.UndeterminableKineticsError the reaction
// is left with nil kinetics and the error is returned for the caller to
// surface.
func (e *Engine) EstimateReaction(ctx context.Context, rxn *domain.Reaction) error {
	rule, err := e.Estimate(ctx, rxn.Family, rxn.Template, rxn.Degeneracy)
	if err != nil {
		return err
	}
	rxn.Kinetics = rule
	return nil
}

// FillRules fills gaps in a family's rule table by averaging child
// template combinations upward from the root.
func (e *Engine) FillRules(family string) error {
	loaded, ok := e.families[family]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	return e.estimator.FillByAveragingUp(e.ruleSet(loaded))
}

// GrowTree grows, regularizes and fits a family's pattern hierarchy from
// its training reactions, replacing any previously grown tree. It returns
// the grown entries in index order.
func (e *Engine) GrowTree(ctx context.Context, family string) ([]*domain.Entry, error) {
	loaded, ok := e.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}

	req, err := e.loader.InductionRequest(ctx, loaded)
	if err != nil {
		return nil, err
	}
	inducer, err := induct.New(e.inductCfg, e.matcher, induct.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := inducer.Grow(ctx, *req)
	if err != nil {
		return nil, err
	}
	if err := inducer.FitRules(res); err != nil {
		return nil, err
	}
	e.trees[family] = res
	e.emitInduction(ctx, family, len(res.Entries), len(req.Training), time.Since(start))

	return sortedEntries(res.Entries), nil
}

// Tree returns a family's hierarchy entries in index order: the grown tree
// when one exists, the loaded definition tree otherwise.
func (e *Engine) Tree(family string) ([]*domain.Entry, error) {
	if res, ok := e.trees[family]; ok {
		return sortedEntries(res.Entries), nil
	}
	loaded, ok := e.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}
	return sortedEntries(loaded.Family.Arena), nil
}

// SaveTree persists a family's hierarchy entries to the configured rule
// store, taking the family lock when a locker is configured.
func (e *Engine) SaveTree(ctx context.Context, family string) error {
	if e.store == nil {
		return fmt.Errorf("no rule store configured")
	}
	entries, err := e.Tree(family)
	if err != nil {
		return err
	}

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "family:"+family, 30*time.Second)
		if err != nil {
			return fmt.Errorf("lock family %q: %w", family, err)
		}
		defer func() { _ = unlock(ctx) }()
	}

	for _, entry := range entries {
		if err := e.store.SaveEntry(ctx, family, entry.ToRecord()); err != nil {
			return fmt.Errorf("save entry %q: %w", entry.Label, err)
		}
	}
	e.logger.Info("saved tree", "family", family, "entries", len(entries))
	return nil
}

// LoadTree replaces a family's grown tree with the entries held by the
// configured rule store.
func (e *Engine) LoadTree(ctx context.Context, family string) ([]*domain.Entry, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no rule store configured")
	}
	if _, ok := e.families[family]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrFamilyNotFound, family)
	}

	recs, err := e.store.Entries(ctx, family)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*domain.Entry, len(recs))
	var rootLabel string
	for _, rec := range recs {
		entry, err := domain.EntryFromRecord(rec, func(text string) (domain.Structure, error) {
			return molecule.ParsePattern(text)
		})
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", rec.Label, err)
		}
		entries[entry.Label] = entry
		if entry.Parent == "" {
			rootLabel = entry.Label
		}
	}
	if rootLabel == "" && len(entries) > 0 {
		return nil, fmt.Errorf("stored tree for %q has no root entry", family)
	}

	e.trees[family] = &induct.Result{
		Family:  family,
		Root:    rootLabel,
		Entries: entries,
	}
	return sortedEntries(entries), nil
}

// Store returns the configured rule store, or nil.
func (e *Engine) Store() ports.RuleStore { return e.store }

// ruleSet builds the estimator's view of a family. Without a grown tree it
// is the definition arena plus the trained rule table. A grown or loaded
// tree extends both: its entries join the arena so their labels resolve as
// single-slot templates, and their fitted rate models seed the rule table
// where no trained rule already holds the key.
func (e *Engine) ruleSet(loaded *config.Loaded) *estimate.RuleSet {
	f := loaded.Family
	res, ok := e.trees[f.Name]
	if !ok {
		rs := estimate.NewRuleSet(f.Name, f.Arena, f.Forward.ReactantLabels()...)
		rs.Rules = f.Rules
		return rs
	}

	arena := make(map[string]*domain.Entry, len(f.Arena)+len(res.Entries))
	for label, entry := range f.Arena {
		arena[label] = entry
	}
	for label, entry := range res.Entries {
		arena[label] = entry
	}
	rs := estimate.NewRuleSet(f.Name, arena, f.Forward.ReactantLabels()...)
	for key, rules := range f.Rules {
		rs.Rules[key] = rules
	}

	grown := estimate.NewRuleSet(f.Name, res.Entries, res.Root)
	grown.SeedFromArena()
	for key, rules := range grown.Rules {
		if len(rs.Rules[key]) == 0 {
			rs.Rules[key] = rules
		}
	}
	return rs
}

func (e *Engine) emitReaction(ctx context.Context, rxn *domain.Reaction) {
	if e.hooks.OnReaction == nil {
		return
	}
	e.hooks.OnReaction(ctx, &domain.ReactionEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventReactionGenerated,
			Family:    rxn.Family,
		},
		Equation:   rxn.String(),
		Degeneracy: rxn.Degeneracy,
		Forward:    rxn.IsForward,
	})
}

func (e *Engine) emitEstimate(ctx context.Context, family string, template []string, exact bool) {
	if e.hooks.OnEstimate == nil {
		return
	}
	e.hooks.OnEstimate(ctx, &domain.EstimateEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventRateEstimated,
			Family:    family,
		},
		Template: append([]string(nil), template...),
		Exact:    exact,
	})
}

func (e *Engine) emitInduction(ctx context.Context, family string, nodes, training int, d time.Duration) {
	if e.hooks.OnInduction == nil {
		return
	}
	e.hooks.OnInduction(ctx, &domain.InductionEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventTreeGrown,
			Family:    family,
		},
		Nodes:    nodes,
		Training: training,
		Duration: d,
	})
}

func sortedEntries(arena map[string]*domain.Entry) []*domain.Entry {
	out := make([]*domain.Entry, 0, len(arena))
	for _, entry := range arena {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
