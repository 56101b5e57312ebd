// Package induct grows a family's pattern hierarchy from training
// reactions. Starting at a single root pattern it repeatedly picks the
// single-feature refinement that best separates the reactions matched at a
// node, producing a tree in which every training reaction descends to
// exactly one most-specific entry. Large training sets are folded in as
// cascading batches, finished trees are regularized to their narrowest
// covering form, and rate rules with uncertainty estimates are fitted onto
// every populated node.
package induct

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// Defaults applied by Config.applyDefaults.
const (
	DefaultObjectiveT               = 1000.0
	DefaultTref                     = 1000.0
	DefaultFmaxSingle               = 1.0e5
	DefaultMinSplittableNodes       = 2
	DefaultMinReactionsToSpawn      = 20
	DefaultMaxBatchSize             = 800
	DefaultOutlierFraction          = 0.02
	DefaultStratumCount             = 8
	DefaultMaxReactionsToReoptimize = 100
	DefaultSeed                     = 1
)

// Config tunes tree growth. The zero value selects the defaults above;
// Workers = 0 grows the tree on the calling goroutine alone.
type Config struct {
	// ObjectiveT is the temperature at which rate coefficients are compared
	// when scoring candidate splits.
	ObjectiveT float64

	// Tref is the reference temperature for fitted rule uncertainties.
	Tref float64

	// FmaxSingle bounds the rate estimate of a rule fitted to a single
	// reaction; its log sets the one-point uncertainty.
	FmaxSingle float64

	// Workers is the number of helper goroutines subtrees may be handed to.
	Workers int

	// MinSplittableNodes is the amount of other splittable work that must
	// remain before a subtree is handed off.
	MinSplittableNodes int

	// MinReactionsToSpawn is the smallest reaction count worth handing off.
	MinReactionsToSpawn int

	// MaxBatchSize caps how many training reactions are folded into the
	// tree per growth pass; larger sets are split into cascading batches.
	MaxBatchSize int

	// OutlierFraction is the fraction of the rate-sorted training set
	// treated as outliers and forced into the first batch.
	OutlierFraction float64

	// StratumCount is the number of rate strata the remaining reactions are
	// sampled from when batching.
	StratumCount int

	// MaxReactionsToReoptimize: between batches, subtrees under a node
	// holding fewer matches than this are discarded and regrown against the
	// accumulated set.
	MaxReactionsToReoptimize int

	// Seed drives batch shuffling and cross-validation folds.
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.ObjectiveT == 0 {
		c.ObjectiveT = DefaultObjectiveT
	}
	if c.Tref == 0 {
		c.Tref = DefaultTref
	}
	if c.FmaxSingle == 0 {
		c.FmaxSingle = DefaultFmaxSingle
	}
	if c.MinSplittableNodes == 0 {
		c.MinSplittableNodes = DefaultMinSplittableNodes
	}
	if c.MinReactionsToSpawn == 0 {
		c.MinReactionsToSpawn = DefaultMinReactionsToSpawn
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.OutlierFraction == 0 {
		c.OutlierFraction = DefaultOutlierFraction
	}
	if c.StratumCount == 0 {
		c.StratumCount = DefaultStratumCount
	}
	if c.MaxReactionsToReoptimize == 0 {
		c.MaxReactionsToReoptimize = DefaultMaxReactionsToReoptimize
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
}

// Training is one training reaction prepared for induction: the merged,
// labeled reactant structure plus its measured forward kinetics. Rank grades
// the data's accuracy and weighs the reaction during rule fitting.
type Training struct {
	ID        int64
	Label     string
	Structure domain.Structure
	Kinetics  *domain.Arrhenius
	Rank      int
}

// Copy deep-copies the training reaction.
func (tr *Training) Copy() *Training {
	out := &Training{ID: tr.ID, Label: tr.Label, Rank: tr.Rank}
	if tr.Structure != nil {
		out.Structure = tr.Structure.Copy()
	}
	if tr.Kinetics != nil {
		out.Kinetics = tr.Kinetics.Copy()
	}
	return out
}

// Request is one induction call: the family name (for errors and metrics),
// the root entry to grow under, and the training reactions, each of which
// must match the root pattern.
type Request struct {
	Family   string
	Root     *domain.Entry
	Training []*Training
}

// Result is a grown hierarchy: the entry arena keyed by label and the
// most-specific node each training reaction descended to. The root entry is
// a copy; the caller's request is never mutated.
type Result struct {
	Family  string
	Root    string
	Entries map[string]*domain.Entry
	Matches map[string][]*Training
}

// Inducer grows, regularizes and fits pattern hierarchies.
type Inducer struct {
	cfg     Config
	matcher ports.Matcher
	logger  *slog.Logger
}

// Option configures an Inducer.
type Option func(*Inducer)

// WithLogger sets the inducer's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Inducer) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// New returns an inducer using matcher for all structure comparisons.
func New(cfg Config, matcher ports.Matcher, opts ...Option) (*Inducer, error) {
	if matcher == nil {
		return nil, fmt.Errorf("induct: nil matcher")
	}
	cfg.applyDefaults()
	in := &Inducer{
		cfg:     cfg,
		matcher: matcher,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Grow builds the hierarchy under req.Root. Training sets up to
// MaxBatchSize are folded in whole; larger sets are split into cascading
// batches with a pruning pass between them. The grown tree is regularized
// to its narrowest covering form and validated before it is returned.
func (in *Inducer) Grow(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	t := newState(req.Family, req.Root)
	for _, tr := range req.Training {
		if !in.matcher.Matches(t.arena[t.root].Pattern, tr.Structure) {
			return nil, fmt.Errorf("induct: training reaction %q does not match the root pattern %s",
				tr.Label, t.root)
		}
	}

	if len(req.Training) <= in.cfg.MaxBatchSize {
		if err := t.assign(in.matcher, req.Training); err != nil {
			return nil, err
		}
		if err := in.growLoop(ctx, t, in.cfg.Workers); err != nil {
			return nil, err
		}
	} else {
		rng := rand.New(rand.NewSource(in.cfg.Seed))
		batches := in.trainingBatches(req.Training, rng)
		in.logger.Info("batching training set",
			"family", req.Family, "reactions", len(req.Training), "batches", len(batches))
		acc := append([]*Training(nil), batches[0]...)
		if err := t.assign(in.matcher, acc); err != nil {
			return nil, err
		}
		if err := in.growLoop(ctx, t, in.cfg.Workers); err != nil {
			return nil, err
		}
		for _, batch := range batches[1:] {
			acc = append(acc, batch...)
			if err := t.assign(in.matcher, acc); err != nil {
				return nil, err
			}
			in.prune(t)
			if err := t.assign(in.matcher, acc); err != nil {
				return nil, err
			}
			if err := in.growLoop(ctx, t, in.cfg.Workers); err != nil {
				return nil, err
			}
		}
	}

	in.regularize(t)
	if err := in.check(t); err != nil {
		return nil, err
	}
	in.logger.Info("grew tree", "family", req.Family,
		"entries", len(t.arena), "reactions", len(req.Training))
	return &Result{
		Family:  req.Family,
		Root:    t.root,
		Entries: t.arena,
		Matches: t.rxns,
	}, nil
}

func validateRequest(req Request) error {
	if req.Root == nil || req.Root.Pattern == nil {
		return fmt.Errorf("induct: request without a root pattern")
	}
	if _, ok := req.Root.Pattern.(domain.Extendable); !ok {
		return fmt.Errorf("induct: root pattern of %s cannot enumerate extensions", req.Root.Label)
	}
	if len(req.Training) == 0 {
		return fmt.Errorf("induct: request without training reactions")
	}
	for _, tr := range req.Training {
		if tr == nil || tr.Structure == nil {
			return fmt.Errorf("induct: training reaction without a structure")
		}
		if tr.Kinetics == nil {
			return fmt.Errorf("induct: training reaction %q without kinetics", tr.Label)
		}
		if tr.Kinetics.A <= 0 {
			return fmt.Errorf("induct: training reaction %q with non-positive pre-exponential factor", tr.Label)
		}
	}
	return nil
}

// state is the mutable growth state: the arena, the exact-match assignment
// map, and the per-node bookkeeping flags.
type state struct {
	family   string
	root     string
	arena    map[string]*domain.Entry
	rxns     map[string][]*Training
	terminal map[string]bool
	retried  map[string]bool
}

func newState(family string, root *domain.Entry) *state {
	r := root.Copy()
	r.Parent = ""
	return &state{
		family:   family,
		root:     r.Label,
		arena:    map[string]*domain.Entry{r.Label: r},
		rxns:     map[string][]*Training{},
		terminal: map[string]bool{},
		retried:  map[string]bool{},
	}
}

// assign rebuilds the exact-match map: every training reaction descends from
// the root to its single most specific matching entry.
func (t *state) assign(m ports.Matcher, rxns []*Training) error {
	t.rxns = map[string][]*Training{}
	for _, tr := range rxns {
		label, err := t.descend(m, tr.Structure)
		if err != nil {
			return err
		}
		t.rxns[label] = append(t.rxns[label], tr)
	}
	return nil
}

func (t *state) descend(m ports.Matcher, s domain.Structure) (string, error) {
	cur := t.arena[t.root]
	if cur == nil {
		return "", fmt.Errorf("induct: arena lost its root %s", t.root)
	}
descent:
	for {
		for _, cl := range cur.Children {
			child := t.arena[cl]
			if child == nil || child.Pattern == nil {
				continue
			}
			if m.Matches(child.Pattern, s) {
				cur = child
				continue descent
			}
		}
		return cur.Label, nil
	}
}

// splittable returns the labels worth extending, in index order: at least
// two assigned reactions, a concrete pattern, and not yet found terminal.
func (t *state) splittable() []string {
	var out []string
	for label, list := range t.rxns {
		if len(list) < 2 || t.terminal[label] {
			continue
		}
		e := t.arena[label]
		if e == nil || e.Pattern == nil {
			continue
		}
		if _, ok := e.Pattern.(domain.Extendable); !ok {
			continue
		}
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := t.arena[out[i]], t.arena[out[j]]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return out[i] < out[j]
	})
	return out
}

// renumber assigns sequential indices in preorder from the root.
func (t *state) renumber() {
	var idx int64
	var walk func(label string)
	walk = func(label string) {
		e := t.arena[label]
		if e == nil {
			return
		}
		e.Index = idx
		idx++
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(t.root)
}

// inclusiveMatches widens an exact-match map so every entry also holds the
// reactions of its whole subtree. Exact labels are visited in sorted order,
// keeping slice order deterministic.
func inclusiveMatches(root string, entries map[string]*domain.Entry, matches map[string][]*Training) map[string][]*Training {
	out := map[string][]*Training{}
	labels := make([]string, 0, len(matches))
	for label := range matches {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		list := matches[label]
		for cur := label; ; {
			e := entries[cur]
			if e == nil {
				break
			}
			out[cur] = append(out[cur], list...)
			if cur == root || e.Parent == "" {
				break
			}
			cur = e.Parent
		}
	}
	return out
}

func (t *state) inclusiveMatches() map[string][]*Training {
	return inclusiveMatches(t.root, t.arena, t.rxns)
}
