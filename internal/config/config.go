// Package config loads reaction family definitions from YAML. A definition
// carries the template, the graph-edit recipe with its relabel tables, the
// pattern tree, forbidden structures, pre-fitted rate rules and training
// reactions. Loading builds the product-side template by applying the recipe
// to the slot patterns, so the generator can enumerate the reverse direction
// without any extra configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/veldtlab/grove/internal/estimate"
	"github.com/veldtlab/grove/internal/generate"
	"github.com/veldtlab/grove/internal/recipe"
	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// Codec parses structure text: patterns for tree and forbidden entries,
// concrete molecules for training species. Injecting it keeps the loader
// independent of any one graph representation.
type Codec struct {
	Pattern  func(text string) (domain.Structure, error)
	Molecule func(text string) (domain.Structure, error)
}

// Loaded is one family definition together with the data sections consumed
// by later stages.
type Loaded struct {
	Family   *generate.Family
	Training []TrainingReaction
}

// Loader turns family definition files into generator-ready families.
type Loader struct {
	codec     Codec
	matcher   ports.Matcher
	thermo    ports.ThermoSource
	estimator *estimate.Estimator
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithThermo supplies the thermochemistry source used to reverse training
// reactions that are stored against the family's direction. Without it such
// reactions fail ingestion.
func WithThermo(src ports.ThermoSource) Option {
	return func(l *Loader) {
		l.thermo = src
	}
}

// New returns a loader over the given codec and matcher.
func New(codec Codec, matcher ports.Matcher, opts ...Option) (*Loader, error) {
	if codec.Pattern == nil || codec.Molecule == nil {
		return nil, fmt.Errorf("config: codec needs both pattern and molecule parsers")
	}
	if matcher == nil {
		return nil, fmt.Errorf("config: nil matcher")
	}
	l := &Loader{
		codec:   codec,
		matcher: matcher,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.estimator = estimate.New(estimate.Config{}, estimate.WithLogger(l.logger))
	return l, nil
}

// familyFile is the YAML schema of one family definition.
type familyFile struct {
	Name              string              `yaml:"name"`
	OwnReverse        bool                `yaml:"own_reverse"`
	Reversible        *bool               `yaml:"reversible"`
	Surface           bool                `yaml:"surface"`
	RequireGasProduct bool                `yaml:"require_gas_product"`
	Template          templateSchema      `yaml:"template"`
	Recipe            []domain.Action     `yaml:"recipe"`
	Relabel           recipe.Tables       `yaml:"relabel"`
	Pairs             []generate.PairRule `yaml:"pairs"`
	Forbidden         []forbiddenSchema   `yaml:"forbidden"`
	Tree              []treeEntrySchema   `yaml:"tree"`
	Rules             []ruleSchema        `yaml:"rules"`
	Training          []trainingSchema    `yaml:"training"`
}

type templateSchema struct {
	Reactants []string `yaml:"reactants"`
	Products  []string `yaml:"products"`
}

type forbiddenSchema struct {
	Label   string `yaml:"label"`
	Pattern string `yaml:"pattern"`
}

type treeEntrySchema struct {
	Index     int64  `yaml:"index"`
	Label     string `yaml:"label"`
	Parent    string `yaml:"parent"`
	Pattern   string `yaml:"pattern"`
	Logic     string `yaml:"logic"`
	ShortDesc string `yaml:"short_desc"`
	LongDesc  string `yaml:"long_desc"`
}

type ruleSchema struct {
	Index     int64          `yaml:"index"`
	Template  []string       `yaml:"template"`
	Rank      int            `yaml:"rank"`
	ShortDesc string         `yaml:"short_desc"`
	Comment   string         `yaml:"comment"`
	Kinetics  map[string]any `yaml:"kinetics"`
}

type trainingSchema struct {
	Index      int64           `yaml:"index"`
	Label      string          `yaml:"label"`
	Degeneracy int             `yaml:"degeneracy"`
	Rank       int             `yaml:"rank"`
	ShortDesc  string          `yaml:"short_desc"`
	Reactants  []speciesSchema `yaml:"reactants"`
	Products   []speciesSchema `yaml:"products"`
	Kinetics   map[string]any  `yaml:"kinetics"`
}

type speciesSchema struct {
	Label     string   `yaml:"label"`
	Adjacency string   `yaml:"adjacency"`
	Variants  []string `yaml:"variants"`
}

// LoadFamily reads and builds one family definition file.
func (l *Loader) LoadFamily(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading family definition: %w", err)
	}
	loaded, err := l.ParseFamily(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", filepath.Base(path), err)
	}
	return loaded, nil
}

// LoadDir loads every .yaml/.yml file in dir, keyed by family name.
func (l *Loader) LoadDir(dir string) (map[string]*Loaded, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: reading family directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[string]*Loaded, len(names))
	for _, name := range names {
		loaded, err := l.LoadFamily(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := out[loaded.Family.Name]; dup {
			return nil, fmt.Errorf("config: family %q defined twice", loaded.Family.Name)
		}
		out[loaded.Family.Name] = loaded
	}
	return out, nil
}

// ParseFamily builds a family from YAML definition text.
func (l *Loader) ParseFamily(data []byte) (*Loaded, error) {
	var file familyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing family definition: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("family definition without a name")
	}

	eng, err := recipe.New(file.Name, &domain.Recipe{Actions: file.Recipe}, file.Relabel, recipe.WithLogger(l.logger))
	if err != nil {
		return nil, err
	}

	arena, err := l.buildArena(file.Tree)
	if err != nil {
		return nil, fmt.Errorf("family %q: %w", file.Name, err)
	}

	slots := make([]*domain.Entry, len(file.Template.Reactants))
	for i, label := range file.Template.Reactants {
		e, ok := arena[label]
		if !ok {
			return nil, fmt.Errorf("family %q: template slot %q missing from tree", file.Name, label)
		}
		slots[i] = e
	}

	for _, pr := range file.Pairs {
		if !domain.ValidSiteLabel(pr.Reactant) || !domain.ValidSiteLabel(pr.Product) {
			return nil, fmt.Errorf("family %q: pair rule %q -> %q: labels must be *n", file.Name, pr.Reactant, pr.Product)
		}
	}

	reversible := true
	if file.Reversible != nil {
		reversible = *file.Reversible
	}

	fam := &generate.Family{
		Name:              file.Name,
		Forward:           &domain.Template{Reactants: slots},
		Engine:            eng,
		OwnReverse:        file.OwnReverse,
		Reversible:        reversible,
		PairRules:         file.Pairs,
		Surface:           file.Surface,
		RequireGasProduct: file.RequireGasProduct,
		Arena:             arena,
		Rules:             make(map[string][]*domain.Entry),
	}

	if file.OwnReverse {
		fam.Forward.Products = append([]*domain.Entry(nil), slots...)
	} else {
		if len(file.Template.Products) == 0 {
			return nil, fmt.Errorf("family %q: template needs product labels", file.Name)
		}
		products, err := fam.BuildProductTemplate(l.matcher, file.Template.Products)
		if err != nil {
			return nil, err
		}
		fam.Forward.Products = products
		if reversible {
			fam.Reverse = &domain.Template{Reactants: products, Products: slots}
		}
	}

	for _, fb := range file.Forbidden {
		p, err := l.codec.Pattern(fb.Pattern)
		if err != nil {
			return nil, fmt.Errorf("family %q: forbidden %q: %w", file.Name, fb.Label, err)
		}
		fam.Forbidden = append(fam.Forbidden, p)
	}

	for i, rs := range file.Rules {
		if err := l.addRule(fam, i, rs); err != nil {
			return nil, fmt.Errorf("family %q: %w", file.Name, err)
		}
	}

	if err := fam.Validate(); err != nil {
		return nil, err
	}

	training, err := l.parseTraining(file.Name, file.Training)
	if err != nil {
		return nil, fmt.Errorf("family %q: %w", file.Name, err)
	}

	metrics.familiesLoaded.Inc()
	l.logger.Info("family loaded",
		"family", file.Name,
		"tree", len(arena),
		"rules", len(fam.Rules),
		"training", len(training))
	return &Loaded{Family: fam, Training: training}, nil
}

// buildArena parses the tree entries and links parents to children in file
// order, which fixes first-match descent order.
func (l *Loader) buildArena(tree []treeEntrySchema) (map[string]*domain.Entry, error) {
	arena := make(map[string]*domain.Entry, len(tree))
	order := make([]string, 0, len(tree))
	for i, te := range tree {
		if te.Label == "" {
			return nil, fmt.Errorf("tree entry %d without a label", i+1)
		}
		if _, dup := arena[te.Label]; dup {
			return nil, fmt.Errorf("tree entry %q defined twice", te.Label)
		}
		e := &domain.Entry{
			Index:     te.Index,
			Label:     te.Label,
			Parent:    te.Parent,
			ShortDesc: te.ShortDesc,
			LongDesc:  te.LongDesc,
		}
		if e.Index == 0 {
			e.Index = int64(i + 1)
		}
		switch {
		case te.Pattern != "" && te.Logic != "":
			return nil, fmt.Errorf("tree entry %q carries both a pattern and logic", te.Label)
		case te.Pattern != "":
			p, err := l.codec.Pattern(te.Pattern)
			if err != nil {
				return nil, fmt.Errorf("tree entry %q: %w", te.Label, err)
			}
			e.Pattern = p
		case te.Logic != "":
			lor, ok := domain.ParseLogicOr(te.Logic)
			if !ok {
				return nil, fmt.Errorf("tree entry %q: malformed logic %q", te.Label, te.Logic)
			}
			e.Logic = lor
		default:
			return nil, fmt.Errorf("tree entry %q needs a pattern or logic", te.Label)
		}
		arena[te.Label] = e
		order = append(order, te.Label)
	}
	for _, label := range order {
		e := arena[label]
		if e.Parent == "" {
			continue
		}
		p, ok := arena[e.Parent]
		if !ok {
			return nil, fmt.Errorf("tree entry %q references missing parent %q", label, e.Parent)
		}
		p.Children = append(p.Children, label)
	}
	return arena, nil
}

// addRule decodes one pre-fitted rule into the family's rule table.
func (l *Loader) addRule(fam *generate.Family, i int, rs ruleSchema) error {
	if len(rs.Template) == 0 {
		return fmt.Errorf("rule %d without a template", i+1)
	}
	for _, label := range rs.Template {
		if _, ok := fam.Arena[label]; !ok {
			return fmt.Errorf("rule %d references unknown tree entry %q", i+1, label)
		}
	}
	kin, err := decodeKinetics(rs.Kinetics)
	if err != nil {
		return fmt.Errorf("rule %d: %w", i+1, err)
	}
	index := rs.Index
	if index == 0 {
		index = int64(i + 1)
	}
	key := estimate.TemplateLabel(rs.Template)
	fam.Rules[key] = append(fam.Rules[key], &domain.Entry{
		Index:     index,
		Label:     key,
		Rank:      rs.Rank,
		ShortDesc: rs.ShortDesc,
		Data: &domain.RateRule{
			Kinetics: kin,
			Comment:  rs.Comment,
		},
	})
	return nil
}

// parseTraining builds the training reactions without ingesting them; Train
// folds them into the rule table.
func (l *Loader) parseTraining(family string, schemas []trainingSchema) ([]TrainingReaction, error) {
	out := make([]TrainingReaction, 0, len(schemas))
	for i, ts := range schemas {
		reactants, err := l.parseSpecies(ts.Reactants)
		if err != nil {
			return nil, fmt.Errorf("training reaction %d: %w", i+1, err)
		}
		products, err := l.parseSpecies(ts.Products)
		if err != nil {
			return nil, fmt.Errorf("training reaction %d: %w", i+1, err)
		}
		if len(reactants) == 0 || len(products) == 0 {
			return nil, fmt.Errorf("training reaction %d needs reactants and products", i+1)
		}
		kin, err := decodeKinetics(ts.Kinetics)
		if err != nil {
			return nil, fmt.Errorf("training reaction %d: %w", i+1, err)
		}
		tr := TrainingReaction{
			Index:      ts.Index,
			Label:      ts.Label,
			Degeneracy: ts.Degeneracy,
			Rank:       ts.Rank,
			ShortDesc:  ts.ShortDesc,
			Reactants:  reactants,
			Products:   products,
			Kinetics:   kin,
		}
		if tr.Index == 0 {
			tr.Index = int64(i + 1)
		}
		if tr.Degeneracy < 1 {
			tr.Degeneracy = 1
		}
		if tr.Rank == 0 {
			tr.Rank = DefaultTrainingRank
		}
		out = append(out, tr)
	}
	return out, nil
}

func (l *Loader) parseSpecies(schemas []speciesSchema) ([]*domain.Species, error) {
	out := make([]*domain.Species, len(schemas))
	for i, s := range schemas {
		if s.Adjacency == "" {
			return nil, fmt.Errorf("species %d without adjacency text", i+1)
		}
		mol, err := l.codec.Molecule(s.Adjacency)
		if err != nil {
			return nil, fmt.Errorf("species %q: %w", s.Label, err)
		}
		variants := make([]domain.Structure, 1, 1+len(s.Variants))
		variants[0] = mol
		for _, text := range s.Variants {
			v, err := l.codec.Molecule(text)
			if err != nil {
				return nil, fmt.Errorf("species %q variant: %w", s.Label, err)
			}
			variants = append(variants, v)
		}
		out[i] = domain.NewSpecies(s.Label, variants...)
	}
	return out, nil
}

// decodeKinetics turns a rate-model payload into kinetics. The payload is an
// open map so definitions can carry a `type` discriminator; only the
// modified Arrhenius form is supported.
func decodeKinetics(payload map[string]any) (*domain.Arrhenius, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty kinetics payload")
	}
	if v, ok := payload["type"]; ok {
		kind, _ := v.(string)
		if !strings.EqualFold(kind, "arrhenius") {
			return nil, fmt.Errorf("unsupported kinetics type %q", kind)
		}
		trimmed := make(map[string]any, len(payload)-1)
		for k, val := range payload {
			if k != "type" {
				trimmed[k] = val
			}
		}
		payload = trimmed
	}
	var kin domain.Arrhenius
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &kin,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("kinetics payload: %w", err)
	}
	if kin.A == 0 {
		return nil, fmt.Errorf("kinetics payload without a pre-exponential factor")
	}
	return &kin, nil
}
