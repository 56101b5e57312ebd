// Package loam stores rate-rule trees as a library of frontmatter documents:
// one markdown file per entry, one directory per family. The entry's pattern
// text is the document body; everything else lives in the frontmatter. The
// layout is meant to be read and edited by hand, with loam providing the
// document plumbing.
package loam

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"gopkg.in/yaml.v3"

	"github.com/veldtlab/grove/pkg/domain"
)

// EntryMetadata is the frontmatter of one stored entry. The document body
// carries the pattern's adjacency text, or the OR combinator form for logic
// nodes.
type EntryMetadata struct {
	Label      string           `json:"label" yaml:"label" mapstructure:"label"`
	Index      int64            `json:"index" yaml:"index" mapstructure:"index"`
	Rank       int              `json:"rank,omitempty" yaml:"rank,omitempty" mapstructure:"rank"`
	Parent     string           `json:"parent,omitempty" yaml:"parent,omitempty" mapstructure:"parent"`
	Children   []string         `json:"children,omitempty" yaml:"children,omitempty" mapstructure:"children"`
	Provenance string           `json:"provenance,omitempty" yaml:"provenance,omitempty" mapstructure:"provenance"`
	RateModel  *domain.RateRule `json:"rate_model,omitempty" yaml:"rate_model,omitempty" mapstructure:"rate_model"`
}

// Store implements ports.RuleStore on a loam document library. Entry labels
// become file names, so they must not contain path separators.
type Store struct {
	root  string
	repo  core.Repository
	typed *loam.TypedRepository[EntryMetadata]
}

// Open initializes a loam repository rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("loam: invalid path: %w", err)
	}
	repo, err := loam.Init(abs)
	if err != nil {
		return nil, fmt.Errorf("loam: initializing repository: %w", err)
	}
	return &Store{
		root:  abs,
		repo:  repo,
		typed: loam.NewTypedRepository[EntryMetadata](repo),
	}, nil
}

// SaveEntry writes one entry as a frontmatter document.
func (s *Store) SaveEntry(ctx context.Context, family string, rec domain.Record) error {
	meta := EntryMetadata{
		Label:      rec.Label,
		Index:      rec.Index,
		Rank:       rec.Rank,
		Parent:     rec.Parent,
		Children:   rec.Children,
		Provenance: rec.Provenance,
		RateModel:  rec.RateModel,
	}
	header, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("loam: marshaling entry %s/%s: %w", family, rec.Label, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n")
	if rec.Item != "" {
		b.WriteString(rec.Item)
		if !strings.HasSuffix(rec.Item, "\n") {
			b.WriteByte('\n')
		}
	}

	if err := os.MkdirAll(filepath.Join(s.root, family), 0o755); err != nil {
		return fmt.Errorf("loam: creating family directory %s: %w", family, err)
	}
	doc := core.Document{ID: s.docID(family, rec.Label), Content: b.String()}
	if err := s.repo.Save(ctx, doc); err != nil {
		return fmt.Errorf("loam: saving entry %s/%s: %w", family, rec.Label, err)
	}
	return nil
}

// Entry retrieves one entry by label.
func (s *Store) Entry(ctx context.Context, family, label string) (domain.Record, error) {
	if _, err := os.Stat(s.path(family, label)); err != nil {
		if os.IsNotExist(err) {
			return domain.Record{}, domain.ErrEntryNotFound
		}
		return domain.Record{}, fmt.Errorf("loam: reading entry %s/%s: %w", family, label, err)
	}
	doc, err := s.typed.Get(ctx, family+"/"+label)
	if err != nil {
		return domain.Record{}, fmt.Errorf("loam: reading entry %s/%s: %w", family, label, err)
	}
	return recordFromDoc(doc.Data, doc.Content), nil
}

// Entries returns the family's records in ascending Index order.
func (s *Store) Entries(ctx context.Context, family string) ([]domain.Record, error) {
	docs, err := s.typed.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam: listing entries of %s: %w", family, err)
	}
	out := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		if familyOf(doc.ID) != family {
			continue
		}
		out = append(out, recordFromDoc(doc.Data, doc.Content))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// DeleteEntry removes one entry's document. Deleting an absent label is not
// an error. Emptied family directories are removed.
func (s *Store) DeleteEntry(_ context.Context, family, label string) error {
	if err := os.Remove(s.path(family, label)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("loam: deleting entry %s/%s: %w", family, label, err)
	}
	// Drop the directory when this was the last entry; a non-empty
	// directory makes Remove fail, which is fine.
	_ = os.Remove(filepath.Join(s.root, family))
	return nil
}

// Families lists the family names with at least one entry, sorted.
func (s *Store) Families(ctx context.Context) ([]string, error) {
	docs, err := s.typed.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam: listing families: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, doc := range docs {
		family := familyOf(doc.ID)
		if family == "" || seen[family] {
			continue
		}
		seen[family] = true
		names = append(names, family)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases nothing; the library lives on the filesystem.
func (s *Store) Close() error { return nil }

func (s *Store) docID(family, label string) string {
	return family + "/" + label + ".md"
}

func (s *Store) path(family, label string) string {
	return filepath.Join(s.root, family, label+".md")
}

func recordFromDoc(meta EntryMetadata, body string) domain.Record {
	return domain.Record{
		Label:      meta.Label,
		Item:       strings.TrimSpace(body),
		Parent:     meta.Parent,
		Children:   meta.Children,
		RateModel:  meta.RateModel,
		Rank:       meta.Rank,
		Index:      meta.Index,
		Provenance: meta.Provenance,
	}
}

// familyOf extracts the family directory from a document ID. Root-level
// documents belong to no family.
func familyOf(id string) string {
	id = filepath.ToSlash(id)
	i := strings.Index(id, "/")
	if i < 0 {
		return ""
	}
	return id[:i]
}
