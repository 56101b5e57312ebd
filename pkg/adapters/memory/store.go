// Package memory provides an in-memory ports.RuleStore. It backs tests and
// single-process runs that do not need persistence across restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/veldtlab/grove/pkg/domain"
)

// Store implements ports.RuleStore in memory.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	families map[string]map[string]domain.Record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{families: make(map[string]map[string]domain.Record)}
}

// SaveEntry stores a deep copy of rec, replacing any previous record with
// the same label.
func (s *Store) SaveEntry(_ context.Context, family string, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.families[family]
	if !ok {
		entries = make(map[string]domain.Record)
		s.families[family] = entries
	}
	entries[rec.Label] = copyRecord(rec)
	return nil
}

// Entry retrieves one entry by label.
func (s *Store) Entry(_ context.Context, family, label string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.families[family][label]
	if !ok {
		return domain.Record{}, domain.ErrEntryNotFound
	}
	// Copy on read so the caller cannot mutate stored state.
	return copyRecord(rec), nil
}

// Entries returns the family's records in ascending Index order. An unknown
// family yields an empty slice.
func (s *Store) Entries(_ context.Context, family string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.families[family]
	out := make([]domain.Record, 0, len(entries))
	for _, rec := range entries {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// DeleteEntry removes one entry. Deleting an absent label is not an error.
func (s *Store) DeleteEntry(_ context.Context, family, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.families[family]
	if !ok {
		return nil
	}
	delete(entries, label)
	if len(entries) == 0 {
		delete(s.families, family)
	}
	return nil
}

// Families lists the family names with at least one entry, sorted.
func (s *Store) Families(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.families))
	for name := range s.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error { return nil }

// copyRecord isolates stored records from caller mutation.
func copyRecord(rec domain.Record) domain.Record {
	out := rec
	out.Children = append([]string(nil), rec.Children...)
	if rec.RateModel != nil {
		out.RateModel = rec.RateModel.Copy()
	}
	return out
}
