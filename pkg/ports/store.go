package ports

import (
	"context"

	"github.com/veldtlab/grove/pkg/domain"
)

// RuleStore persists pattern hierarchies and their rate rules, keyed by
// family name. Entries travel as domain.Record; rebuilding patterns from
// their text form is the engine's job, not the store's.
type RuleStore interface {
	// SaveEntry writes one entry, replacing any previous record with the
	// same label.
	SaveEntry(ctx context.Context, family string, rec domain.Record) error

	// Entry retrieves one entry by label.
	// Returns domain.ErrEntryNotFound if the label does not exist.
	Entry(ctx context.Context, family, label string) (domain.Record, error)

	// Entries returns all of a family's entries in ascending Index order.
	Entries(ctx context.Context, family string) ([]domain.Record, error)

	// DeleteEntry removes one entry. Deleting an absent label is not an
	// error.
	DeleteEntry(ctx context.Context, family, label string) error

	// Families lists the family names with at least one entry, sorted.
	Families(ctx context.Context) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}
