// Package redis persists rate-rule trees in Redis. Entries live as JSON
// values, one key per entry, with a per-family ZSET index ordered by entry
// index and a ZSET of family names. The Locker guards whole-family rewrites
// when several processes share one backend.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/veldtlab/grove/pkg/domain"
)

// Store implements ports.RuleStore on Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL expires entries after ttl; zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "grove:rules:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) entryKey(family, label string) string {
	return s.prefix + family + ":entry:" + label
}

func (s *Store) indexKey(family string) string {
	return s.prefix + family + ":index"
}

func (s *Store) familiesKey() string {
	return s.prefix + "families"
}

// SaveEntry writes one entry and indexes it under its family.
func (s *Store) SaveEntry(ctx context.Context, family string, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshaling entry %s/%s: %w", family, rec.Label, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(family, rec.Label), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(family), backend.Z{Score: float64(rec.Index), Member: rec.Label})
	pipe.ZAdd(ctx, s.familiesKey(), backend.Z{Member: family})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: saving entry %s/%s: %w", family, rec.Label, err)
	}
	return nil
}

// Entry retrieves one entry by label.
func (s *Store) Entry(ctx context.Context, family, label string) (domain.Record, error) {
	val, err := s.client.Get(ctx, s.entryKey(family, label)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Record{}, domain.ErrEntryNotFound
		}
		return domain.Record{}, fmt.Errorf("redis: reading entry %s/%s: %w", family, label, err)
	}

	var rec domain.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return domain.Record{}, fmt.Errorf("redis: unmarshaling entry %s/%s: %w", family, label, err)
	}
	return rec, nil
}

// Entries returns the family's records in ascending Index order. Index
// members whose values have expired are pruned on the way.
func (s *Store) Entries(ctx context.Context, family string) ([]domain.Record, error) {
	labels, err := s.client.ZRange(ctx, s.indexKey(family), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: listing entries of %s: %w", family, err)
	}
	if len(labels) == 0 {
		return []domain.Record{}, nil
	}

	keys := make([]string, len(labels))
	for i, label := range labels {
		keys[i] = s.entryKey(family, label)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: reading entries of %s: %w", family, err)
	}

	out := make([]domain.Record, 0, len(vals))
	var stale []interface{}
	for i, v := range vals {
		text, ok := v.(string)
		if !ok {
			stale = append(stale, labels[i])
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("redis: unmarshaling entry %s/%s: %w", family, labels[i], err)
		}
		out = append(out, rec)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(family), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis: pruning index of %s: %w", family, err)
		}
		if err := s.dropFamilyIfEmpty(ctx, family); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteEntry removes one entry. Deleting an absent label is not an error.
func (s *Store) DeleteEntry(ctx context.Context, family, label string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.entryKey(family, label))
	pipe.ZRem(ctx, s.indexKey(family), label)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: deleting entry %s/%s: %w", family, label, err)
	}
	return s.dropFamilyIfEmpty(ctx, family)
}

// Families lists the family names with at least one entry. All members
// share score zero, so ZRANGE yields them sorted.
func (s *Store) Families(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.familiesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: listing families: %w", err)
	}
	return names, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) dropFamilyIfEmpty(ctx context.Context, family string) error {
	n, err := s.client.ZCard(ctx, s.indexKey(family)).Result()
	if err != nil {
		return fmt.Errorf("redis: sizing index of %s: %w", family, err)
	}
	if n == 0 {
		if err := s.client.ZRem(ctx, s.familiesKey(), family).Err(); err != nil {
			return fmt.Errorf("redis: delisting family %s: %w", family, err)
		}
	}
	return nil
}
