package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// DefaultMaxAttempts bounds compare-and-swap retry loops.
const DefaultMaxAttempts = 16

// ErrContention is returned when a compare-and-swap loop keeps losing races.
var ErrContention = errors.New("too many concurrent writers")

// Index is a set of member ids stored under a single index:<name> record.
// It stands in for the scan capability the store does not have.
type Index struct {
	store       StateStore
	key         string
	maxAttempts int
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithMaxAttempts sets how many compare-and-swap rounds a single Add or
// Remove may lose before it gives up with ErrContention. An index written by
// n concurrent callers needs at least n attempts to never give up.
func WithMaxAttempts(n int) IndexOption {
	return func(ix *Index) {
		if n > 0 {
			ix.maxAttempts = n
		}
	}
}

func NewIndex(s StateStore, name string, opts ...IndexOption) *Index {
	ix := &Index{
		store:       s,
		key:         IndexKey(name),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

type indexRecord struct {
	Members []string `json:"members"`
}

// Members returns the sorted member ids.
func (ix *Index) Members(ctx context.Context) ([]string, error) {
	rec, _, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Members, nil
}

// Add inserts id; adding an existing member is a no-op.
func (ix *Index) Add(ctx context.Context, id string) error {
	return ix.mutate(ctx, func(members []string) ([]string, bool) {
		i := sort.SearchStrings(members, id)
		if i < len(members) && members[i] == id {
			return members, false
		}
		members = append(members, "")
		copy(members[i+1:], members[i:])
		members[i] = id
		return members, true
	})
}

// Remove deletes id; removing a missing member is a no-op.
func (ix *Index) Remove(ctx context.Context, id string) error {
	return ix.mutate(ctx, func(members []string) ([]string, bool) {
		i := sort.SearchStrings(members, id)
		if i >= len(members) || members[i] != id {
			return members, false
		}
		return append(members[:i], members[i+1:]...), true
	})
}

func (ix *Index) load(ctx context.Context) (indexRecord, int64, error) {
	var rec indexRecord
	item, err := ix.store.Get(ctx, ix.key)
	if err != nil {
		return rec, 0, fmt.Errorf("failed to read %s: %w", ix.key, err)
	}
	if item == nil {
		return rec, 0, nil
	}
	if err := item.Decode(&rec); err != nil {
		return rec, 0, fmt.Errorf("failed to decode %s: %w", ix.key, err)
	}
	return rec, item.Version, nil
}

func (ix *Index) mutate(ctx context.Context, fn func([]string) ([]string, bool)) error {
	for attempt := 0; attempt < ix.maxAttempts; attempt++ {
		rec, version, err := ix.load(ctx)
		if err != nil {
			return err
		}
		members, changed := fn(rec.Members)
		if !changed {
			return nil
		}
		_, err = ix.store.CompareAndSwap(ctx, ix.key, indexRecord{Members: members}, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return fmt.Errorf("failed to write %s: %w", ix.key, err)
		}
	}
	return fmt.Errorf("%s: %w", ix.key, ErrContention)
}
