package notification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/example/order-saga/internal/infrastructure/store"
)

// Sequence issues notification ids. Ids are strictly increasing for the
// lifetime of the sequence.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// LocalSequence counts from 1 and resets when the process restarts.
type LocalSequence struct {
	last atomic.Int64
}

func NewLocalSequence() *LocalSequence {
	return &LocalSequence{}
}

func (s *LocalSequence) Next(context.Context) (int64, error) {
	return s.last.Add(1), nil
}

// StoreSequence keeps the counter in the state store so numbering survives
// restarts and is shared by every replica.
type StoreSequence struct {
	store       store.StateStore
	key         string
	maxAttempts int
}

func NewStoreSequence(s store.StateStore, name string) *StoreSequence {
	return &StoreSequence{
		store:       s,
		key:         store.SequenceKey(name),
		maxAttempts: store.DefaultMaxAttempts,
	}
}

type sequenceRecord struct {
	Last int64 `json:"last"`
}

func (s *StoreSequence) Next(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var rec sequenceRecord
		var version int64

		item, err := s.store.Get(ctx, s.key)
		if err != nil {
			return 0, fmt.Errorf("failed to read %s: %w", s.key, err)
		}
		if item != nil {
			if err := item.Decode(&rec); err != nil {
				return 0, fmt.Errorf("failed to decode %s: %w", s.key, err)
			}
			version = item.Version
		}

		rec.Last++
		_, err = s.store.CompareAndSwap(ctx, s.key, rec, version)
		if err == nil {
			return rec.Last, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return 0, fmt.Errorf("failed to write %s: %w", s.key, err)
		}
	}
	return 0, fmt.Errorf("%s: %w", s.key, store.ErrContention)
}
