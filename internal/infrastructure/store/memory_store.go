package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process StateStore used by the standalone binary and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// memoryEntry is a stored record or, once deleted, its tombstone.
type memoryEntry struct {
	value   json.RawMessage
	version int64
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.items[key]
	if !ok || entry.deleted {
		return nil, nil
	}
	// Hand out a copy so callers cannot mutate stored bytes.
	value := make(json.RawMessage, len(entry.value))
	copy(value, entry.value)
	return &Item{Key: key, Value: value, Version: entry.version}, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.items[key]
	s.items[key] = memoryEntry{value: data, version: current.version + 1}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[key]
	if !ok || current.deleted {
		return nil
	}
	s.items[key] = memoryEntry{version: current.version + 1, deleted: true}
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	live := exists && !current.deleted
	switch {
	case expectedVersion == 0 && live:
		return 0, ErrVersionConflict
	case expectedVersion != 0 && (!live || current.version != expectedVersion):
		return 0, ErrVersionConflict
	}

	next := current.version + 1
	s.items[key] = memoryEntry{value: data, version: next}
	return next, nil
}
