package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// does not match the expected one.
var ErrVersionConflict = errors.New("state version conflict")

// Item is a stored value together with its write version.
// Version starts at 1 for a freshly created key and grows by one per write
// or delete. It never repeats for a key, even after the key is recreated.
type Item struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version int64           `json:"version"`
}

// Decode unmarshals the stored value into v.
func (i *Item) Decode(v any) error {
	return json.Unmarshal(i.Value, v)
}

// StateStore is the keyed record store shared by all services.
// It has no scan capability; listings are built from index records.
type StateStore interface {
	// Get returns nil, nil when the key does not exist.
	Get(ctx context.Context, key string) (*Item, error)

	// Put upserts the value unconditionally.
	Put(ctx context.Context, key string, value any) error

	// Delete removes the key, leaving a tombstone that Get reports as
	// missing. A missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndSwap writes value only if the current version equals
	// expectedVersion. An expectedVersion of 0 means the key must not exist
	// or must have been deleted; a deleted key never matches a non-zero version.
	// It returns the new version, or ErrVersionConflict.
	CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error)
}
