package mocks

import (
	"context"
	"sync"

	"github.com/example/order-saga/internal/infrastructure/store"
)

// MockStateStore is an in-memory StateStore that records calls and can inject failures.
type MockStateStore struct {
	mu    sync.Mutex
	inner *store.MemoryStore

	// For tracking calls in tests
	GetCalls    []string
	PutCalls    []WriteCall
	CASCalls    []WriteCall
	DeleteCalls []string

	// ReadErr, when it returns non-nil for a key, fails Get for that key.
	ReadErr func(key string) error
	// WriteErr, when it returns non-nil for a key, fails Put and CompareAndSwap for that key.
	WriteErr func(key string) error
	// CASCallback runs before each CompareAndSwap; useful to interleave a competing writer.
	CASCallback func(ctx context.Context, key string, expectedVersion int64)
}

// WriteCall records parameters passed to Put or CompareAndSwap
type WriteCall struct {
	Key             string
	Value           any
	ExpectedVersion int64
}

// NewMockStateStore creates a new MockStateStore
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{
		inner: store.NewMemoryStore(),
	}
}

func (m *MockStateStore) Get(ctx context.Context, key string) (*store.Item, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, key)
	hook := m.ReadErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(key); err != nil {
			return nil, err
		}
	}
	return m.inner.Get(ctx, key)
}

func (m *MockStateStore) Put(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	m.PutCalls = append(m.PutCalls, WriteCall{Key: key, Value: value})
	hook := m.WriteErr
	m.mu.Unlock()

	if hook != nil {
		if err := hook(key); err != nil {
			return err
		}
	}
	return m.inner.Put(ctx, key, value)
}

func (m *MockStateStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, key)
	m.mu.Unlock()
	return m.inner.Delete(ctx, key)
}

func (m *MockStateStore) CompareAndSwap(ctx context.Context, key string, value any, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	m.CASCalls = append(m.CASCalls, WriteCall{Key: key, Value: value, ExpectedVersion: expectedVersion})
	hook := m.WriteErr
	callback := m.CASCallback
	m.mu.Unlock()

	if hook != nil {
		if err := hook(key); err != nil {
			return 0, err
		}
	}
	if callback != nil {
		callback(ctx, key, expectedVersion)
	}
	return m.inner.CompareAndSwap(ctx, key, value, expectedVersion)
}

// SetData writes a value directly, bypassing hooks and call recording.
func (m *MockStateStore) SetData(key string, value any) {
	_ = m.inner.Put(context.Background(), key, value)
}

// GetData reads a value directly, bypassing hooks and call recording.
func (m *MockStateStore) GetData(key string) (*store.Item, bool) {
	item, _ := m.inner.Get(context.Background(), key)
	return item, item != nil
}

// WritesTo returns the recorded Put and CompareAndSwap calls for key.
func (m *MockStateStore) WritesTo(key string) []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []WriteCall
	for _, c := range m.PutCalls {
		if c.Key == key {
			calls = append(calls, c)
		}
	}
	for _, c := range m.CASCalls {
		if c.Key == key {
			calls = append(calls, c)
		}
	}
	return calls
}

// Reset clears all data, recorded calls, and hooks
func (m *MockStateStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inner = store.NewMemoryStore()
	m.GetCalls = nil
	m.PutCalls = nil
	m.CASCalls = nil
	m.DeleteCalls = nil
	m.ReadErr = nil
	m.WriteErr = nil
	m.CASCallback = nil
}
