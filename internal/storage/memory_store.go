package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Failures can be injected per operation.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]string
	errs   map[string]error
	calls  map[string]int
	closed bool
}

// Operation names accepted by FailOn.
const (
	OpGet    = "get"
	OpSet    = "set"
	OpRemove = "remove"
	OpKeys   = "keys"
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Get returns the value for key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpGet); err != nil {
		return "", err
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpSet); err != nil {
		return err
	}
	m.data[key] = value
	return nil
}

// CompareAndSwap replaces the value for key under the store lock.
func (m *MemoryStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpSet); err != nil {
		return false, err
	}
	current, ok := m.data[key]
	if ok != (old != "") || current != old {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpRemove); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

// Keys returns all keys.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpKeys); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close marks the store closed; later calls fail with ErrUnavailable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for testing

// FailOn makes every later call of op return err. A nil err clears the failure.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Snapshot returns a copy of all stored data.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Clear removes all data and injected failures.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	m.errs = make(map[string]error)
}

func (m *MemoryStore) check(op string) error {
	m.calls[op]++
	if m.closed {
		return ErrUnavailable
	}
	return m.errs[op]
}
