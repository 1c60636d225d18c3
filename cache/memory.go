package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryMedium is a thread-safe in-memory Medium.
// It is useful for tests and for hosts without persistent storage.
type MemoryMedium struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryMedium creates an empty in-memory medium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value from the medium.
func (m *MemoryMedium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	val, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set stores a value in the medium.
func (m *MemoryMedium) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stored
	return nil
}

// Delete removes a key from the medium.
func (m *MemoryMedium) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ListKeys returns all keys with the given prefix in sorted order.
func (m *MemoryMedium) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Clear removes all keys.
func (m *MemoryMedium) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
}

// Verify MemoryMedium implements Medium
var _ Medium = (*MemoryMedium)(nil)
