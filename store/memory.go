package store

import (
	"context"
	"sync"
)

// Memory keeps everything in a map, for tests and single shot ingests.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{items: map[string][]byte{}}
}

// Put stores a copy of the data.
func (m *Memory) Put(ctx context.Context, id, path string, data []byte) error {
	key, err := Key(id, path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.items[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored data.
func (m *Memory) Get(ctx context.Context, id, path string) ([]byte, error) {
	key, err := Key(id, path)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Exists tells whether anything was stored under the key.
func (m *Memory) Exists(ctx context.Context, id, path string) (bool, error) {
	key, err := Key(id, path)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.items[key]
	m.mu.RUnlock()
	return ok, nil
}

// Len is the number of stored items.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
