package blobstore

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store implementation for tests and examples.
// It keeps blobs in a map without any filesystem dependency.
// Safe for concurrent use.
type MemoryStore struct {
	namespace string

	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		namespace: DefaultNamespace,
		blobs:     make(map[string][]byte),
	}
}

// Name returns the deterministic blob name for key.
func (m *MemoryStore) Name(key string) string {
	return blobName(m.namespace, key)
}

// Exists reports whether a blob for key is present.
func (m *MemoryStore) Exists(_ context.Context, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[m.Name(key)]
	return ok
}

// Read returns a copy of the blob contents, or ErrNotFound.
func (m *MemoryStore) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[m.Name(key)]
	if !ok {
		return nil, ErrNotFound
	}
	// Copy to prevent external mutation of the stored blob.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write stores a copy of data under key's blob name.
func (m *MemoryStore) Write(_ context.Context, key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[m.Name(key)] = stored
	return nil
}

// Delete removes the blob for key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := m.Name(key)
	if _, ok := m.blobs[name]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, name)
	return nil
}

// Count returns the number of namespace-prefixed blobs.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for name := range m.blobs {
		if strings.HasPrefix(name, m.namespace) {
			count++
		}
	}
	return count, nil
}

// DeleteAll removes every namespace-prefixed blob.
func (m *MemoryStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.blobs {
		if strings.HasPrefix(name, m.namespace) {
			delete(m.blobs, name)
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
