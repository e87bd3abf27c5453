package dedupe

import (
	"context"
	"sync"
)

// MemoryStore keeps records for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]string)}
}

// Get returns the recorded fingerprint for name
func (m *MemoryStore) Get(ctx context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.records[name]
	return fp, ok, nil
}

// Put records fingerprint for name
func (m *MemoryStore) Put(ctx context.Context, name string, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = fingerprint
	return nil
}

// Len returns the number of recorded names
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
