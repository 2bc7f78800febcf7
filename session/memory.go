package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process [Store]. Values never expire.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[sessionID][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, ok := m.data[sessionID]
	if !ok {
		fields = make(map[string][]byte)
		m.data[sessionID] = fields
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	fields[key] = stored
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fields, ok := m.data[sessionID]; ok {
		delete(fields, key)
		if len(fields) == 0 {
			delete(m.data, sessionID)
		}
	}
	return nil
}
