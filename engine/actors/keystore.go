package actors

import (
	"github.com/sasha-s/go-deadlock"
)

// SecureKeyValueStore is the persistence collaborator. The host platform
// provides an encrypted implementation; this engine never touches disk for
// key material itself.
type SecureKeyValueStore interface {
	GetString(key string) (string, bool)
	PutString(key string, value string) error
}

// MemoryKeyValueStore is the in-process store used by cmd/engine and tests.
type MemoryKeyValueStore struct {
	mu     deadlock.Mutex
	values map[string]string
}

func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{values: make(map[string]string)}
}

func (m *MemoryKeyValueStore) GetString(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryKeyValueStore) PutString(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
