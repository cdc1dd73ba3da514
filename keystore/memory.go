package keystore

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default backend and
// is what tests use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Put(_ context.Context, record *Record) error {
	if err := validName("keystore.Put", record.Name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Name] = record.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[name]
	if !ok {
		return nil, notFound("keystore.Get", name)
	}
	return record.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[name]; !ok {
		return notFound("keystore.Delete", name)
	}
	delete(m.records, name)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	return sortedNames(names), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
