package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/SergeiKhy/batch-shortener/internal/models"
)

// MockMappingStore implements repository.MappingStore for testing.
// The mapping is kept serialized so callers never share records with the store.
type MockMappingStore struct {
	mu        sync.Mutex
	data      []byte
	LoadErr   error
	SaveErr   error
	LoadCalls int
	SaveCalls int
}

func NewMockMappingStore() *MockMappingStore {
	return &MockMappingStore{}
}

func (m *MockMappingStore) Load(ctx context.Context) (models.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LoadCalls++
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}

	mapping := models.Mapping{}
	if len(m.data) == 0 {
		return mapping, nil
	}
	if err := json.Unmarshal(m.data, &mapping); err != nil {
		return models.Mapping{}, nil
	}
	return mapping, nil
}

func (m *MockMappingStore) Save(ctx context.Context, mapping models.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

// Snapshot returns a copy of the persisted mapping
func (m *MockMappingStore) Snapshot() models.Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping := models.Mapping{}
	if len(m.data) > 0 {
		_ = json.Unmarshal(m.data, &mapping)
	}
	return mapping
}

// Raw returns the persisted bytes
func (m *MockMappingStore) Raw() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data)
}

// JournalEvent is one record captured by MockJournal
type JournalEvent struct {
	Type    string
	Message string
	Fields  map[string]any
}

// MockJournal implements service.EventJournal for testing
type MockJournal struct {
	mu     sync.Mutex
	events []JournalEvent
}

func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (m *MockJournal) Start() {}

func (m *MockJournal) Stop() {}

func (m *MockJournal) Info(message string, fields map[string]any) {
	m.record("info", message, fields)
}

func (m *MockJournal) Error(message string, fields map[string]any) {
	m.record("error", message, fields)
}

func (m *MockJournal) record(kind, message string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, JournalEvent{Type: kind, Message: message, Fields: fields})
}

// Events returns captured records, optionally filtered by type
func (m *MockJournal) Events(kind string) []JournalEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []JournalEvent
	for _, e := range m.events {
		if kind == "" || e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}
