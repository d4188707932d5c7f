package storage

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
)

// MemoryStore is an in-memory Store for development and tests. Records are
// deep-copied through serialization so callers never share state with the
// store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load returns a copy of the stored record.
func (s *MemoryStore) Load(ctx context.Context, conversationID string) (*Record, error) {
	s.mu.RLock()
	data, ok := s.records[conversationID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save stores a copy of the record.
func (s *MemoryStore) Save(ctx context.Context, conversationID string, rec *Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[conversationID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.records, conversationID)
	s.mu.Unlock()
	return nil
}
