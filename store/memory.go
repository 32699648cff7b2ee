package store

import (
	"context"
	"sync"

	"github.com/flashbots/batchclear/engine"
)

// InMemoryStore implements BatchStore without a database, for tests and
// single-node development runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	batches map[uint64]*engine.BatchRecord
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		batches: make(map[uint64]*engine.BatchRecord),
	}
}

// SaveBatch stores a batch record in memory.
func (s *InMemoryStore) SaveBatch(_ context.Context, rec *engine.BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[rec.BatchID] = rec
	return nil
}

// LoadBatch returns a stored batch record.
func (s *InMemoryStore) LoadBatch(_ context.Context, batchID uint64) (*engine.BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return rec, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
