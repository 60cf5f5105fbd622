package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with full compare-and-set semantics.
// Used in tests and local development; it intentionally mirrors the
// concurrency behavior of the durable stores so race-sensitive processor
// logic can be exercised without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) FindBySubscriptionRef(ctx context.Context, ref string) (*Record, error) {
	if ref == "" {
		return nil, ErrRecordNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ProviderSubscriptionRef == ref {
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[rec.UserID]
	switch {
	case rec.Version == 0:
		if exists {
			return ErrVersionConflict
		}
	case !exists || current.Version != rec.Version:
		return ErrVersionConflict
	}

	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.UserID] = *rec
	return nil
}
