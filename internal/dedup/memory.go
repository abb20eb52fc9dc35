package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory Deduplicator for local mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:    map[string]time.Time{},
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) MarkIfNew(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[eventID]; ok {
		return false, nil
	}
	s.seen[eventID] = s.nowFunc()
	return true, nil
}
