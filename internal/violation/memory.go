package violation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the reference Store implementation, used in local mode
// and tests. The mutex gives the same atomicity the DynamoDB condition
// expression provides.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TraceID]; ok {
		return ErrDuplicateKey
	}
	s.records[rec.TraceID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, traceID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[traceID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) ConditionalTransition(ctx context.Context, traceID, target, responderID string, now time.Time) (TransitionResult, error) {
	if !ValidTarget(target) {
		return TransitionResult{}, ErrBadTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[traceID]
	if !ok {
		return TransitionResult{}, ErrNotFound
	}
	if rec.Status != StatusUnprocessed {
		return TransitionResult{Applied: false, Previous: rec.Status}, nil
	}

	decidedAt := now
	rec.Status = target
	rec.ResponderID = responderID
	rec.DecidedAt = &decidedAt
	s.records[traceID] = rec
	return TransitionResult{Applied: true}, nil
}
