package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store backed by in-process maps, for tests and local
// development. Values are copied on the way in and out so callers never
// alias stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	tokens map[string]*Token
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string]*Queue),
		tokens: make(map[string]*Token),
	}
}

// CreateQueue inserts a new queue.
func (s *MemoryStore) CreateQueue(_ context.Context, q *Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[q.QueueID]; ok {
		return fmt.Errorf("memory store: create queue %s: %w", q.QueueID, ErrQueueExists)
	}
	s.queues[q.QueueID] = cloneQueue(q)
	return nil
}

// GetQueue fetches a queue by ID.
func (s *MemoryStore) GetQueue(_ context.Context, queueID string) (*Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[queueID]
	if !ok {
		return nil, fmt.Errorf("memory store: get queue %s: %w", queueID, ErrQueueNotFound)
	}
	return cloneQueue(q), nil
}

// UpdateQueue persists q under optimistic concurrency and bumps Version.
func (s *MemoryStore) UpdateQueue(_ context.Context, q *Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.queues[q.QueueID]
	if !ok {
		return fmt.Errorf("memory store: update queue %s: %w", q.QueueID, ErrQueueNotFound)
	}
	if stored.Version != q.Version {
		return fmt.Errorf("memory store: update queue %s: stored version %d, caller %d: %w",
			q.QueueID, stored.Version, q.Version, ErrVersionConflict)
	}
	q.Version++
	s.queues[q.QueueID] = cloneQueue(q)
	return nil
}

// CreateToken inserts a new token.
func (s *MemoryStore) CreateToken(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.TokenID]; ok {
		return fmt.Errorf("memory store: create token %s: %w", t.TokenID, ErrTokenExists)
	}
	s.tokens[t.TokenID] = cloneToken(t)
	return nil
}

// IssueToken persists token and queue together under one critical section.
func (s *MemoryStore) IssueToken(_ context.Context, q *Queue, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.TokenID]; ok {
		return fmt.Errorf("memory store: issue token %s: %w", t.TokenID, ErrTokenExists)
	}
	stored, ok := s.queues[q.QueueID]
	if !ok {
		return fmt.Errorf("memory store: issue token for queue %s: %w", q.QueueID, ErrQueueNotFound)
	}
	if stored.Version != q.Version {
		return fmt.Errorf("memory store: issue token for queue %s: stored version %d, caller %d: %w",
			q.QueueID, stored.Version, q.Version, ErrVersionConflict)
	}
	q.Version++
	s.queues[q.QueueID] = cloneQueue(q)
	s.tokens[t.TokenID] = cloneToken(t)
	return nil
}

// SaveTokenAndQueue persists an existing token together with its queue.
func (s *MemoryStore) SaveTokenAndQueue(_ context.Context, q *Queue, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.TokenID]; !ok {
		return fmt.Errorf("memory store: save token %s: %w", t.TokenID, ErrTokenNotFound)
	}
	stored, ok := s.queues[q.QueueID]
	if !ok {
		return fmt.Errorf("memory store: save queue %s: %w", q.QueueID, ErrQueueNotFound)
	}
	if stored.Version != q.Version {
		return fmt.Errorf("memory store: save queue %s: stored version %d, caller %d: %w",
			q.QueueID, stored.Version, q.Version, ErrVersionConflict)
	}
	q.Version++
	s.queues[q.QueueID] = cloneQueue(q)
	s.tokens[t.TokenID] = cloneToken(t)
	return nil
}

// GetToken fetches a token by ID.
func (s *MemoryStore) GetToken(_ context.Context, tokenID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("memory store: get token %s: %w", tokenID, ErrTokenNotFound)
	}
	return cloneToken(t), nil
}

// UpdateToken persists t.
func (s *MemoryStore) UpdateToken(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.TokenID]; !ok {
		return fmt.Errorf("memory store: update token %s: %w", t.TokenID, ErrTokenNotFound)
	}
	s.tokens[t.TokenID] = cloneToken(t)
	return nil
}

// ListQueueTokens returns a queue's tokens in token number order.
func (s *MemoryStore) ListQueueTokens(_ context.Context, queueID string) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Token
	for _, t := range s.tokens {
		if t.QueueID == queueID {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenNumber < out[j].TokenNumber })
	return out, nil
}

// ListOpenQueuesByClinic returns the clinic's non-CLOSED queues.
func (s *MemoryStore) ListOpenQueuesByClinic(_ context.Context, clinicID string) ([]*Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Queue
	for _, q := range s.queues {
		if q.ClinicID == clinicID && q.Status != QueueClosed {
			out = append(out, cloneQueue(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceDate != out[j].ServiceDate {
			return out[i].ServiceDate > out[j].ServiceDate
		}
		return out[i].QueueID < out[j].QueueID
	})
	return out, nil
}

func cloneQueue(q *Queue) *Queue {
	cp := *q
	cp.Settings.Breaks = append([]BreakWindow(nil), q.Settings.Breaks...)
	cp.StartedAt = cloneTime(q.StartedAt)
	cp.PausedAt = cloneTime(q.PausedAt)
	cp.ResumedAt = cloneTime(q.ResumedAt)
	cp.ClosedAt = cloneTime(q.ClosedAt)
	return &cp
}

func cloneToken(t *Token) *Token {
	cp := *t
	cp.ConfirmedAt = cloneTime(t.ConfirmedAt)
	cp.ArrivedAt = cloneTime(t.ArrivedAt)
	cp.CalledAt = cloneTime(t.CalledAt)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
