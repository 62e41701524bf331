package otp

import (
	"context"
	"sync"
	"time"

	"bizbank-confirmation/internal/otp/domain"
)

// MemoryStore is an in-process Store. Expired challenges are removed when read.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]domain.Challenge
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{m: make(map[string]domain.Challenge), nowF: now}
}

// Get returns the challenge for operationID if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, operationID string) (domain.Challenge, bool, error) {
	s.mu.RLock()
	ch, ok := s.m[operationID]
	s.mu.RUnlock()
	if !ok {
		return domain.Challenge{}, false, nil
	}
	if ch.Expired(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[operationID]; still && cur.ExpiresAt.Equal(ch.ExpiresAt) {
			delete(s.m, operationID)
		}
		s.mu.Unlock()
		return domain.Challenge{}, false, nil
	}
	return ch, true, nil
}

// Put stores ch, replacing any previous challenge for the operation.
func (s *MemoryStore) Put(_ context.Context, ch domain.Challenge) error {
	s.mu.Lock()
	s.m[ch.OperationID] = ch
	s.mu.Unlock()
	return nil
}

// Delete removes the challenge for operationID if any.
func (s *MemoryStore) Delete(_ context.Context, operationID string) error {
	s.mu.Lock()
	delete(s.m, operationID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored challenges, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
