// Package devotp keeps plaintext one-time codes by operation id so local tools and tests can read them
// (GET /dev/otp on the simulated backend). Never enabled in production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds the latest plaintext code per operation.
type Store interface {
	// Put stores code for operationID until expiresAt, replacing any earlier code.
	Put(ctx context.Context, operationID, code string, expiresAt time.Time)
	// Get returns the code for operationID if present and not expired.
	Get(ctx context.Context, operationID string) (code string, ok bool)
	// Delete forgets the code for operationID.
	Delete(ctx context.Context, operationID string)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev code store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{m: make(map[string]entry), nowF: now}
}

// Put stores code for operationID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, operationID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[operationID] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for operationID if present and not expired. Expired entries are removed.
func (s *MemoryStore) Get(ctx context.Context, operationID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[operationID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.Delete(ctx, operationID)
		return "", false
	}
	return e.code, true
}

// Delete forgets the code for operationID.
func (s *MemoryStore) Delete(ctx context.Context, operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, operationID)
}
