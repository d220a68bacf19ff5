package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

// MemoryStore is an in-memory implementation of the ReplayGuard interface
type MemoryStore struct {
	consumed map[string]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

var _ ports.ReplayGuard = (*MemoryStore)(nil)

// Consume marks key as used until ttl elapses
func (s *MemoryStore) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Wrapf(core.ErrLedgerUnavailable, "replay guard: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	if expiry, exists := s.consumed[key]; exists && now.Before(expiry) {
		return false, nil
	}
	s.consumed[key] = now.Add(ttl)
	return true, nil
}

// sweep drops expired keys. Must be called with the lock held.
func (s *MemoryStore) sweep(now time.Time) {
	for key, expiry := range s.consumed {
		if !now.Before(expiry) {
			delete(s.consumed, key)
		}
	}
}

// Len returns the number of keys still remembered
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
	return len(s.consumed)
}
