package idempotency

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/ports/out/clock"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use. Records older than the TTL read as absent.
type Store struct {
	clk clock.Clock
	ttl time.Duration

	mu sync.RWMutex
	m  map[idempotency.Fingerprint]idempotency.Record
}

// NewStore returns a store. ttl <= 0 keeps records forever.
func NewStore(clk clock.Clock, ttl time.Duration) *Store {
	return &Store{
		clk: clk,
		ttl: ttl,
		m:   make(map[idempotency.Fingerprint]idempotency.Record),
	}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	rec, ok := s.m[fp]
	s.mu.RUnlock()
	if !ok {
		return idempotency.Record{}, false, nil
	}
	if s.expired(rec) {
		s.mu.Lock()
		delete(s.m, fp)
		s.mu.Unlock()
		return idempotency.Record{}, false, nil
	}
	rec.Body = bytes.Clone(rec.Body)
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	if rec.CreatedAt.IsZero() && s.clk != nil {
		rec.CreatedAt = s.clk.Now()
	}
	rec.Body = bytes.Clone(rec.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[fp] = rec
	return nil
}

func (s *Store) expired(rec idempotency.Record) bool {
	if s.ttl <= 0 || s.clk == nil {
		return false
	}
	return s.clk.Now().Sub(rec.CreatedAt) > s.ttl
}
