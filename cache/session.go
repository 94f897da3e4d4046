package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karloscodes/scopedb/pool"
)

type op func(ctx context.Context, store Store) error

// Session buffers cache writes and invalidations until SaveChanges.
type Session struct {
	store Store
	ttl   time.Duration

	mu      sync.Mutex
	pending []op
}

// NewSession creates a session writing to store with ttl.
func NewSession(store Store, ttl time.Duration) *Session {
	return &Session{store: store, ttl: ttl}
}

// Set schedules a write of value under key.
func (s *Session) Set(key string, value []byte) {
	s.push(func(ctx context.Context, store Store) error {
		return store.Write(ctx, key, value, s.ttl)
	})
}

// Invalidate schedules the removal of keys.
func (s *Session) Invalidate(keys ...string) {
	for _, key := range keys {
		s.push(func(ctx context.Context, store Store) error {
			return store.Delete(ctx, key)
		})
	}
}

// InvalidatePrefix schedules the removal of every key starting with prefix.
func (s *Session) InvalidatePrefix(prefix string) {
	s.push(func(ctx context.Context, store Store) error {
		_, err := store.DeleteByPrefix(ctx, prefix)
		return err
	})
}

func (s *Session) push(o op) {
	s.mu.Lock()
	s.pending = append(s.pending, o)
	s.mu.Unlock()
}

// HasChanges reports whether any operation is buffered.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// SaveChanges applies buffered operations in order. Stores are not
// transactional: on failure the operations already applied are dropped and
// the failed one and those after it stay buffered.
func (s *Session) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	ops := s.pending
	s.pending = nil
	s.mu.Unlock()

	for i, o := range ops {
		if err := o(ctx, s.store); err != nil {
			s.mu.Lock()
			s.pending = append(append([]op{}, ops[i:]...), s.pending...)
			s.mu.Unlock()
			return fmt.Errorf("cache: operation %d: %w", i, err)
		}
	}
	return nil
}

// Discard drops all buffered operations.
func (s *Session) Discard() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

var (
	_ pool.Session   = (*Session)(nil)
	_ pool.Discarder = (*Session)(nil)
)
