package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. When MaxEntries is set the oldest
// inserted keys are evicted first.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	order      []string
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Read(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		s.deleteLocked(key)
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Write(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttlOrDefault(ttl))}

	for s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		s.deleteLocked(s.order[0])
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	s.deleteLocked(key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.deleteLocked(key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) deleteLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
