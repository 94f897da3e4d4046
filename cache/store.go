// Package cache provides key/value cache stores and a Session that defers
// cache writes and invalidations until the session pool commits.
//
// Register a cache Session after the database sessions of a scope: the pool
// commits in registration order, so the cache is only touched once the
// database writes it mirrors have been saved.
package cache

import (
	"context"
	"time"
)

// DefaultTTL applies when a store or session is given a zero TTL.
const DefaultTTL = 14 * 24 * time.Hour

// Store is implemented by MemoryStore and DatabaseStore.
type Store interface {
	// Read returns the value for key. Expired entries are reported missing.
	Read(ctx context.Context, key string) ([]byte, bool)

	// Write stores value under key for ttl. A zero ttl means DefaultTTL.
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
