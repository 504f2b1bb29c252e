// Package cache provides the pluggable key-value collaborator used by the
// event registry's snapshot cache and the suggestion store's inference cache.
//
// Two implementations ship: an in-process TTL map and a SQLite-backed store.
// Both expire entries lazily on read; a miss is never an error, only a
// trigger for recomputation.
package cache

import (
	"context"
	"time"
)

// KV is the persistence collaborator contract: put with TTL, get with a
// found flag. Implementations must be safe for concurrent use.
type KV interface {
	// Put stores value under key with the given time-to-live.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key. The bool is false when the key is
	// absent or past its expiry; expired entries are evicted on read.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes a key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}
