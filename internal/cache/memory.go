package cache

import (
	"context"
	"sync"
	"time"
)

// entry holds a value and its absolute expiry instant.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-process TTL key-value store.
// Get, Put and Delete are O(1); expired entries are evicted lazily on
// read and can be swept in bulk with Purge.
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	nowFn func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]entry),
		nowFn: time.Now,
	}
}

// Put stores value under key with the given TTL.
func (m *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: m.nowFn().Add(ttl),
	}
	return nil
}

// Get returns the value for key, evicting it if expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if m.nowFn().After(e.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Delete removes a key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Purge removes all expired entries and returns how many were evicted.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	evicted := 0
	for k, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the current number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close implements KV. The in-memory store has nothing to release.
func (m *Memory) Close() error { return nil }

// SetNowFunc overrides the clock. Tests only.
func (m *Memory) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = fn
}
