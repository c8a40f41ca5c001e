// Package cache provides the read-through response cache used in front of
// Shippo API calls.
package cache

import (
	"sync"
	"time"
)

// Store is a generic TTL key-value store. Implementations must tolerate
// concurrent readers and writers with last-write-wins semantics per key.
// Pattern-based deletion is deliberately not part of the contract; callers
// that need bulk invalidation must enumerate and forget keys explicitly.
type Store interface {
	// Has reports whether a live entry exists for the key.
	Has(key string) bool

	// Get returns the value for the key, or false if absent or expired.
	Get(key string) (any, bool)

	// Put stores the value under the key for the given TTL, unconditionally
	// overwriting any prior value and expiry.
	Put(key string, value any, ttl time.Duration) error

	// Forget removes the entry for the key, if present.
	Forget(key string) error
}

type entry struct {
	value     any
	expiresAt time.Time
}

// MemoryStore is an in-process Store implementation. Expired entries are
// dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Has reports whether a live entry exists for the key.
func (s *MemoryStore) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get returns the value for the key. An entry is never returned after its
// expiry.
func (s *MemoryStore) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Put stores the value under the key, overwriting any prior entry.
func (s *MemoryStore) Put(key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Forget removes the entry for the key.
func (s *MemoryStore) Forget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries, including any not yet reaped.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
