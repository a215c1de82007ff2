// Package ttlcache provides a generic per-key TTL cache, generalizing the
// fixed-TTL sync.Map pattern the engine package used to remember a
// preferred engine per domain. Here each entry's expiry depends on the
// entry's own value, not a cache-wide constant — a failed endpoint and a
// healthy one can carry different TTLs in the same store.
package ttlcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a generic TTL-bounded key/value cache. TTLFor computes the
// expiry for a given value at the moment it is stored, so callers can
// make expiry a function of the value's own outcome (e.g. a failed probe
// expiring sooner than a successful one).
type Store[K comparable, V any] struct {
	mu     sync.Mutex
	data   map[K]entry[V]
	ttlFor func(V) time.Duration
	done   chan struct{}
	once   sync.Once
}

// New creates a Store whose entries expire according to ttlFor and starts
// a background goroutine that prunes expired entries every interval.
func New[K comparable, V any](ttlFor func(V) time.Duration, cleanupInterval time.Duration) *Store[K, V] {
	s := &Store[K, V]{
		data:   make(map[K]entry[V]),
		ttlFor: ttlFor,
		done:   make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Get returns the value for key and whether it is present and unexpired.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.data, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set records value for key, computing its TTL via ttlFor(value).
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(s.ttlFor(value)),
	}
}

// Delete removes key unconditionally.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns every currently unexpired key, in no particular order.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	keys := make([]K, 0, len(s.data))
	for k, e := range s.data {
		if now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns every currently unexpired entry, in no particular
// order, copied under one acquisition of the store lock.
func (s *Store[K, V]) Snapshot() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := make(map[K]V, len(s.data))
	for k, e := range s.data {
		if now.After(e.expiresAt) {
			continue
		}
		out[k] = e.value
	}
	return out
}

// Stop terminates the background cleanup goroutine. Safe to call more
// than once.
func (s *Store[K, V]) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Store[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for k, e := range s.data {
				if now.After(e.expiresAt) {
					delete(s.data, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
