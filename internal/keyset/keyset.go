// Package keyset provides a mutex-guarded set of values deduplicated by an
// extracted key rather than by value equality.
package keyset

import "sync"

// Set holds at most one value of type T per key K. The key is derived from
// the value by the keyOf function supplied at construction, so T itself does
// not need to be comparable.
//
// Concurrency notes:
//   - Add is an atomic "add if absent": exactly one of any number of
//     concurrent Add calls carrying the same key returns true.
//   - All methods are safe for concurrent use.
type Set[T any, K comparable] struct {
	mu    sync.Mutex
	keyOf func(T) K
	m     map[K]T
}

// New constructs a Set using keyOf to derive the membership key of a value.
func New[T any, K comparable](keyOf func(T) K) *Set[T, K] {
	return &Set[T, K]{
		keyOf: keyOf,
		m:     make(map[K]T),
	}
}

// Add inserts v if no value with the same key is present.
// Returns true if v was inserted, false if the key was already occupied.
func (s *Set[T, K]) Add(v T) bool {
	k := s.keyOf(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = v
	return true
}

// Remove deletes the value stored under k, if any.
// Returns true if a value was removed.
func (s *Set[T, K]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	return true
}

// Contains reports whether a value with key k is present.
func (s *Set[T, K]) Contains(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	return ok
}

// Len returns the number of stored values.
func (s *Set[T, K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
