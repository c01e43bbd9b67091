// Package slot provides a single-value, last-write-wins buffer.
package slot

import "sync"

// Slot holds at most one value. Every Store overwrites the previous value
// whether or not it has been consumed.
type Slot[T any] struct {
	mu    sync.Mutex
	val   T
	full  bool
	drops int
}

// Store overwrites the slot value with v.
func (s *Slot[T]) Store(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		s.drops++
	}
	s.val = v
	s.full = true
}

// Take returns the slot value and empties the slot.
// It returns false if nothing was stored since the last Take.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.val, s.full
	var zero T
	s.val = zero
	s.full = false

	return v, ok
}

// Peek returns the slot value without consuming it.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.val, s.full
}

// Dropped returns the number of values overwritten before they were taken.
func (s *Slot[T]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.drops
}
