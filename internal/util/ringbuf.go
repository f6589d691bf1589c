package util

import "sync"

// Ring is a fixed-capacity circular buffer holding the most recent items.
// Append overwrites the oldest item once full. Safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	count int
}

// NewRing creates a ring holding up to capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest if the ring is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	r.items[(r.head+r.count)%len(r.items)] = item
	if r.count == len(r.items) {
		r.head = (r.head + 1) % len(r.items)
	} else {
		r.count++
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the contents, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.count)
	for i := range out {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Len returns the number of items currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
