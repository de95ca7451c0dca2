package buffer

import "sync"

// Ring is a thread-safe bounded history. When full, Push evicts the oldest
// entry.
type Ring[T any] struct {
	mu      sync.RWMutex
	items   []T
	start   int
	count   int
	evicted int64
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends item, evicting the oldest entry if the ring is full.
// Returns true if an entry was evicted.
func (r *Ring[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.items) {
		r.items[(r.start+r.count)%len(r.items)] = item
		r.count++
		return false
	}

	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
	r.evicted++
	return true
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.count)
	for i := range out {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// Update applies fn to entries in order until fn returns true.
// Returns whether any entry matched.
func (r *Ring[T]) Update(fn func(*T) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.count; i++ {
		if fn(&r.items[(r.start+i)%len(r.items)]) {
			return true
		}
	}
	return false
}

// RemoveFunc deletes every entry for which fn returns true and returns how
// many were removed.
func (r *Ring[T]) RemoveFunc(fn func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]T, 0, r.count)
	for i := 0; i < r.count; i++ {
		item := r.items[(r.start+i)%len(r.items)]
		if !fn(item) {
			kept = append(kept, item)
		}
	}

	removed := r.count - len(kept)
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	copy(r.items, kept)
	r.start = 0
	r.count = len(kept)
	return removed
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the maximum number of retained items.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Evicted returns how many entries have been dropped to make room.
func (r *Ring[T]) Evicted() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}
