package buffer

import "sync"

// Queue is a thread-safe FIFO that doubles its capacity when it reaches
// 70% full. Producers never block.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	count  int
	closed bool

	pushed  int64
	drained int64
	grows   int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Queue[T]{items: make([]T, initialCapacity)}
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := len(q.items) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.items[(q.head+q.count)%len(q.items)] = item
	q.count++
	q.pushed++
	return true
}

// Pop removes the oldest item without blocking.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.drained++
	return item, true
}

// Drain removes up to max items (all if max <= 0) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	var zero T
	out := make([]T, n)
	for i := range out {
		out[i] = q.items[q.head]
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
	}
	q.count -= n
	q.drained += int64(n)
	return out
}

// Close rejects further pushes. Queued items remain drainable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:    q.count,
		Capacity: len(q.items),
		Pushed:   q.pushed,
		Drained:  q.drained,
		Grows:    q.grows,
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Drained  int64
	Grows    int
}

// grow doubles capacity and unwraps the ring. Caller holds the lock.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = next
	q.head = 0
	q.grows++
}
