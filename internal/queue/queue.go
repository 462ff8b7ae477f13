// Package queue provides a bounded, blocking FIFO shared by producers and
// the duplication workers.
//
// Push drops the item once the drop threshold is reached. PushFront is the
// priority path: it always succeeds, evicting the tail when the queue is
// full. Pop blocks until an item is available.
package queue

import "sync"

const minCapacity = 16

// Counters is a snapshot of the queue throughput since the previous read
type Counters struct {
	In   int64
	Out  int64
	Drop int64
}

// Queue is a thread-safe FIFO with head insertion and drop-on-full
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	buf   []T
	head  int
	count int

	dropThreshold int

	in   int64
	out  int64
	drop int64
}

// New creates a queue. A dropThreshold of 0 means unbounded.
func New[T any](dropThreshold int) *Queue[T] {
	q := &Queue[T]{dropThreshold: dropThreshold}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends item at the tail. It returns false when the queue was at its
// drop threshold and the item was discarded.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.dropThreshold > 0 && q.count >= q.dropThreshold {
		q.drop++
		q.mu.Unlock()
		return false
	}
	q.pushBack(item)
	q.in++
	q.mu.Unlock()

	q.notEmpty.Signal()
	return true
}

// PushFront inserts item at the head so it is popped before anything already
// queued. When the queue is full the tail item is evicted and counted as a
// drop.
func (q *Queue[T]) PushFront(item T) {
	q.mu.Lock()
	if q.dropThreshold > 0 && q.count >= q.dropThreshold {
		q.popBack()
		q.drop++
	}
	q.pushFront(item)
	q.in++
	q.mu.Unlock()

	q.notEmpty.Signal()
}

// Pop removes and returns the head item, blocking while the queue is empty
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 {
		q.notEmpty.Wait()
	}
	item := q.popFront()
	q.out++
	return item
}

// Size returns the current length. The value may be stale as soon as it is
// returned.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// SetDropThreshold changes the depth at which Push starts dropping; 0
// disables dropping.
func (q *Queue[T]) SetDropThreshold(n int) {
	if n < 0 {
		n = 0
	}
	q.mu.Lock()
	q.dropThreshold = n
	q.mu.Unlock()
}

// DropThreshold returns the configured drop threshold
func (q *Queue[T]) DropThreshold() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropThreshold
}

// GetAndResetCounters returns the in/out/drop counters and zeroes them
func (q *Queue[T]) GetAndResetCounters() Counters {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := Counters{In: q.in, Out: q.out, Drop: q.drop}
	q.in, q.out, q.drop = 0, 0, 0
	return c
}

// RemoveFunc removes every queued item for which match returns true and
// reports how many were removed. Relative order of the rest is kept.
// Removed items are not counted as drops.
func (q *Queue[T]) RemoveFunc(match func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]T, 0, max(len(q.buf), minCapacity))
	removed := 0
	for i := 0; i < q.count; i++ {
		item := q.buf[(q.head+i)%len(q.buf)]
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.buf = kept[:cap(kept)]
	q.head = 0
	q.count = len(kept)
	return removed
}

func (q *Queue[T]) grow() {
	if q.count < len(q.buf) {
		return
	}
	buf := make([]T, max(2*len(q.buf), minCapacity))
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}

func (q *Queue[T]) pushBack(item T) {
	q.grow()
	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
}

func (q *Queue[T]) pushFront(item T) {
	q.grow()
	q.head = (q.head - 1 + len(q.buf)) % len(q.buf)
	q.buf[q.head] = item
	q.count++
}

func (q *Queue[T]) popFront() T {
	var zero T
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return item
}

func (q *Queue[T]) popBack() {
	var zero T
	idx := (q.head + q.count - 1) % len(q.buf)
	q.buf[idx] = zero
	q.count--
}
