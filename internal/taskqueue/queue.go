// Package taskqueue provides an unbounded FIFO used to hand work to a single
// consumer goroutine without ever blocking the producer.
package taskqueue

import (
	"sync"
	"sync/atomic"
)

// Queue is an unbounded FIFO queue.
//
// Producers call Enqueue from any goroutine; one consumer drains it with
// Dequeue. The signaling event loop, the transport writer and the peer
// connection worker are all built on it.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	items    []T

	drops atomic.Uint64
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// DropCount reports how many items were rejected because the queue was closed.
func (q *Queue[T]) DropCount() uint64 {
	return q.drops.Load()
}

// Enqueue appends item to the queue. It never blocks and returns false once
// the queue has been closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drops.Add(1)
		return false
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until an item is available or the queue is closed.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards pending items and wakes the consumer. Items that were still
// queued are counted as drops.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.drops.Add(uint64(len(q.items)))
		q.items = nil
	}
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}
