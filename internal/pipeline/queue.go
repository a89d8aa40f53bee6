package pipeline

import (
	"context"
	"sync"
)

// dropQueue is a bounded FIFO with a drop-oldest overflow policy. Any number
// of consumers may Pop concurrently; the VAD stage is the only producer.
type dropQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	// notify carries one wake-up token. Consumers that take an item from a
	// non-empty queue pass the token on.
	notify chan struct{}
	done   chan struct{}
}

func newDropQueue[T any](capacity int) *dropQueue[T] {
	return &dropQueue[T]{
		items:    make([]T, 0, capacity),
		capacity: max(capacity, 1),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends v. When the queue is full the oldest item is removed and
// returned with dropped set. Push on a closed queue discards v.
func (q *dropQueue[T]) Push(v T) (old T, dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return v, true
	}
	if len(q.items) >= q.capacity {
		old, dropped = q.items[0], true
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return old, dropped
}

// Pop blocks until an item is available. It returns false once the queue is
// closed and empty, or when ctx is done.
func (q *dropQueue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return v, true
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, false
		}
		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return zero, false
		}
	}
}

func (q *dropQueue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Close wakes all consumers; they drain what is left and then stop.
func (q *dropQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Drain removes and returns every queued item.
func (q *dropQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *dropQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
