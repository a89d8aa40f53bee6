package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Queue is a bounded buffer drained by a single goroutine. Push never
// blocks: when the buffer is full the item is dropped and counted. Network
// sinks use it to keep Emit non-blocking.
type Queue[T any] struct {
	name   string
	ch     chan T
	handle func(T)

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	done    chan struct{}
}

// NewQueue starts a drain goroutine calling handle for every pushed item.
// A capacity below 1 is raised to 1.
func NewQueue[T any](name string, capacity int, handle func(T)) *Queue[T] {
	q := &Queue[T]{
		name:   name,
		ch:     make(chan T, max(capacity, 1)),
		handle: handle,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue[T]) run() {
	defer close(q.done)
	for v := range q.ch {
		q.handle(v)
	}
}

// Push enqueues v. It reports false when v was dropped because the buffer
// is full or the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- v:
		return true
	default:
		n := q.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			slog.Warn("sink: buffer full, dropping output", "sink", q.name, "dropped", n)
		}
		return false
	}
}

// Dropped returns how many items were dropped on overflow.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting items and waits until the buffered ones are handled.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
