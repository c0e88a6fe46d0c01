// Package async provides the runtime's coordination primitives: a FIFO
// rendezvous queue, an EOF-aware variant for high-volume producers, a
// drain-all promise set, and error-normalizing run wrappers. Every
// primitive carries its own mutex so FIFO pairing and drain semantics hold
// across goroutines.
package async

import (
	"sync"

	"github.com/speechflow/speechflow/errs"
)

// SingleQueue is a FIFO rendezvous queue: writes and reads pair up in call
// order regardless of which side arrives first. Values written before any
// reader is waiting are buffered (unbounded). Destroy rejects all pending
// and future reads with errs.Destroyed and silently drops further writes.
type SingleQueue[T any] struct {
	mu        sync.Mutex
	buffered  []T
	waiters   []chan result[T]
	destroyed bool
}

type result[T any] struct {
	value T
	err   error
}

// NewSingleQueue constructs an empty queue.
func NewSingleQueue[T any]() *SingleQueue[T] {
	return &SingleQueue[T]{}
}

// Write enqueues a value, pairing it with the oldest waiting reader if one
// exists. Writes after Destroy are silently dropped.
func (q *SingleQueue[T]) Write(v T) {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		w <- result[T]{value: v}
		return
	}
	q.buffered = append(q.buffered, v)
	q.mu.Unlock()
}

// Read returns the next value in FIFO order, blocking until one is
// available or the queue is destroyed.
func (q *SingleQueue[T]) Read() (T, error) {
	q.mu.Lock()
	if len(q.buffered) > 0 {
		v := q.buffered[0]
		q.buffered = q.buffered[1:]
		q.mu.Unlock()
		return v, nil
	}
	if q.destroyed {
		q.mu.Unlock()
		var zero T
		return zero, errs.Destroyed
	}
	ch := make(chan result[T], 1)
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	r := <-ch
	return r.value, r.err
}

// Destroy rejects every pending read with errs.Destroyed and marks the
// queue so future writes are dropped and future reads fail immediately.
// Safe to call more than once.
func (q *SingleQueue[T]) Destroy() {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.destroyed = true
	waiters := q.waiters
	q.waiters = nil
	q.buffered = nil
	q.mu.Unlock()

	var zero T
	for _, w := range waiters {
		w <- result[T]{value: zero, err: errs.Destroyed}
	}
}
