package async

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// PromiseSet tracks a dynamic set of outstanding tasks. AwaitAll blocks
// until every task enrolled up to the point it is called has finished,
// swallowing individual task failures: callers must have observed those
// failures some other way (e.g. via the stream they originated on). Used
// by duplex readers to drain outstanding reads on shutdown.
//
// Enrolled tasks are run under an errgroup.Group so that draining reuses
// the same cancellation-friendly join primitive the rest of the runtime
// builds on, rather than a bare sync.WaitGroup.
type PromiseSet[T any] struct {
	mu sync.Mutex
	eg errgroup.Group
}

// NewPromiseSet constructs an empty set.
func NewPromiseSet[T any]() *PromiseSet[T] {
	return &PromiseSet[T]{}
}

// Add enrolls a task. The task function's result and error are discarded;
// PromiseSet only tracks completion, not outcome.
func (s *PromiseSet[T]) Add(task func() (T, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eg.Go(func() error {
		_, _ = task()
		return nil
	})
}

// AwaitAll blocks until every currently enrolled task has completed.
func (s *PromiseSet[T]) AwaitAll() {
	_ = s.eg.Wait()
}
