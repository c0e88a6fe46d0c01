package async

// AsyncQueue has the same FIFO rendezvous semantics as SingleQueue, but is
// intended for high-volume producers and treats a nil pointer value as an
// in-band EOF marker: consumers should stop reading once they receive it.
type AsyncQueue[T any] struct {
	inner *SingleQueue[*T]
}

// NewAsyncQueue constructs an empty queue.
func NewAsyncQueue[T any]() *AsyncQueue[T] {
	return &AsyncQueue[T]{inner: NewSingleQueue[*T]()}
}

// Write enqueues a value. Passing nil signals EOF to whoever reads it.
func (q *AsyncQueue[T]) Write(v *T) {
	q.inner.Write(v)
}

// Read returns the next value, or nil if the producer signalled EOF, or an
// error if the queue was destroyed first.
func (q *AsyncQueue[T]) Read() (*T, error) {
	return q.inner.Read()
}

// Destroy rejects pending reads and drops further writes.
func (q *AsyncQueue[T]) Destroy() {
	q.inner.Destroy()
}
