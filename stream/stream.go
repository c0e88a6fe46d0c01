// Package stream implements the uniform duplex handle every node exposes:
// object-mode channels of chunks with a configurable backpressure
// watermark, explicit EOF, error propagation, and graceful destroy.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/errs"
)

// TransformFunc consumes one input chunk and either pushes zero or more
// output chunks via push, or returns an error. push returning false means
// the stream is tearing down and the transform should stop.
type TransformFunc func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error

// Stream is a node's duplex handle. Both sides are in use for every node in
// a chain: a source node feeds its own input side and relays it through Run,
// and the runtime drains a sink node's output side until EOF.
type Stream struct {
	highWatermark int
	input         chan *chunk.Chunk
	output        chan *chunk.Chunk
	errCh         chan error

	closing   atomic.Bool
	closeOnce sync.Once
	destroyed chan struct{}
}

// New constructs a duplex handle. highWatermark is the object-mode
// backpressure depth (commonly 1 to enforce lockstep on heavy transforms).
func New(highWatermark int) *Stream {
	if highWatermark < 1 {
		highWatermark = 1
	}
	return &Stream{
		highWatermark: highWatermark,
		input:         make(chan *chunk.Chunk, highWatermark),
		output:        make(chan *chunk.Chunk, highWatermark),
		errCh:         make(chan error, 1),
		destroyed:     make(chan struct{}),
	}
}

// Write pushes a chunk to the stream's input side, blocking until there is
// room (the backpressure contract) or the stream is destroyed/the context
// is cancelled. A nil chunk signals end-of-stream.
func (s *Stream) Write(ctx context.Context, c *chunk.Chunk) error {
	if s.closing.Load() {
		return errs.Destroyed
	}
	select {
	case s.input <- c:
		return nil
	case <-s.destroyed:
		return errs.Destroyed
	case <-ctx.Done():
		return errs.New("stream", "write", errs.Stream, ctx.Err())
	}
}

// Read pops the next chunk from the stream's output side. A nil chunk
// with a nil error means end-of-stream.
func (s *Stream) Read(ctx context.Context) (*chunk.Chunk, error) {
	select {
	case c, ok := <-s.output:
		if !ok {
			// Run buffers a transform failure before closing output, so a
			// closed channel must not mask a pending error.
			select {
			case err := <-s.errCh:
				return nil, err
			default:
				return nil, nil
			}
		}
		return c, nil
	case err := <-s.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, errs.New("stream", "read", errs.Stream, ctx.Err())
	}
}

// Run drives input through transform and into output on the caller's
// goroutine until input is closed (EOF), transform fails, or the context
// is cancelled. Run always closes output before returning so readers
// observe EOF.
func (s *Stream) Run(ctx context.Context, transform TransformFunc) error {
	defer close(s.output)

	for {
		select {
		case in, ok := <-s.input:
			if !ok || in == nil {
				return nil
			}
			push := func(c *chunk.Chunk) bool {
				select {
				case s.output <- c:
					return true
				case <-ctx.Done():
					return false
				case <-s.destroyed:
					return false
				}
			}
			if err := transform(ctx, in, push); err != nil {
				wrapped := errs.Ensure(err, "transform")
				select {
				case s.errCh <- wrapped:
				default:
				}
				return wrapped
			}
		case <-ctx.Done():
			return nil
		case <-s.destroyed:
			return errs.Destroyed
		}
	}
}

// Destroy forces closure, safe to call more than once and safe to call
// while Run is mid-transform: pending and later Write calls return
// errs.Destroyed. Read has no destroyed case of its own; it reports
// end-of-stream once Run has stopped and closed the output side.
func (s *Stream) Destroy() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.destroyed)
	})
}
