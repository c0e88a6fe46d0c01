package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/logging"
	"github.com/speechflow/speechflow/metrics"
	"github.com/speechflow/speechflow/node"
)

// DefaultCloseTimeout bounds how long Close waits for each node in turn.
const DefaultCloseTimeout = 10 * time.Second

// Runtime executes a validated, linearized Graph: it opens nodes
// producer-first, pumps chunks end-to-end between adjacent streams, and
// closes nodes in reverse order on completion or failure.
type Runtime struct {
	graph        *Graph
	emitter      *events.Emitter
	metrics      *metrics.Registry
	closeTimeout time.Duration

	mu     sync.Mutex
	opened []node.Node // nodes successfully opened, in open order
	chain  []node.Node
}

// NewRuntime builds a Runtime for g. g must linearize to a single chain
// (see Graph.linearize); a branching or merging topology is a configuration
// error surfaced here rather than at Run time.
func NewRuntime(g *Graph, emitter *events.Emitter) (*Runtime, error) {
	chain, err := g.linearize()
	if err != nil {
		return nil, err
	}
	return &Runtime{graph: g, emitter: emitter, chain: chain, closeTimeout: DefaultCloseTimeout}, nil
}

// WithCloseTimeout overrides the per-node close deadline.
func (r *Runtime) WithCloseTimeout(d time.Duration) *Runtime {
	r.closeTimeout = d
	return r
}

// WithMetrics attaches a Prometheus registry that per-edge chunk throughput
// is recorded against.
func (r *Runtime) WithMetrics(reg *metrics.Registry) *Runtime {
	r.metrics = reg
	return r
}

// ServeMetrics starts an HTTP listener exposing the attached registry's
// /metrics endpoint, blocking until ctx is cancelled. It is a no-op
// returning nil if no registry was attached via WithMetrics.
func (r *Runtime) ServeMetrics(ctx context.Context, addr string) error {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.Serve(ctx, addr)
}

// Open opens every node in the chain producer-first (source to sink). If any
// node fails to open, every already-opened node is closed in reverse order
// before the error is returned.
func (r *Runtime) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.chain {
		if err := n.Open(ctx); err != nil {
			wrapped := errs.Ensure(err, "open "+n.ID())
			if r.emitter != nil {
				r.emitter.GraphFailed(wrapped)
			}
			r.rollbackLocked()
			return wrapped
		}
		r.opened = append(r.opened, n)
	}
	return nil
}

func (r *Runtime) rollbackLocked() {
	for i := len(r.opened) - 1; i >= 0; i-- {
		closeCtx, cancel := context.WithTimeout(context.Background(), r.closeTimeout)
		_ = r.opened[i].Close(closeCtx)
		cancel()
	}
	r.opened = nil
}

// Run composes every adjacent pair of streams in the chain and blocks until
// the last node's stream reaches EOF, a transform fails, or ctx is
// cancelled. It does not open or close nodes; call Open first and Close
// after.
func (r *Runtime) Run(ctx context.Context) error {
	if len(r.chain) == 0 {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	pumpErrs := make(chan error, len(r.chain))

	for i := 0; i < len(r.chain)-1; i++ {
		up, down := r.chain[i], r.chain[i+1]
		wg.Add(1)
		go func(up, down node.Node) {
			defer wg.Done()
			if err := pump(runCtx, up, down, r.metrics); err != nil {
				pumpErrs <- err
				cancel()
			}
		}(up, down)
	}

	sinkErr := drainSink(runCtx, r.chain[len(r.chain)-1])

	wg.Wait()
	close(pumpErrs)

	all := []error{sinkErr}
	for err := range pumpErrs {
		all = append(all, err)
	}
	if cause := primaryCause(all); cause != nil {
		r.reportFailure(cause)
		return cause
	}
	if r.emitter != nil {
		r.emitter.GraphCompleted()
	}
	return nil
}

// primaryCause picks the first failure that is not a cancellation echo: when
// one edge fails, the runtime cancels the shared context and every other
// edge surfaces context.Canceled, which must not mask the real cause.
func primaryCause(all []error) error {
	var cancelled error
	for _, err := range all {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	return cancelled
}

func (r *Runtime) reportFailure(err error) {
	logging.GraphFailed(err)
	if r.emitter != nil {
		r.emitter.GraphFailed(err)
	}
}

// pump relays chunks from up's stream into down's stream until EOF, an
// error, or cancellation.
func pump(ctx context.Context, up, down node.Node, reg *metrics.Registry) error {
	for {
		c, err := up.Stream().Read(ctx)
		if err != nil {
			return errs.Ensure(err, up.ID()+"->"+down.ID())
		}
		if c == nil {
			return down.Stream().Write(ctx, nil)
		}
		if reg != nil {
			reg.ChunksProcessed.WithLabelValues(up.ID(), c.Kind.String()).Inc()
		}
		if err := down.Stream().Write(ctx, c); err != nil {
			return errs.Ensure(err, up.ID()+"->"+down.ID())
		}
	}
}

// drainSink reads the terminal node's stream to completion, discarding
// chunks a pure sink produces (if any), until EOF or error.
func drainSink(ctx context.Context, sink node.Node) error {
	for {
		c, err := sink.Stream().Read(ctx)
		if err != nil {
			return errs.Ensure(err, sink.ID())
		}
		if c == nil {
			return nil
		}
	}
}

// Close closes every opened node in reverse order, bounding each with
// closeTimeout. It collects and returns the first non-nil error but always
// attempts every node.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for i := len(r.opened) - 1; i >= 0; i-- {
		closeCtx, cancel := context.WithTimeout(ctx, r.closeTimeout)
		if err := r.opened[i].Close(closeCtx); err != nil && first == nil {
			first = err
		}
		cancel()
	}
	r.opened = nil
	return first
}
