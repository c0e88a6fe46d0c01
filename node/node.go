// Package node defines the node lifecycle, parameter binding, logging, and
// control-channel contract every graph vertex implements.
package node

import (
	"context"
	"time"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/logging"
	"github.com/speechflow/speechflow/metrics"
	"github.com/speechflow/speechflow/stream"
	"github.com/speechflow/speechflow/tracing"
	"go.opentelemetry.io/otel/trace"
)

// State is a node's lifecycle phase.
type State int

const (
	Constructed State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "constructed"
	}
}

// LogLevel is one of the four levels a node may log at.
type LogLevel string

const (
	Debug   LogLevel = "debug"
	Info    LogLevel = "info"
	Warning LogLevel = "warning"
	ErrorLv LogLevel = "error"
)

// Node is the capability interface every graph vertex satisfies; concrete
// kinds embed *Base rather than extending a class hierarchy. This package
// has no name-to-constructor registry: callers construct nodes directly.
type Node interface {
	ID() string
	Input() chunk.Kind
	Output() chunk.Kind
	State() State
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Stream() *stream.Stream
	Status(ctx context.Context) (map[string]any, error)
	ReceiveRequest(ctx context.Context, params []any) error
}

// OpenFunc/CloseFunc are the hooks a concrete node supplies;
// Base wires them into the lifecycle, stream, and side channels.
type OpenFunc func(ctx context.Context, b *Base) error
type CloseFunc func(ctx context.Context, b *Base) error

// Base is the shared node implementation: lifecycle state, bound
// parameters, graph-wide config, the stream handle, and the
// logging/dashboard side channels. Concrete node kinds embed *Base.
type Base struct {
	id     string
	input  chunk.Kind
	output chunk.Kind

	schema *config.ParamSchema
	params map[string]any
	cfg    *config.Graph

	state State
	strm  *stream.Stream

	emitter *events.Emitter
	metrics *metrics.Registry
	tracer  *tracing.Tracer

	openFn  OpenFunc
	closeFn CloseFunc

	highWatermark int
}

// New constructs a Base in the Constructed state. Parameter binding happens
// immediately against the positional/named arguments, so a bad value fails
// construction rather than surfacing later at Open.
func New(id string, input, output chunk.Kind, schema *config.ParamSchema, cfg *config.Graph, positional []any, named map[string]any, emitter *events.Emitter) (*Base, error) {
	b := &Base{
		id:            id,
		input:         input,
		output:        output,
		schema:        schema,
		cfg:           cfg,
		state:         Constructed,
		emitter:       emitter,
		highWatermark: 1,
	}
	if schema != nil {
		bound, err := schema.Bind(positional, named)
		if err != nil {
			return nil, err
		}
		b.params = bound
	}
	return b, nil
}

// WithHighWatermark overrides the stream's backpressure depth before Open.
func (b *Base) WithHighWatermark(n int) *Base {
	b.highWatermark = n
	return b
}

// WithMetrics attaches a Prometheus registry that this node's open-duration
// histogram is recorded against.
func (b *Base) WithMetrics(reg *metrics.Registry) *Base {
	b.metrics = reg
	return b
}

// WithTracer attaches the tracer used to span this node's open/close calls.
func (b *Base) WithTracer(tr *tracing.Tracer) *Base {
	b.tracer = tr
	return b
}

// WithOpen/WithClose register the concrete node's resource-acquisition and
// release hooks, invoked by Open/Close around stream construction/teardown.
func (b *Base) WithOpen(fn OpenFunc) *Base   { b.openFn = fn; return b }
func (b *Base) WithClose(fn CloseFunc) *Base { b.closeFn = fn; return b }

func (b *Base) ID() string             { return b.id }
func (b *Base) Input() chunk.Kind      { return b.input }
func (b *Base) Output() chunk.Kind     { return b.output }
func (b *Base) State() State           { return b.state }
func (b *Base) Stream() *stream.Stream { return b.strm }
func (b *Base) Config() *config.Graph  { return b.cfg }

// Param returns a bound parameter value by name.
func (b *Base) Param(name string) (any, bool) {
	v, ok := b.params[name]
	return v, ok
}

// Open constructs the stream handle, then acquires external resources via
// the registered OpenFunc (which may start the stream's transform). If the
// OpenFunc fails the stream handle is discarded. Calling Open twice on an already-open node
// is a configuration error; the lifecycle only moves
// constructed -> open -> closed.
func (b *Base) Open(ctx context.Context) error {
	if b.state != Constructed {
		return errs.New(b.id, "open", errs.Configuration, errWrongState(b.state))
	}
	b.strm = stream.New(b.highWatermark)
	start := time.Now()

	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.StartNodeSpan(ctx, b.id, "open")
	}
	var err error
	if b.openFn != nil {
		err = b.openFn(ctx, b)
	}
	if b.tracer != nil {
		tracing.EndWithError(span, err)
	}
	if err != nil {
		b.strm = nil
		return errs.Ensure(err, b.id+"/open")
	}
	if b.metrics != nil {
		b.metrics.NodeOpenDuration.WithLabelValues(b.id).Observe(time.Since(start).Seconds())
	}
	b.state = Open
	logging.NodeOpened(b.id, b.input.String(), b.output.String())
	b.emitter.NodeOpened(b.id, b.input.String(), b.output.String())
	return nil
}

// Close destroys the stream and releases resources via the registered
// CloseFunc. Idempotent: closing an already-closed node is a silent no-op,
// never an error. A node that was never opened still runs its CloseFunc
// and moves to Closed.
func (b *Base) Close(ctx context.Context) error {
	if b.state == Closed {
		return nil
	}
	if b.strm != nil {
		b.strm.Destroy()
	}

	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.StartNodeSpan(ctx, b.id, "close")
	}
	var err error
	if b.closeFn != nil {
		err = b.closeFn(ctx, b)
	}
	if b.tracer != nil {
		tracing.EndWithError(span, err)
	}
	b.state = Closed
	logging.NodeClosed(b.id, err)
	b.emitter.NodeClosed(b.id, err)
	return err
}

// Status is a one-shot health/usage report; the default reports only the
// node's id and lifecycle state, concrete
// nodes may shadow this via composition if they need richer reporting.
func (b *Base) Status(ctx context.Context) (map[string]any, error) {
	return map[string]any{"id": b.id, "state": b.state.String()}, nil
}

// ReceiveRequest is the default no-op control-plane handler; concrete
// nodes that accept live parameter changes override this behavior.
func (b *Base) ReceiveRequest(ctx context.Context, params []any) error {
	return nil
}

// SendResponse replies to a control-channel request over the dashboard bus.
func (b *Base) SendResponse(params []any) {
	b.emitter.SendResponse(b.id, params)
}

// SendDashboard publishes an out-of-band status payload for dashboards.
func (b *Base) SendDashboard(kind, target, finality string, value any) {
	b.emitter.SendDashboard(b.id, kind, target, finality, value)
}

// Log emits a leveled log line tagged with this node's id.
func (b *Base) Log(level LogLevel, msg string, attrs ...any) {
	all := append([]any{"node_id", b.id}, attrs...)
	switch level {
	case Debug:
		logging.Debug(msg, all...)
	case Warning:
		logging.Warn(msg, all...)
	case ErrorLv:
		logging.Error(msg, all...)
	default:
		logging.Info(msg, all...)
	}
}

type errWrongState State

func (e errWrongState) Error() string {
	return "cannot open node from state " + State(e).String()
}
