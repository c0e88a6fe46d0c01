package graph_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/graph"
	"github.com/speechflow/speechflow/metrics"
	"github.com/speechflow/speechflow/node"
	"github.com/speechflow/speechflow/stream"
)

// textNode is a minimal text->text node used to exercise the runtime: it
// embeds *node.Base and runs a caller-supplied transform for its lifetime.
type textNode struct {
	*node.Base
	transform stream.TransformFunc
	done      chan error
}

func newTextNode(id string, transform stream.TransformFunc) *textNode {
	b, err := node.New(id, chunk.KindText, chunk.KindText, nil, config.DefaultGraph(), nil, nil, nil)
	if err != nil {
		panic(err)
	}
	n := &textNode{Base: b, transform: transform, done: make(chan error, 1)}
	b.WithOpen(func(ctx context.Context, b *node.Base) error {
		go func() { n.done <- b.Stream().Run(ctx, n.transform) }()
		return nil
	})
	return n
}

func upper(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
	out := in.Clone()
	out.Text = strings.ToUpper(out.Text)
	push(out)
	return nil
}

func identity(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
	push(in)
	return nil
}

func buildLinearGraph(t *testing.T) (*graph.Graph, *textNode, *textNode) {
	t.Helper()
	a := newTextNode("a", identity)
	b := newTextNode("b", upper)

	g, err := graph.NewBuilder().Chain(a, b).Build()
	require.NoError(t, err)
	return g, a, b
}

func TestRuntimeRunPumpsChunksThroughChain(t *testing.T) {
	g, a, _ := buildLinearGraph(t)
	rt, err := graph.NewRuntime(g, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, rt.Open(ctx))

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	require.NoError(t, a.Stream().Write(ctx, chunk.NewText(0, 0, chunk.Final, "hi", nil)))
	require.NoError(t, a.Stream().Write(ctx, nil))

	require.NoError(t, <-runErrCh)
	require.NoError(t, rt.Close(ctx))
}

func TestRuntimeRecordsChunksProcessedMetric(t *testing.T) {
	g, a, _ := buildLinearGraph(t)
	reg := metrics.NewRegistry()
	rt, err := graph.NewRuntime(g, nil)
	require.NoError(t, err)
	rt.WithMetrics(reg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, rt.Open(ctx))
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	require.NoError(t, a.Stream().Write(ctx, chunk.NewText(0, 0, chunk.Final, "hi", nil)))
	require.NoError(t, a.Stream().Write(ctx, nil))

	require.NoError(t, <-runErrCh)
	require.NoError(t, rt.Close(ctx))

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.ChunksProcessed.WithLabelValues("a", "text")))
}

func TestServeMetricsIsNoopWithoutRegistry(t *testing.T) {
	g, _, _ := buildLinearGraph(t)
	rt, err := graph.NewRuntime(g, nil)
	require.NoError(t, err)

	assert.NoError(t, rt.ServeMetrics(context.Background(), ":0"))
}

func TestBuildRejectsIncompatibleKinds(t *testing.T) {
	textN := newTextNode("t", identity)
	bAudio, err := node.New("audio-sink", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	audioN := &textNode{Base: bAudio, transform: identity, done: make(chan error, 1)}

	_, err = graph.NewBuilder().Chain(textN, audioN).Build()
	assert.Error(t, err)
}

func TestBuildRejectsNoneKindOnInternalEdge(t *testing.T) {
	a := newTextNode("a", identity)
	sinkBase, err := node.New("sink", chunk.KindText, chunk.KindNone, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	sink := &textNode{Base: sinkBase, transform: identity, done: make(chan error, 1)}
	c := newTextNode("c", identity)

	// a sink's none output must terminate the chain, not feed another node
	_, err = graph.NewBuilder().Chain(a, sink, c).Build()
	assert.Error(t, err)
}

func TestBuildRejectsCycle(t *testing.T) {
	a := newTextNode("a", identity)
	b := newTextNode("b", identity)

	_, err := graph.NewBuilder().AddNode(a).AddNode(b).Connect("a", "b").Connect("b", "a").Build()
	assert.Error(t, err)
}

func TestBuildRejectsUnknownEdgeTarget(t *testing.T) {
	a := newTextNode("a", identity)
	_, err := graph.NewBuilder().AddNode(a).Connect("a", "ghost").Build()
	assert.Error(t, err)
}

func TestNewRuntimeRejectsBranching(t *testing.T) {
	a := newTextNode("a", identity)
	b := newTextNode("b", identity)
	c := newTextNode("c", identity)

	g, err := graph.NewBuilder().AddNode(a).AddNode(b).AddNode(c).Branch("a", "b", "c").Build()
	require.NoError(t, err)

	_, err = graph.NewRuntime(g, nil)
	assert.Error(t, err)
}

func TestRunSurfacesTransformFailureAsCause(t *testing.T) {
	boom := errors.New("bad chunk")
	a := newTextNode("a", identity)
	b := newTextNode("b", func(ctx context.Context, in *chunk.Chunk, push func(*chunk.Chunk) bool) error {
		return boom
	})
	c := newTextNode("c", identity)

	g, err := graph.NewBuilder().Chain(a, b, c).Build()
	require.NoError(t, err)
	rt, err := graph.NewRuntime(g, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, rt.Open(ctx))
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	require.NoError(t, a.Stream().Write(ctx, chunk.NewText(0, 0, chunk.Final, "hi", nil)))

	runErr := <-runErrCh
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, boom)
	assert.NotErrorIs(t, runErr, context.Canceled)
	require.NoError(t, rt.Close(ctx))
}

func TestOpenRollsBackOnFailure(t *testing.T) {
	a := newTextNode("a", identity)
	bBase, err := node.New("b", chunk.KindText, chunk.KindText, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	var aClosed bool
	a.WithClose(func(ctx context.Context, base *node.Base) error { aClosed = true; return nil })
	bBase.WithOpen(func(ctx context.Context, b *node.Base) error {
		return assertErr{}
	})
	b := &textNode{Base: bBase, transform: identity, done: make(chan error, 1)}

	g, err := graph.NewBuilder().Chain(a, b).Build()
	require.NoError(t, err)
	rt, err := graph.NewRuntime(g, events.NewEmitter(events.NewBus(), "run"))
	require.NoError(t, err)

	err = rt.Open(context.Background())
	require.Error(t, err)
	assert.True(t, aClosed)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
