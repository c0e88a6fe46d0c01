package node_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/speechflow/speechflow/chunk"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/metrics"
	"github.com/speechflow/speechflow/node"
	"github.com/speechflow/speechflow/tracing"
)

func TestOpenCloseLifecycle(t *testing.T) {
	bus := events.NewBus()
	emitter := events.NewEmitter(bus, "run-1")

	b, err := node.New("n1", chunk.KindAudio, chunk.KindText, nil, config.DefaultGraph(), nil, nil, emitter)
	require.NoError(t, err)
	assert.Equal(t, node.Constructed, b.State())

	require.NoError(t, b.Open(context.Background()))
	assert.Equal(t, node.Open, b.State())

	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, node.Closed, b.State())

	// closing twice is a no-op, not an error
	require.NoError(t, b.Close(context.Background()))
}

func TestOpenFromNonConstructedStateFails(t *testing.T) {
	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Open(context.Background()))

	err = b.Open(context.Background())
	assert.Error(t, err)
}

func TestOpenFnFailureLeavesNodeConstructed(t *testing.T) {
	boom := errors.New("device busy")
	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	b.WithOpen(func(ctx context.Context, b *node.Base) error { return boom })

	err = b.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, node.Constructed, b.State())
	assert.Nil(t, b.Stream())
}

func TestParamBindingAtConstruction(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "fixture",
		Params: []config.Param{
			{Name: "rate", Type: config.ParamNumber, Default: 16000.0},
		},
	}
	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, schema, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)

	v, ok := b.Param("rate")
	require.True(t, ok)
	assert.Equal(t, 16000.0, v)
}

func TestBadParamFailsConstruction(t *testing.T) {
	schema := &config.ParamSchema{
		NodeKind: "fixture-2",
		Params: []config.Param{
			{Name: "label", Type: config.ParamString, Match: "^[a-z]+$"},
		},
	}
	_, err := node.New("n1", chunk.KindText, chunk.KindText, schema, config.DefaultGraph(), nil,
		map[string]any{"label": "BAD"}, nil)
	assert.Error(t, err)
}

func TestOpenRecordsNodeOpenDurationMetric(t *testing.T) {
	reg := metrics.NewRegistry()
	assert.Equal(t, 0, testutil.CollectAndCount(reg.NodeOpenDuration))

	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	b.WithMetrics(reg)

	require.NoError(t, b.Open(context.Background()))

	assert.Equal(t, 1, testutil.CollectAndCount(reg.NodeOpenDuration))
}

func TestOpenAndCloseRecordSpansWhenTracerAttached(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracing.Configure(tp)

	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	b.WithTracer(tracing.New())

	require.NoError(t, b.Open(context.Background()))
	require.NoError(t, b.Close(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "n1.open", spans[0].Name)
	assert.Equal(t, "n1.close", spans[1].Name)
}

func TestDashboardAndResponseSideChannels(t *testing.T) {
	bus := events.NewBus()
	emitter := events.NewEmitter(bus, "run-1")
	got := make(chan *events.Event, 2)
	bus.SubscribeAll(func(e *events.Event) { got <- e })

	b, err := node.New("meter", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, emitter)
	require.NoError(t, err)

	b.SendDashboard("meter", "speaker", "final", -23.0)
	b.SendResponse([]any{"ok"})

	seen := map[events.Type]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-got:
			seen[e.Type] = true
		case <-time.After(time.Second):
			t.Fatal("side-channel event never arrived")
		}
	}
	assert.True(t, seen[events.Dashboard])
	assert.True(t, seen[events.Response])
}

func TestStatusAndReceiveRequestDefaults(t *testing.T) {
	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)

	st, err := b.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "constructed", st["state"])

	require.NoError(t, b.ReceiveRequest(context.Background(), []any{"mute", true}))
}

func TestCloseRunsCloseFuncAfterOpen(t *testing.T) {
	var closed bool
	b, err := node.New("n1", chunk.KindAudio, chunk.KindAudio, nil, config.DefaultGraph(), nil, nil, nil)
	require.NoError(t, err)
	b.WithClose(func(ctx context.Context, b *node.Base) error { closed = true; return nil })

	require.NoError(t, b.Open(context.Background()))
	require.NoError(t, b.Close(context.Background()))
	assert.True(t, closed)
}
