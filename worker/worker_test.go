package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechflow/speechflow/cache"
	"github.com/speechflow/speechflow/config"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/metrics"
	"github.com/speechflow/speechflow/worker"
)

// echoScript is a tiny shell worker that implements just enough of the
// protocol to exercise the parent side: replies "ready" to "open", echoes
// an id-correlated "process-done" for every "process", and exits 0 on
// "close".
const echoScript = `
while IFS= read -r line; do
  case "$line" in
    *'"type":"open"'*) echo '{"type":"ready"}' ;;
    *'"type":"process"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      echo "{\"type\":\"process-done\",\"id\":$id,\"data\":\"ok\"}"
      ;;
    *'"type":"close"'*) exit 0 ;;
  esac
done
`

const hangScript = `sleep 5`

const dieOnProcessScript = `
while IFS= read -r line; do
  case "$line" in
    *'"type":"open"'*) echo '{"type":"ready"}' ;;
    *'"type":"process"'*) exit 1 ;;
  esac
done
`

func newShellWorker(script string, emitter *events.Emitter) *worker.Worker {
	return worker.New(worker.Config{
		ID:      "test-worker",
		Command: "/bin/sh",
		Args:    []string{"-c", script},
	}, emitter)
}

func TestOpenProcessCloseRoundTrip(t *testing.T) {
	w := newShellWorker(echoScript, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Open(ctx))

	res, err := w.Process(ctx, json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(res))

	require.NoError(t, w.Close(ctx))
}

func TestConcurrentProcessCallsCorrelateByID(t *testing.T) {
	w := newShellWorker(echoScript, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Open(ctx))

	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := w.Process(ctx, json.RawMessage(`"x"`))
			results <- err
		}()
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, <-results)
	}

	require.NoError(t, w.Close(ctx))
}

func TestOpenTimesOutWhenWorkerNeverReady(t *testing.T) {
	w := worker.New(worker.Config{
		ID:          "hangs",
		Command:     "/bin/sh",
		Args:        []string{"-c", hangScript},
		InitTimeout: 100 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.Open(ctx)
	assert.Error(t, err)
}

func TestOpenRecordsModelLoadInCacheOnce(t *testing.T) {
	dir := t.TempDir()
	c, err := cache.New(&config.Graph{CacheBackend: config.CacheBackendLocal, CacheDir: dir})
	require.NoError(t, err)

	w := worker.New(worker.Config{
		ID:      "test-worker",
		Command: "/bin/sh",
		Args:    []string{"-c", echoScript},
		ModelID: "whisper-base",
		Cache:   c,
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Close(ctx))

	rec, found, err := cache.GetRecord(ctx, c, "whisper-base")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "whisper-base", rec.ModelID)
}

func TestAbnormalExitFailsPendingProcessCalls(t *testing.T) {
	emitter := events.NewEmitter(events.NewBus(), "run-1")
	w := newShellWorker(dieOnProcessScript, emitter)
	reg := metrics.NewRegistry()
	w.WithMetrics(reg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, w.Open(ctx))

	_, err := w.Process(ctx, json.RawMessage(`"boom"`))
	assert.Error(t, err)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.WorkerFailures.WithLabelValues("test-worker")) == 1
	}, time.Second, 10*time.Millisecond)
}
