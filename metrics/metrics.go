// Package metrics exports Prometheus counters/histograms for graph and
// worker activity. Attaching a Registry is optional; components that take
// one via WithMetrics run unchanged without it.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this runtime exports, registered against a
// private prometheus.Registry so multiple Runtimes in one process (tests,
// multi-graph hosts) don't collide on the default global registry.
type Registry struct {
	registry *prometheus.Registry

	ChunksProcessed  *prometheus.CounterVec
	NodeOpenDuration *prometheus.HistogramVec
	FillerGaps       prometheus.Counter
	FillerDrops      *prometheus.CounterVec
	WorkerFailures   *prometheus.CounterVec
}

// NewRegistry builds and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		ChunksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechflow",
			Name:      "chunks_processed_total",
			Help:      "Number of chunks processed per node.",
		}, []string{"node_id", "kind"}),
		NodeOpenDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "speechflow",
			Name:      "node_open_duration_seconds",
			Help:      "Latency of node open() calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_id"}),
		FillerGaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "speechflow",
			Name:      "filler_gaps_total",
			Help:      "Number of synthetic silence chunks inserted by the filler.",
		}),
		FillerDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechflow",
			Name:      "filler_drops_total",
			Help:      "Number of chunks dropped by the filler, by reason.",
		}, []string{"reason"}),
		WorkerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speechflow",
			Name:      "worker_failures_total",
			Help:      "Number of auxiliary worker process failures.",
		}, []string{"worker_id"}),
	}
}

// Serve starts an HTTP listener exposing /metrics and blocks until ctx is
// cancelled or the listener fails.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
