package logging

import "context"

type contextKey string

const (
	// ContextKeyGraphID identifies the graph run a log line belongs to.
	ContextKeyGraphID contextKey = "graph_id"
	// ContextKeyNodeID identifies the node emitting the log line.
	ContextKeyNodeID contextKey = "node_id"
	// ContextKeyWorkerID identifies the auxiliary worker process, if any.
	ContextKeyWorkerID contextKey = "worker_id"
	// ContextKeyRequestID identifies an individual control-channel request.
	ContextKeyRequestID contextKey = "request_id"
)

var allContextKeys = []contextKey{
	ContextKeyGraphID,
	ContextKeyNodeID,
	ContextKeyWorkerID,
	ContextKeyRequestID,
}

// WithGraphID returns a context tagged with the given graph run id.
func WithGraphID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyGraphID, id)
}

// WithNodeID returns a context tagged with the given node id.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyNodeID, id)
}

// WithWorkerID returns a context tagged with the given worker id.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkerID, id)
}

// WithRequestID returns a context tagged with the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}
