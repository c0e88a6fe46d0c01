package events

import "time"

// Type identifies the kind of event flowing over the bus.
type Type string

const (
	// NodeOpened marks a node completing open() successfully.
	NodeOpened Type = "node.opened"
	// NodeClosed marks a node completing close(), successfully or not.
	NodeClosed Type = "node.closed"
	// GraphOpenFailed marks a graph rolling back after an open() failure.
	GraphOpenFailed Type = "graph.open_failed"
	// GraphFailed marks the runtime observing the primary teardown cause.
	GraphFailed Type = "graph.failed"
	// GraphCompleted marks a clean end-to-end drain.
	GraphCompleted Type = "graph.completed"
	// FillerGap marks the filler emitting a synthetic silence chunk.
	FillerGap Type = "filler.gap"
	// FillerDrop marks the filler dropping a chunk that is fully covered or
	// has no frames left after clamping.
	FillerDrop Type = "filler.drop"
	// WorkerReady marks a worker process completing init.
	WorkerReady Type = "worker.ready"
	// WorkerFailed marks a worker process failing init or exiting abnormally.
	WorkerFailed Type = "worker.failed"
	// Dashboard carries a node's sendDashboard payload.
	Dashboard Type = "dashboard"
	// Response carries a node's sendResponse payload.
	Response Type = "response"
)

// Data is a marker interface implemented by every event payload.
type Data interface{ eventData() }

// Event is a single item delivered to bus listeners.
type Event struct {
	Type      Type
	Timestamp time.Time
	GraphID   string
	Data      Data
}

type base struct{}

func (base) eventData() {}

// NodeOpenedData reports a node's declared kinds at open time.
type NodeOpenedData struct {
	base
	NodeID string
	Input  string
	Output string
}

// NodeClosedData reports the outcome of a node close.
type NodeClosedData struct {
	base
	NodeID string
	Err    error
}

// GraphFailedData reports the primary cause the runtime is tearing down for.
type GraphFailedData struct {
	base
	Cause error
}

// FillerGapData reports a synthetic silence chunk the filler inserted.
type FillerGapData struct {
	base
	StartSamples int64
	EndSamples   int64
}

// FillerDropData reports a chunk the filler discarded entirely.
type FillerDropData struct {
	base
	Reason string
}

// WorkerEventData reports an auxiliary worker process lifecycle event.
type WorkerEventData struct {
	base
	WorkerID string
	PID      int
	Err      error
}

// DashboardData is a node's out-of-band status payload.
type DashboardData struct {
	base
	NodeID   string
	Kind     string
	Target   string
	Finality string
	Value    any
}

// ResponseData is a node's reply to a control-channel request.
type ResponseData struct {
	base
	NodeID string
	Params []any
}
