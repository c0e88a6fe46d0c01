package events

import (
	"time"

	"github.com/google/uuid"
)

// Emitter publishes events onto a Bus with a shared graph-run id attached.
type Emitter struct {
	bus     *Bus
	graphID string
}

// NewEmitter builds an emitter bound to a graph run. An empty graphID is
// replaced with a freshly generated UUID so every run's events carry a
// unique correlation id even when the caller has no natural identifier of
// its own to supply.
func NewEmitter(bus *Bus, graphID string) *Emitter {
	if graphID == "" {
		graphID = uuid.New().String()
	}
	return &Emitter{bus: bus, graphID: graphID}
}

// GraphID returns the run id this emitter tags every event with.
func (e *Emitter) GraphID() string {
	if e == nil {
		return ""
	}
	return e.graphID
}

func (e *Emitter) emit(t Type, data Data) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{Type: t, Timestamp: time.Now(), GraphID: e.graphID, Data: data})
}

// NodeOpened emits node.opened.
func (e *Emitter) NodeOpened(nodeID, input, output string) {
	e.emit(NodeOpened, NodeOpenedData{NodeID: nodeID, Input: input, Output: output})
}

// NodeClosed emits node.closed.
func (e *Emitter) NodeClosed(nodeID string, err error) {
	e.emit(NodeClosed, NodeClosedData{NodeID: nodeID, Err: err})
}

// GraphFailed emits graph.failed with the first observed non-shutdown cause.
func (e *Emitter) GraphFailed(cause error) {
	e.emit(GraphFailed, GraphFailedData{Cause: cause})
}

// GraphCompleted emits graph.completed.
func (e *Emitter) GraphCompleted() {
	e.emit(GraphCompleted, base{})
}

// FillerGap emits filler.gap for a synthetic silence chunk.
func (e *Emitter) FillerGap(startSamples, endSamples int64) {
	e.emit(FillerGap, FillerGapData{StartSamples: startSamples, EndSamples: endSamples})
}

// FillerDrop emits filler.drop for a discarded chunk.
func (e *Emitter) FillerDrop(reason string) {
	e.emit(FillerDrop, FillerDropData{Reason: reason})
}

// WorkerReady emits worker.ready.
func (e *Emitter) WorkerReady(workerID string, pid int) {
	e.emit(WorkerReady, WorkerEventData{WorkerID: workerID, PID: pid})
}

// WorkerFailed emits worker.failed.
func (e *Emitter) WorkerFailed(workerID string, err error) {
	e.emit(WorkerFailed, WorkerEventData{WorkerID: workerID, Err: err})
}

// SendDashboard emits a node's out-of-band dashboard payload.
func (e *Emitter) SendDashboard(nodeID, kind, target, finality string, value any) {
	e.emit(Dashboard, DashboardData{NodeID: nodeID, Kind: kind, Target: target, Finality: finality, Value: value})
}

// SendResponse emits a node's reply to a control-channel request.
func (e *Emitter) SendResponse(nodeID string, params []any) {
	e.emit(Response, ResponseData{NodeID: nodeID, Params: params})
}
