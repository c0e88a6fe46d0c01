// Package worker coordinates auxiliary processes that run heavy models:
// newline-delimited JSON over stdin/stdout, correlated by a monotonically
// increasing task id, with an init timeout and abnormal-exit detection.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speechflow/speechflow/cache"
	"github.com/speechflow/speechflow/errs"
	"github.com/speechflow/speechflow/events"
	"github.com/speechflow/speechflow/logging"
	"github.com/speechflow/speechflow/metrics"
)

// DefaultInitTimeout bounds how long Open waits for the worker's ready message.
const DefaultInitTimeout = 60 * time.Second

// Config describes how to launch and identify a worker process.
type Config struct {
	ID          string
	Command     string
	Args        []string
	Env         map[string]string
	Params      map[string]any // sent as the "open" message's model params
	InitTimeout time.Duration

	// ModelID and Cache are optional: when both are set, a successful Open
	// records that this model was loaded, in the global model-artefact
	// metadata cache.
	ModelID string
	Cache   cache.Cache
}

// message is the wire shape for every line exchanged with the worker in
// either direction; fields not relevant to a given Type are left zero.
type message struct {
	Type    string          `json:"type"`
	ID      int64           `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Level   string          `json:"level,omitempty"`
	Params  map[string]any  `json:"params,omitempty"`
}

type pending struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// Worker drives one auxiliary process through open -> process* -> close.
type Worker struct {
	cfg Config

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
	nextID  atomic.Int64
	pendMu  sync.Mutex
	pend    map[int64]*pending

	emitter *events.Emitter
	metrics *metrics.Registry

	mu     sync.Mutex
	closed bool

	exitErr  error
	exitOnce sync.Once
	exitedCh chan struct{}
}

// New constructs a Worker in the not-yet-opened state.
func New(cfg Config, emitter *events.Emitter) *Worker {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	return &Worker{
		cfg:      cfg,
		pend:     make(map[int64]*pending),
		emitter:  emitter,
		exitedCh: make(chan struct{}),
	}
}

// WithMetrics attaches a Prometheus registry that worker-failure counts are
// recorded against, in addition to the event bus.
func (w *Worker) WithMetrics(reg *metrics.Registry) *Worker {
	w.metrics = reg
	return w
}

// Open spawns the worker process, sends the "open" message, and waits for
// "ready" (or "failed") within cfg.InitTimeout. A worker that never replies
// in time is killed and Open returns a Resource error.
func (w *Worker) Open(ctx context.Context) error {
	w.cmd = exec.CommandContext(context.Background(), w.cfg.Command, w.cfg.Args...)
	for k, v := range w.cfg.Env {
		w.cmd.Env = append(w.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var err error
	w.stdin, err = w.cmd.StdinPipe()
	if err != nil {
		return errs.New("worker", "open", errs.Resource, fmt.Errorf("stdin pipe: %w", err))
	}
	w.stdout, err = w.cmd.StdoutPipe()
	if err != nil {
		return errs.New("worker", "open", errs.Resource, fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return errs.New("worker", "open", errs.Resource, fmt.Errorf("stderr pipe: %w", err))
	}

	if err := w.cmd.Start(); err != nil {
		return errs.New("worker", "open", errs.Resource, fmt.Errorf("start: %w", err))
	}

	ready := make(chan error, 1)
	go w.readLoop(ready)
	go w.logStderr(stderr)
	go w.waitExit()

	if err := w.send(message{Type: "open", Params: w.cfg.Params}); err != nil {
		_ = w.kill()
		return errs.New("worker", "open", errs.Resource, fmt.Errorf("sending open message: %w", err))
	}

	select {
	case err := <-ready:
		if err != nil {
			_ = w.kill()
			return errs.New("worker", "open", errs.Resource, err)
		}
		logging.WorkerSpawned(w.cfg.ID, w.cmd.Process.Pid)
		if w.emitter != nil {
			w.emitter.WorkerReady(w.cfg.ID, w.cmd.Process.Pid)
		}
		w.recordModelLoad(ctx)
		return nil
	case <-time.After(w.cfg.InitTimeout):
		_ = w.kill()
		return errs.New("worker", "open", errs.Resource,
			fmt.Errorf("worker %q did not become ready within %v", w.cfg.ID, w.cfg.InitTimeout))
	case <-ctx.Done():
		_ = w.kill()
		return errs.New("worker", "open", errs.Resource, ctx.Err())
	}
}

// Process sends one task and blocks for its process-done reply, the
// worker's exit, or ctx cancellation, whichever comes first.
func (w *Worker) Process(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	id := w.nextID.Add(1)
	p := &pending{resultCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}

	w.pendMu.Lock()
	w.pend[id] = p
	w.pendMu.Unlock()
	defer func() {
		w.pendMu.Lock()
		delete(w.pend, id)
		w.pendMu.Unlock()
	}()

	if err := w.send(message{Type: "process", ID: id, Data: data}); err != nil {
		return nil, errs.New("worker", "process", errs.Stream, err)
	}

	select {
	case res := <-p.resultCh:
		return res, nil
	case err := <-p.errCh:
		return nil, errs.New("worker", "process", errs.Stream, err)
	case <-w.exitedCh:
		return nil, errs.New("worker", "process", errs.Stream, fmt.Errorf("worker %q exited: %w", w.cfg.ID, w.exitErr))
	case <-ctx.Done():
		return nil, errs.New("worker", "process", errs.Stream, ctx.Err())
	}
}

// Close sends "close", waits for the process to exit, and releases pipes.
// Idempotent.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	_ = w.send(message{Type: "close"})

	select {
	case <-w.exitedCh:
	case <-ctx.Done():
		_ = w.kill()
	}

	w.pendMu.Lock()
	for id, p := range w.pend {
		p.errCh <- errs.Destroyed
		delete(w.pend, id)
	}
	w.pendMu.Unlock()

	if w.exitErr != nil {
		return errs.New("worker", "close", errs.Stream, w.exitErr)
	}
	return nil
}

func (w *Worker) send(m message) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	enc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	enc = append(enc, '\n')
	_, err = w.stdin.Write(enc)
	return err
}

func (w *Worker) readLoop(ready chan<- error) {
	scanner := bufio.NewScanner(w.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sentReady := false

	for scanner.Scan() {
		var m message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			logging.WorkerLog(w.cfg.ID, "warning", "unparseable line from worker: "+err.Error())
			continue
		}
		switch m.Type {
		case "ready":
			sentReady = true
			ready <- nil
		case "failed":
			sentReady = true
			ready <- fmt.Errorf("%s", m.Message)
		case "process-done":
			w.deliver(m.ID, m.Data)
		case "log":
			logging.WorkerLog(w.cfg.ID, m.Level, logging.Redact(m.Message))
		default:
			logging.WorkerLog(w.cfg.ID, "warning", fmt.Sprintf("unknown message type %q", m.Type))
		}
	}

	if !sentReady {
		select {
		case ready <- fmt.Errorf("worker closed stdout before sending ready"):
		default:
		}
	}
}

func (w *Worker) deliver(id int64, data json.RawMessage) {
	w.pendMu.Lock()
	p, ok := w.pend[id]
	w.pendMu.Unlock()
	if !ok {
		logging.WorkerLog(w.cfg.ID, "warning", fmt.Sprintf("process-done for unknown id %d", id))
		return
	}
	p.resultCh <- data
}

func (w *Worker) logStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logging.WorkerLog(w.cfg.ID, "debug", logging.Redact(scanner.Text()))
	}
}

func (w *Worker) waitExit() {
	err := w.cmd.Wait()
	w.exitOnce.Do(func() {
		w.mu.Lock()
		expected := w.closed
		w.mu.Unlock()
		if err != nil && !expected {
			w.exitErr = err
			logging.WorkerLog(w.cfg.ID, "error", "worker exited abnormally: "+err.Error())
			if w.emitter != nil {
				w.emitter.WorkerFailed(w.cfg.ID, err)
			}
			if w.metrics != nil {
				w.metrics.WorkerFailures.WithLabelValues(w.cfg.ID).Inc()
			}
		}
		close(w.exitedCh)
	})
}

// recordModelLoad notes in the configured cache that this worker's model has
// been successfully loaded at least once. Failures are logged, not fatal:
// the cache is an optimization, not load-bearing for correctness.
func (w *Worker) recordModelLoad(ctx context.Context) {
	if w.cfg.Cache == nil || w.cfg.ModelID == "" {
		return
	}
	_, found, err := cache.GetRecord(ctx, w.cfg.Cache, w.cfg.ModelID)
	if err != nil {
		logging.WorkerLog(w.cfg.ID, "warning", "model cache lookup failed: "+err.Error())
		return
	}
	if found {
		return
	}
	rec := cache.Record{ModelID: w.cfg.ModelID, FetchedAt: time.Now().Unix()}
	if err := cache.PutRecord(ctx, w.cfg.Cache, rec); err != nil {
		logging.WorkerLog(w.cfg.ID, "warning", "model cache write failed: "+err.Error())
	}
}

func (w *Worker) kill() error {
	if w.cmd != nil && w.cmd.Process != nil {
		return w.cmd.Process.Kill()
	}
	return nil
}
