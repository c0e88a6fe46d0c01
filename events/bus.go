// Package events implements the control/dashboard side channel: an
// in-process pub/sub bus that nodes and the runtime use to publish
// lifecycle and dashboard signals independent of the chunk data path.
package events

import "sync"

// Listener handles a published event.
type Listener func(*Event)

// subscription pairs a listener with the type filter it registered under.
type subscription struct {
	typ Type
	all bool
	fn  Listener
}

// Bus delivers events to subscribers through a single dispatcher
// goroutine, so listeners observe events in publish order: a node.opened
// can never arrive after the node.closed that followed it, and a
// graph.completed is always last. Lifecycle consumers (dashboards, test
// assertions) depend on that ordering; per-event goroutine fan-out would
// not provide it.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription

	ch        chan *Event
	quit      chan struct{}
	closeOnce sync.Once
}

// NewBus creates a bus and starts its dispatcher.
func NewBus() *Bus {
	b := &Bus{
		ch:   make(chan *Event, 64),
		quit: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a listener for a specific event type.
func (b *Bus) Subscribe(t Type, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{typ: t, fn: l})
}

// SubscribeAll registers a listener for every event type.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{all: true, fn: l})
}

// Publish hands event to the dispatcher. It blocks only while the buffer
// is full and the dispatcher is draining; after Close it is a no-op, so
// late publishers during teardown never hang.
func (b *Bus) Publish(event *Event) {
	select {
	case b.ch <- event:
	case <-b.quit:
	}
}

// Close stops the dispatcher. Buffered events may go undelivered; the bus
// is advisory, not a durable queue. Safe to call more than once.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.quit) })
}

// Clear removes all listeners; primarily useful in tests.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

func (b *Bus) dispatch() {
	for {
		select {
		case e := <-b.ch:
			b.mu.RLock()
			subs := b.subs
			b.mu.RUnlock()
			for _, s := range subs {
				if s.all || s.typ == e.Type {
					deliver(s.fn, e)
				}
			}
		case <-b.quit:
			return
		}
	}
}

// deliver contains a panicking listener so one bad subscriber cannot take
// down the dispatcher.
func deliver(l Listener, e *Event) {
	defer func() { _ = recover() }()
	l(e)
}
