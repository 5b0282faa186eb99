// Package fanout pushes engine events to subscribed observers. Delivery is
// at-most-once: each subscriber owns a bounded FIFO buffer that evicts the
// oldest event when full, so a slow or dead observer can never block the
// engine or another observer.
package fanout

import (
	"sync"

	"warden/pkg/protocol"
)

// DefaultBufferSize is the per-subscriber event buffer capacity.
const DefaultBufferSize = 64

// eventBuffer is a bounded FIFO buffer for events. When full, the oldest
// events are evicted to make room for new ones.
type eventBuffer struct {
	mu     sync.Mutex
	events []protocol.Event
	cap    int
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{
		events: make([]protocol.Event, 0, capacity),
		cap:    capacity,
	}
}

func (b *eventBuffer) add(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.cap {
		// Evict oldest
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = ev
	} else {
		b.events = append(b.events, ev)
	}
}

func (b *eventBuffer) drain() []protocol.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]protocol.Event, len(b.events))
	copy(out, b.events)
	b.events = b.events[:0]
	return out
}

// Subscription is one observer's view of the event stream.
type Subscription struct {
	id     int
	hub    *Hub
	buf    *eventBuffer
	notify chan struct{}
}

// Events signals when at least one event is buffered. Receive from it, then
// call Drain.
func (s *Subscription) Events() <-chan struct{} { return s.notify }

// Drain returns and clears the buffered events, oldest first.
func (s *Subscription) Drain() []protocol.Event { return s.buf.drain() }

// Close detaches the subscription from the hub.
func (s *Subscription) Close() { s.hub.unsubscribe(s.id) }

// Hub fans events out to all live subscriptions.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*Subscription
	bufSize int
}

// NewHub builds a Hub. bufSize ≤ 0 falls back to DefaultBufferSize.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Hub{
		subs:    make(map[int]*Subscription),
		bufSize: bufSize,
	}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		buf:    newEventBuffer(h.bufSize),
		notify: make(chan struct{}, 1),
	}
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// SubscriberCount reports the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish buffers ev for every subscriber and returns immediately. The
// notify send is non-blocking; a subscriber that is already signaled picks
// the event up on its next drain.
func (h *Hub) Publish(ev protocol.Event) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.buf.add(ev)
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}
