// Package hub fans events out to every connected observer.
//
// Each observer owns a buffered channel drained by a single consumer, so an
// observer sees events in the order they were published. Delivery is
// fire-and-forget: when an observer's buffer is full the event is dropped for
// that observer only.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
)

var log = logrus.WithField("module", "hub")

const DefaultBuffer = 64

type Event struct {
	Name string    `json:"event"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

type Observer struct {
	ID   string
	sink bool
	ch   chan Event
}

// Events is closed when the observer is unsubscribed or the hub closes.
func (o *Observer) Events() <-chan Event { return o.ch }

// Sink reports whether the observer is an internal forwarder rather than a viewer.
func (o *Observer) Sink() bool { return o.sink }

type SubscribeOption func(*Observer)

// AsSink marks an observer that forwards events elsewhere (e.g. NATS). Sinks do
// not count as viewers.
func AsSink() SubscribeOption {
	return func(o *Observer) { o.sink = true }
}

type Hub struct {
	buffer  int
	metrics *mmetrics.Collector

	mu        sync.RWMutex
	observers map[string]*Observer
	closed    bool
}

func New(buffer int, metrics *mmetrics.Collector) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer:    buffer,
		metrics:   metrics,
		observers: make(map[string]*Observer),
	}
}

// Subscribe registers a new observer. On a closed hub the returned observer's
// channel is already closed.
func (h *Hub) Subscribe(opts ...SubscribeOption) *Observer {
	o := &Observer{ID: uuid.NewString(), ch: make(chan Event, h.buffer)}
	for _, opt := range opts {
		opt(o)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(o.ch)
		return o
	}
	h.observers[o.ID] = o
	h.updateGauge()
	log.Debugf("observer %s subscribed (sink=%v)", o.ID, o.sink)
	return o
}

// Unsubscribe removes the observer, closes its channel and returns how many
// viewers remain. Unsubscribing twice is harmless.
func (h *Hub) Unsubscribe(o *Observer) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o.ID]; ok {
		delete(h.observers, o.ID)
		close(o.ch)
		h.updateGauge()
		log.Debugf("observer %s unsubscribed", o.ID)
	}
	return h.viewersLocked()
}

// Publish delivers the event to every observer without blocking.
func (h *Hub) Publish(name string, data any) {
	e := Event{Name: name, Data: data, At: time.Now()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		h.deliver(o, e)
	}
	if h.metrics != nil {
		h.metrics.EventsPublished.WithLabelValues(name).Inc()
	}
}

// SendTo delivers an event to one observer only. It is used to replay the
// current state to a newly connected observer.
func (h *Hub) SendTo(o *Observer, name string, data any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.observers[o.ID]; !ok {
		return false
	}
	return h.deliver(o, Event{Name: name, Data: data, At: time.Now()})
}

func (h *Hub) deliver(o *Observer, e Event) bool {
	select {
	case o.ch <- e:
		return true
	default:
		log.Warnf("observer %s buffer full, dropping %s", o.ID, e.Name)
		if h.metrics != nil {
			h.metrics.EventsDropped.WithLabelValues(e.Name).Inc()
		}
		return false
	}
}

// Viewers counts connected observers that are not sinks.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewersLocked()
}

func (h *Hub) viewersLocked() int {
	n := 0
	for _, o := range h.observers {
		if !o.sink {
			n++
		}
	}
	return n
}

// Close disconnects every observer. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		close(o.ch)
		delete(h.observers, id)
	}
	h.updateGauge()
}

func (h *Hub) updateGauge() {
	if h.metrics != nil {
		h.metrics.Observers.Set(float64(h.viewersLocked()))
	}
}
