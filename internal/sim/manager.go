package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/NagaPranathiRallabandi/marg-ai/internal/events"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/hub"
	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
	"github.com/NagaPranathiRallabandi/marg-ai/internal/traffic"
)

var log = logrus.WithField("module", "sim")

const DefaultTickPeriod = time.Second

var ErrInvalidRoute = errors.New("invalid route")

// Manager owns the single active trip. Every read and write of the trip
// happens under mu, including the tick that advances it, so a tick of a
// replaced or cancelled trip can never publish.
type Manager struct {
	hub                  *hub.Hub
	signals              *traffic.Registry
	tickPeriod           time.Duration
	cancelWhenUnobserved bool
	metrics              *mmetrics.Collector

	mu     sync.Mutex
	active *trip
	wg     sync.WaitGroup
}

type trip struct {
	id        string
	route     traffic.Route
	step      int
	position  traffic.LatLon
	startedAt time.Time
	cancel    context.CancelFunc
}

// Snapshot is a read-only copy of the running trip.
type Snapshot struct {
	TripID    string         `json:"tripId"`
	Route     traffic.Route  `json:"route"`
	Step      int            `json:"step"`
	Position  traffic.LatLon `json:"position"`
	StartedAt time.Time      `json:"startedAt"`
}

func NewManager(h *hub.Hub, signals *traffic.Registry, tickPeriod time.Duration, cancelWhenUnobserved bool, metrics *mmetrics.Collector) *Manager {
	if tickPeriod <= 0 {
		tickPeriod = DefaultTickPeriod
	}
	if signals == nil {
		signals = traffic.NewRegistry(nil)
	}
	return &Manager{
		hub:                  h,
		signals:              signals,
		tickPeriod:           tickPeriod,
		cancelWhenUnobserved: cancelWhenUnobserved,
		metrics:              metrics,
	}
}

// Start validates route, tears down any running trip and starts a new one.
// An invalid route leaves the current trip untouched.
func (m *Manager) Start(route traffic.Route) (Snapshot, error) {
	if err := route.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	route = slices.Clone(route)
	ctx, cancel := context.WithCancel(context.Background())
	t := &trip{
		id:        uuid.NewString(),
		route:     route,
		position:  route[0].LatLon(),
		startedAt: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		log.Infof("replacing trip %s at step %d/%d", m.active.id, m.active.step, len(m.active.route))
		m.teardownLocked("replaced")
	}
	m.active = t
	m.hub.Publish(events.TripStarted, t.startedPayload())
	if m.metrics != nil {
		m.metrics.TripsStarted.Inc()
		m.metrics.ActiveTrip.Set(1)
	}

	m.wg.Add(1)
	go m.run(ctx, t)

	log.Infof("starting trip %s with %d waypoints", t.id, len(route))
	return t.snapshot(), nil
}

func (m *Manager) run(ctx context.Context, t *trip) {
	defer m.wg.Done()
	tick := time.NewTicker(m.tickPeriod)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !m.advance(t) {
				return
			}
		}
	}
}

// advance performs one clock tick for t. It reports whether t is still running.
func (m *Manager) advance(t *trip) bool {
	tickStart := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != t {
		return false
	}
	if t.step >= len(t.route) {
		m.teardownLocked("completed")
		m.hub.Publish(events.TripEnded, events.TripEndedPayload{})
		log.Infof("finished trip %s after %d steps", t.id, t.step)
		return false
	}
	t.position = t.route[t.step].LatLon()
	m.hub.Publish(events.UpdateLocation, events.UpdateLocationPayload{Position: t.position, Step: t.step})
	t.step++
	if m.metrics != nil {
		m.metrics.Ticks.Inc()
		m.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
	}
	return true
}

// Cancel ends the running trip and broadcasts trip_ended. On an idle manager it
// does nothing and returns false.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return false
	}
	id := m.active.id
	m.teardownLocked("cancelled")
	m.hub.Publish(events.TripEnded, events.TripEndedPayload{})
	log.Infof("trip %s cancelled", id)
	return true
}

// teardownLocked disarms the active trip's clock and clears it. Callers hold mu.
func (m *Manager) teardownLocked(reason string) {
	m.active.cancel()
	m.active = nil
	if m.metrics != nil {
		m.metrics.ActiveTrip.Set(0)
		m.metrics.TripsFinished.WithLabelValues(reason).Inc()
	}
}

// Snapshot returns the running trip, if any.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Snapshot{}, false
	}
	return m.active.snapshot(), true
}

// Connect subscribes a new observer and replays the running trip, with its
// current position, to that observer alone.
func (m *Manager) Connect() *hub.Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.hub.Subscribe()
	if m.active != nil {
		m.hub.SendTo(o, events.TripStarted, m.active.startedPayload())
	}
	return o
}

// Disconnect unsubscribes o. When it was the last viewer and the manager is
// configured to, the orphaned trip is cancelled.
func (m *Manager) Disconnect(o *hub.Observer) {
	if m.hub.Unsubscribe(o) > 0 || !m.cancelWhenUnobserved || o.Sink() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Connect subscribes under mu, so this recheck cannot miss a new viewer.
	if m.active == nil || m.hub.Viewers() > 0 {
		return
	}
	id := m.active.id
	m.teardownLocked("unobserved")
	m.hub.Publish(events.TripEnded, events.TripEndedPayload{})
	log.Infof("trip %s cancelled: no observers left", id)
}

// ClearSignal forces a signal to green and tells every observer. It does not
// touch the trip.
func (m *Manager) ClearSignal(signalID int64, source string) events.SignalClearedPayload {
	if _, ok := m.signals.SetStatus(signalID, traffic.StatusGreen); !ok {
		log.Warnf("clearing signal %d which is not in the inventory", signalID)
	}
	p := events.SignalClearedPayload{SignalID: signalID, NewStatus: traffic.StatusGreen}
	m.hub.Publish(events.SignalCleared, p)
	if m.metrics != nil {
		m.metrics.SignalsCleared.WithLabelValues(source).Inc()
	}
	log.Infof("signal %d cleared (%s)", signalID, source)
	return p
}

// Stop disarms the running trip without broadcasting and waits for its clock
// goroutine to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.active != nil {
		m.teardownLocked("shutdown")
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (t *trip) startedPayload() events.TripStartedPayload {
	return events.TripStartedPayload{
		TripID:   t.id,
		Route:    traffic.NewLineString(t.route),
		Position: t.position,
	}
}

func (t *trip) snapshot() Snapshot {
	return Snapshot{
		TripID:    t.id,
		Route:     t.route,
		Step:      t.step,
		Position:  t.position,
		StartedAt: t.startedAt,
	}
}
