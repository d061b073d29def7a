package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesConfigAndCounters(t *testing.T) {
	c := NewCollector(time.Second, 5*time.Second, 2*time.Second)
	c.TripsStarted.Inc()
	c.SignalsCleared.WithLabelValues("manual").Inc()
	c.EventsDropped.WithLabelValues("update_location").Add(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, "corridor_tick_period_seconds 1")
	assert.Contains(t, out, "corridor_confirmation_window_seconds 5")
	assert.Contains(t, out, "corridor_step_delay_seconds 2")
	assert.Contains(t, out, "corridor_trips_started_total 1")
	assert.Contains(t, out, `corridor_signals_cleared_total{source="manual"} 1`)
	assert.Contains(t, out, `corridor_events_dropped_total{event="update_location"} 3`)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector(time.Second, time.Second, time.Second)
	b := NewCollector(time.Second, time.Second, time.Second)
	a.Ticks.Add(7)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "corridor_trip_ticks_total 0")
}
