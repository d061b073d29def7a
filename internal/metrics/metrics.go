package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "metrics")

type Collector struct {
	reg *prometheus.Registry

	ActiveTrip    prometheus.Gauge
	TripsStarted  prometheus.Counter
	TripsFinished *prometheus.CounterVec // reason label: completed|cancelled|replaced|unobserved
	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram

	Detections       *prometheus.CounterVec // result label: pending|confirmed
	DetectionRecords prometheus.Gauge

	CorridorRuns   prometheus.Counter
	ActiveCorridor prometheus.Gauge
	SignalsCleared *prometheus.CounterVec // source label: manual|corridor|detection

	Observers       prometheus.Gauge
	EventsPublished *prometheus.CounterVec // event label
	EventsDropped   *prometheus.CounterVec // event label

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	UpstreamDuration *prometheus.HistogramVec // service label: router|detector

	TickPeriod         prometheus.Gauge // seconds
	ConfirmationWindow prometheus.Gauge // seconds
	CorridorStepDelay  prometheus.Gauge // seconds
}

func NewCollector(tickPeriod, confirmWindow, corridorStep time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveTrip: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_active_trip",
			Help: "1 while a trip is running, 0 otherwise.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corridor_trips_started_total",
			Help: "Total trips started.",
		}),
		TripsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_trips_finished_total",
			Help: "Total trips finished, by reason.",
		}, []string{"reason"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corridor_trip_ticks_total",
			Help: "Total trip clock ticks that advanced a vehicle.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "corridor_tick_duration_seconds",
			Help:    "Duration of trip tick processing.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_detections_total",
			Help: "Positive detections fed to the debouncer, by result.",
		}, []string{"result"}),
		DetectionRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_detection_records",
			Help: "Unconfirmed detection records currently held.",
		}),
		CorridorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corridor_sequences_started_total",
			Help: "Total green corridor sequences started.",
		}),
		ActiveCorridor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_sequences_active",
			Help: "Green corridor sequences currently running.",
		}),
		SignalsCleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_signals_cleared_total",
			Help: "Signals cleared to green, by source.",
		}, []string{"source"}),
		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_observers",
			Help: "Connected observers (excluding internal sinks).",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_events_published_total",
			Help: "Events published to the hub, by event name.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_events_dropped_total",
			Help: "Events dropped for a slow observer, by event name.",
		}, []string{"event"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corridor_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corridor_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "corridor_nats_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corridor_upstream_duration_seconds",
			Help:    "Duration of calls to external services.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"service"}),
		TickPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_tick_period_seconds",
			Help: "Trip clock period in seconds.",
		}),
		ConfirmationWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_confirmation_window_seconds",
			Help: "Detection confirmation window in seconds.",
		}),
		CorridorStepDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_step_delay_seconds",
			Help: "Delay between corridor clearances in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveTrip, c.TripsStarted, c.TripsFinished, c.Ticks, c.TickDuration,
		c.Detections, c.DetectionRecords,
		c.CorridorRuns, c.ActiveCorridor, c.SignalsCleared,
		c.Observers, c.EventsPublished, c.EventsDropped,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.UpstreamDuration,
		c.TickPeriod, c.ConfirmationWindow, c.CorridorStepDelay,
	)

	c.TickPeriod.Set(tickPeriod.Seconds())
	c.ConfirmationWindow.Set(confirmWindow.Seconds())
	c.CorridorStepDelay.Set(corridorStep.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()
	log.Infof("metrics listening on %s", addr)
	return srv
}
