// Package detect turns noisy per-signal detections into confirmed emergencies.
//
// A first positive detection for a signal opens a confirmation window. A second
// detection for the same signal inside the window confirms it and consumes the
// record; a detection after the window has lapsed opens a fresh window instead.
package detect

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
)

var log = logrus.WithField("module", "detect")

const DefaultWindow = 5 * time.Second

type Result int

const (
	Pending Result = iota
	Confirmed
)

func (r Result) String() string {
	if r == Confirmed {
		return "confirmed"
	}
	return "pending"
}

type Debouncer struct {
	window  time.Duration
	now     func() time.Time
	metrics *mmetrics.Collector

	// mu serializes every decision, so one signal id is never processed concurrently.
	mu      sync.Mutex
	records map[int64]time.Time // signal id -> first seen
}

func New(window time.Duration, metrics *mmetrics.Collector) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:  window,
		now:     time.Now,
		metrics: metrics,
		records: make(map[int64]time.Time),
	}
}

func (d *Debouncer) Window() time.Duration { return d.window }

// Record registers one positive detection for signalID.
func (d *Debouncer) Record(signalID int64) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	res := Pending
	if first, ok := d.records[signalID]; ok && now.Sub(first) < d.window {
		delete(d.records, signalID)
		res = Confirmed
		log.Infof("signal %d confirmed after %s", signalID, now.Sub(first))
	} else {
		if ok {
			log.Debugf("signal %d stale record replaced", signalID)
		}
		d.records[signalID] = now
	}

	if d.metrics != nil {
		d.metrics.Detections.WithLabelValues(res.String()).Inc()
		d.metrics.DetectionRecords.Set(float64(len(d.records)))
	}
	return res
}

// Pending returns the number of signals with an open window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Sweep drops records whose window has lapsed and returns how many it removed.
func (d *Debouncer) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	removed := 0
	for id, first := range d.records {
		if now.Sub(first) >= d.window {
			delete(d.records, id)
			removed++
		}
	}
	if d.metrics != nil {
		d.metrics.DetectionRecords.Set(float64(len(d.records)))
	}
	return removed
}

// Run sweeps stale records once per window until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := d.Sweep(); n > 0 {
				log.Debugf("swept %d stale detection records", n)
			}
		}
	}
}
