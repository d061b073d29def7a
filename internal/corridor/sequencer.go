// Package corridor runs green corridor overrides: an ordered list of signals
// cleared one at a time with a fixed delay between clearances.
package corridor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	mmetrics "github.com/NagaPranathiRallabandi/marg-ai/internal/metrics"
)

var log = logrus.WithField("module", "corridor")

const DefaultStepDelay = 2 * time.Second

var ErrEmptyCorridor = errors.New("corridor has no signals")

// ClearFunc clears one signal and announces it.
type ClearFunc func(signalID int64)

// Sequencer starts independent corridor runs. Runs share nothing but the
// clear function, so any number may be in flight.
type Sequencer struct {
	clear   ClearFunc
	delay   time.Duration
	metrics *mmetrics.Collector

	nextID atomic.Uint64
	mu     sync.Mutex
	runs   map[uint64]*Run
	wg     sync.WaitGroup
}

// Run is the handle of one corridor sequence.
type Run struct {
	ID      uint64
	Signals []int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Stop halts the run before its next clearance. It is safe to call at any time.
func (r *Run) Stop() { r.cancel() }

// Done is closed once the run has cleared its last signal or was stopped.
func (r *Run) Done() <-chan struct{} { return r.done }

func NewSequencer(clear ClearFunc, delay time.Duration, metrics *mmetrics.Collector) *Sequencer {
	if delay <= 0 {
		delay = DefaultStepDelay
	}
	return &Sequencer{
		clear:   clear,
		delay:   delay,
		metrics: metrics,
		runs:    make(map[uint64]*Run),
	}
}

// Start clears signalIDs[0] right away and each following id one delay later.
func (s *Sequencer) Start(signalIDs []int64) (*Run, error) {
	if len(signalIDs) == 0 {
		return nil, ErrEmptyCorridor
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		ID:      s.nextID.Add(1),
		Signals: slices.Clone(signalIDs),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[r.ID] = r
	s.wg.Add(1)
	if s.metrics != nil {
		s.metrics.CorridorRuns.Inc()
		s.metrics.ActiveCorridor.Set(float64(len(s.runs)))
	}
	s.mu.Unlock()

	log.Infof("corridor %d started over signals %v", r.ID, r.Signals)
	go s.run(ctx, r)
	return r, nil
}

func (s *Sequencer) run(ctx context.Context, r *Run) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.runs, r.ID)
		if s.metrics != nil {
			s.metrics.ActiveCorridor.Set(float64(len(s.runs)))
		}
		s.mu.Unlock()
		r.cancel()
		close(r.done)
	}()

	for i, id := range r.Signals {
		if i > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Infof("corridor %d stopped after %d/%d signals", r.ID, i, len(r.Signals))
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		s.clear(id)
	}
	log.Infof("corridor %d complete", r.ID)
}

// Active returns the number of runs still in flight.
func (s *Sequencer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Stop halts every run and waits for them to return.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	for _, r := range s.runs {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
