package corridor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clearance struct {
	id int64
	at time.Time
}

type recorder struct {
	mu  sync.Mutex
	got []clearance
}

func (r *recorder) clear(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, clearance{id: id, at: time.Now()})
}

func (r *recorder) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.got))
	for i, c := range r.got {
		out[i] = c.id
	}
	return out
}

func waitDone(t *testing.T, r *Run) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("corridor run did not finish")
	}
}

func TestCorridorClearsInOrderWithDelay(t *testing.T) {
	rec := &recorder{}
	delay := 40 * time.Millisecond
	s := NewSequencer(rec.clear, delay, nil)

	start := time.Now()
	run, err := s.Start([]int64{1, 2, 3})
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, []int64{1, 2, 3}, rec.ids())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Less(t, rec.got[0].at.Sub(start), delay)
	assert.GreaterOrEqual(t, rec.got[1].at.Sub(start), delay)
	assert.GreaterOrEqual(t, rec.got[2].at.Sub(start), 2*delay)
	assert.Equal(t, 0, s.Active())
}

func TestCorridorFiresFirstSignalImmediately(t *testing.T) {
	rec := &recorder{}
	s := NewSequencer(rec.clear, time.Hour, nil)
	run, err := s.Start([]int64{5, 6})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rec.ids()) == 1 }, time.Second, time.Millisecond)
	run.Stop()
	waitDone(t, run)
	assert.Equal(t, []int64{5}, rec.ids())
}

func TestCorridorRejectsEmptyList(t *testing.T) {
	s := NewSequencer(func(int64) {}, time.Millisecond, nil)
	_, err := s.Start(nil)
	assert.ErrorIs(t, err, ErrEmptyCorridor)
	assert.Equal(t, 0, s.Active())
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	rec := &recorder{}
	s := NewSequencer(rec.clear, 5*time.Millisecond, nil)
	a, err := s.Start([]int64{1, 2, 3})
	require.NoError(t, err)
	b, err := s.Start([]int64{10, 20})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	waitDone(t, a)
	waitDone(t, b)
	assert.ElementsMatch(t, []int64{1, 2, 3, 10, 20}, rec.ids())
}

func TestStopHaltsAllRuns(t *testing.T) {
	rec := &recorder{}
	s := NewSequencer(rec.clear, time.Hour, nil)
	_, err := s.Start([]int64{1, 2})
	require.NoError(t, err)
	_, err = s.Start([]int64{3, 4})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(rec.ids()) == 2 }, time.Second, time.Millisecond)
	s.Stop()
	assert.Equal(t, 0, s.Active())
	assert.ElementsMatch(t, []int64{1, 3}, rec.ids())
}

func TestStartCopiesSignalList(t *testing.T) {
	rec := &recorder{}
	s := NewSequencer(rec.clear, time.Millisecond, nil)
	ids := []int64{1, 2}
	run, err := s.Start(ids)
	require.NoError(t, err)
	ids[1] = 99
	waitDone(t, run)
	assert.Equal(t, []int64{1, 2}, rec.ids())
}
