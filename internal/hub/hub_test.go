package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(o *Observer) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-o.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestPublishReachesEveryObserver(t *testing.T) {
	h := New(8, nil)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish("signal_cleared", 1)

	for _, o := range []*Observer{a, b} {
		got := drain(o)
		require.Len(t, got, 1)
		assert.Equal(t, "signal_cleared", got[0].Name)
		assert.Equal(t, 1, got[0].Data)
	}
}

func TestPublishPreservesOrderPerObserver(t *testing.T) {
	h := New(128, nil)
	o := h.Subscribe()
	for i := 0; i < 100; i++ {
		h.Publish("update_location", i)
	}
	got := drain(o)
	require.Len(t, got, 100)
	for i, e := range got {
		assert.Equal(t, i, e.Data)
	}
}

func TestObserverConnectedLaterMissesEarlierEvents(t *testing.T) {
	h := New(8, nil)
	h.Publish("trip_ended", nil)
	o := h.Subscribe()
	assert.Empty(t, drain(o))
}

func TestFullBufferDropsForThatObserverOnly(t *testing.T) {
	h := New(2, nil)
	slow := h.Subscribe()
	fast := h.Subscribe()

	h.Publish("a", 1)
	h.Publish("b", 2)
	drain(fast)
	h.Publish("c", 3)

	got := drain(slow)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)

	got = drain(fast)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Name)
}

func TestUnsubscribeClosesChannelAndCountsViewers(t *testing.T) {
	h := New(8, nil)
	a := h.Subscribe()
	b := h.Subscribe()
	sink := h.Subscribe(AsSink())
	assert.True(t, sink.Sink())
	assert.Equal(t, 2, h.Viewers())

	assert.Equal(t, 1, h.Unsubscribe(a))
	_, ok := <-a.Events()
	assert.False(t, ok)

	assert.Equal(t, 0, h.Unsubscribe(b))
	// sinks do not keep the hub observed
	assert.Equal(t, 0, h.Viewers())
	// second unsubscribe is a no-op
	assert.Equal(t, 0, h.Unsubscribe(b))
}

func TestSendToTargetsOneObserver(t *testing.T) {
	h := New(8, nil)
	a := h.Subscribe()
	b := h.Subscribe()

	assert.True(t, h.SendTo(a, "trip_started", "snap"))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))

	h.Unsubscribe(a)
	assert.False(t, h.SendTo(a, "trip_started", "snap"))
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	h := New(8, nil)
	a := h.Subscribe()
	h.Close()
	_, ok := <-a.Events()
	assert.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)
	h.Close()
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	h := New(1024, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o := h.Subscribe()
			drain(o)
			h.Unsubscribe(o)
		}()
		go func(i int) {
			defer wg.Done()
			h.Publish("tick", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Viewers())
}
