package traffic

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry holds the signal inventory loaded at startup together with each
// signal's transient status. The store of record is never written back.
type Registry struct {
	mu      sync.RWMutex
	signals map[int64]TrafficSignal
}

func NewRegistry(signals []TrafficSignal) *Registry {
	r := &Registry{signals: make(map[int64]TrafficSignal, len(signals))}
	for _, s := range signals {
		if s.Status == "" {
			s.Status = StatusRed
		}
		r.signals[s.ID] = s
	}
	return r
}

func (r *Registry) Get(id int64) (TrafficSignal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signals[id]
	return s, ok
}

// List returns all signals ordered by id.
func (r *Registry) List() []TrafficSignal {
	r.mu.RLock()
	out := lo.Values(r.signals)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus updates a known signal. It reports false for unknown ids.
func (r *Registry) SetStatus(id int64, st Status) (TrafficSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return TrafficSignal{}, false
	}
	s.Status = st
	r.signals[id] = s
	return s, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.signals)
}
