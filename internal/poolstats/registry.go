package poolstats

import "sync"

// Registry is the concurrent map from pool name to its Metrics, with
// atomic get-or-create semantics so concurrent first-touches from
// different sessions never race to build two Metrics for the same pool.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Metrics
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Metrics)}
}

// GetOrCreate returns the existing Metrics for name, or atomically
// inserts and returns a fresh one.
func (r *Registry) GetOrCreate(name string) *Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.pools[name]; ok {
		return m
	}

	m := New(name)
	r.pools[name] = m
	return m
}

// Enumerate returns every known pool's Metrics.
func (r *Registry) Enumerate() []*Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Metrics, 0, len(r.pools))
	for _, m := range r.pools {
		out = append(out, m)
	}
	return out
}
