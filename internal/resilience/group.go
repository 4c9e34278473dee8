package resilience

import (
	"maps"
	"sync"
)

// Group lazily creates one [CircuitBreaker] per key, all sharing the same
// configuration.
type Group struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup returns an empty group. cfg.Name is ignored; each breaker is named
// after its key.
func NewGroup(cfg CircuitBreakerConfig) *Group {
	return &Group{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it in the closed state on first
// use.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cfg := g.cfg
		cfg.Name = key
		cb = NewCircuitBreaker(cfg)
		g.breakers[key] = cb
	}
	return cb
}

// States reports the current state of every breaker created so far.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	snapshot := maps.Clone(g.breakers)
	g.mu.Unlock()

	out := make(map[string]State, len(snapshot))
	for k, cb := range snapshot {
		out[k] = cb.State()
	}
	return out
}

// Reset closes every breaker in the group.
func (g *Group) Reset() {
	g.mu.Lock()
	snapshot := maps.Clone(g.breakers)
	g.mu.Unlock()

	for _, cb := range snapshot {
		cb.Reset()
	}
}
