package eventlog

import (
	"context"
	"sync"
)

// DefaultCapacity is the number of events a [Ring] keeps when constructed
// with a non-positive capacity.
const DefaultCapacity = 500

// Ring is a bounded in-memory [Sink]. Once full, each new event evicts the
// oldest one.
type Ring struct {
	mu    sync.RWMutex
	buf   []Event
	start int
	n     int
}

// NewRing returns a ring holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Record implements [Sink]. It never fails.
func (r *Ring) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return nil
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
	return nil
}

// Snapshot returns a copy of the retained events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of retained events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Cap returns the maximum number of retained events.
func (r *Ring) Cap() int {
	return len(r.buf)
}
