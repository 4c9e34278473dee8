// Package dispatch invokes command handlers by name and isolates the caller
// from everything a handler can do wrong.
//
// Handlers are registered once at startup in a [Registry]. Registration
// rejects names and handlers that could never be invoked, so the only
// failures left at call time are an unknown name and a handler that errors
// or panics. [Dispatcher] converts all of those into status strings.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrInvalidName is returned by [Registry.Register] for an empty handler
	// name or one containing whitespace.
	ErrInvalidName = errors.New("dispatch: invalid handler name")

	// ErrHandlerMalformed is returned by [Registry.Register] when the handler
	// is nil or wraps a nil function.
	ErrHandlerMalformed = errors.New("dispatch: handler is malformed")

	// ErrDuplicateHandler is returned by [Registry.Register] when the name is
	// already taken.
	ErrDuplicateHandler = errors.New("dispatch: handler already registered")

	// ErrHandlerNotFound is carried by [Result.Err] when no handler is
	// registered under the requested name.
	ErrHandlerNotFound = errors.New("dispatch: handler not registered")
)

// Handler performs one concrete action. commandText is the transcript exactly
// as the user said it, so handlers can pull arguments out of the literal
// words. The returned string is a short human-readable status.
type Handler interface {
	Execute(ctx context.Context, commandText string) (string, error)
}

// HandlerFunc adapts an ordinary function to [Handler].
type HandlerFunc func(ctx context.Context, commandText string) (string, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, commandText string) (string, error) {
	return f(ctx, commandText)
}

// Registry maps handler names to [Handler] implementations. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name. Unlike a lookup by convention at call time,
// every contract violation surfaces here.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || strings.IndexFunc(name, isSpace) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if isNil(h) {
		return fmt.Errorf("%w: %q has no implementation", ErrHandlerMalformed, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is like [Registry.Register] but panics on error. It is meant
// for static wiring in main where a failure is a programming mistake.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// isNil reports whether h is nil or an interface holding a nil func, pointer,
// map, slice or channel.
func isNil(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
