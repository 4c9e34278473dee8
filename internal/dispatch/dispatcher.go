package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sayso/internal/observe"
	"github.com/MrWong99/sayso/internal/resilience"
)

// PanicError is carried by [Result.Err] when a handler panicked.
type PanicError struct {
	Handler string
	Value   any
	Stack   []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Handler, e.Value)
}

// Result is the structured outcome of one dispatch.
type Result struct {
	// Output is what the caller shows the user: the handler's status on
	// success or a description of what went wrong.
	Output string

	// Err is nil on success. Otherwise it wraps [ErrHandlerNotFound],
	// [resilience.ErrCircuitOpen], a [*PanicError] or the handler's error.
	Err error
}

// Dispatcher runs handlers from a [Registry]. It never panics and never
// returns an error value to the caller; every failure becomes a status
// string.
type Dispatcher struct {
	reg      *Registry
	breakers *resilience.Group
	metrics  *observe.Metrics
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithBreaker guards every handler with its own circuit breaker. After
// cfg.MaxFailures consecutive errors or panics the handler is skipped until
// cfg.ResetTimeout has passed.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(d *Dispatcher) {
		d.breakers = resilience.NewGroup(cfg)
	}
}

// WithMetrics records dispatch metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New returns a dispatcher for the handlers in reg.
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Breakers returns the per-handler breaker states, or nil when breakers are
// disabled.
func (d *Dispatcher) Breakers() map[string]resilience.State {
	if d.breakers == nil {
		return nil
	}
	return d.breakers.States()
}

// Execute runs the handler registered under handlerID with commandText and
// returns its status string or an error description.
func (d *Dispatcher) Execute(ctx context.Context, handlerID, commandText string) string {
	return d.Run(ctx, handlerID, commandText).Output
}

// Run is [Dispatcher.Execute] with the underlying error kept for logging
// and event recording.
func (d *Dispatcher) Run(ctx context.Context, handlerID, commandText string) Result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "dispatch.Run",
		trace.WithAttributes(attribute.String("dispatch.handler", handlerID)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	h, ok := d.reg.Lookup(handlerID)
	if !ok {
		log.Warn("dispatch: handler not registered", "handler", handlerID)
		span.SetStatus(codes.Error, "handler not registered")
		d.metrics.RecordDispatch(ctx, handlerID, observe.StatusMissing, time.Since(start))
		return Result{
			Output: fmt.Sprintf("Error: Handler %s is not registered", handlerID),
			Err:    fmt.Errorf("%w: %q", ErrHandlerNotFound, handlerID),
		}
	}

	var out string
	call := func() error {
		var err error
		out, err = invoke(ctx, handlerID, h, commandText)
		return err
	}

	var err error
	if d.breakers != nil {
		err = d.breakers.Get(handlerID).Execute(call)
	} else {
		err = call()
	}

	var (
		status string
		pe     *PanicError
	)
	switch {
	case err == nil:
		status = observe.StatusOK
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = observe.StatusRejected
		out = fmt.Sprintf("Error: Handler %s is temporarily disabled after repeated failures", handlerID)
		log.Warn("dispatch: handler disabled by circuit breaker", "handler", handlerID)
	case errors.As(err, &pe):
		status = observe.StatusPanic
		out = "Error executing command: " + err.Error()
		log.Error("dispatch: handler panicked",
			"handler", handlerID,
			"panic", fmt.Sprint(pe.Value),
			"stack", string(pe.Stack),
		)
	default:
		status = observe.StatusError
		out = "Error executing command: " + err.Error()
		log.Warn("dispatch: handler failed", "handler", handlerID, "err", err)
	}

	span.SetAttributes(attribute.String("dispatch.status", status))
	observe.FailSpan(span, err, status)
	d.metrics.RecordDispatch(ctx, handlerID, status, time.Since(start))
	return Result{Output: out, Err: err}
}

// invoke calls h and turns a panic into a [*PanicError].
func invoke(ctx context.Context, name string, h Handler, commandText string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = ""
			err = &PanicError{Handler: name, Value: p, Stack: debug.Stack()}
		}
	}()
	return h.Execute(ctx, commandText)
}
