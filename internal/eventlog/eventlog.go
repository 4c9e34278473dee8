// Package eventlog records what happened to every processed transcript.
//
// The log is owned by whoever constructs it and handed to the pipeline as a
// [Sink]; there is no package-level state. [Ring] keeps a bounded in-memory
// window for the /logs endpoint and [PostgresSink] keeps durable history.
package eventlog

import (
	"context"
	"errors"
	"time"
)

// NotRecognized is the result recorded for transcripts that were not
// executed.
const NotRecognized = "Command not recognized or confidence too low"

// Event is one processed transcript.
type Event struct {
	Timestamp time.Time `json:"timestamp"`

	// Transcript is the raw text as received.
	Transcript string `json:"transcript"`

	// Command is the matched handler name, or "" when nothing matched.
	Command string `json:"command"`

	// Phrase is the vocabulary phrase that matched.
	Phrase string `json:"phrase,omitempty"`

	Confidence float64 `json:"confidence"`

	// Kind is "exact", "fuzzy" or "none".
	Kind string `json:"kind"`

	// Result is the handler's status string, a dispatch error description or
	// [NotRecognized].
	Result string `json:"result"`

	// Executed reports whether a handler was invoked.
	Executed bool `json:"executed"`

	// TraceID correlates the event with logs and spans.
	TraceID string `json:"trace_id,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Multi fans an event out to every sink. A failing sink does not stop the
// others; all errors are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
