// Package resolver maps free-form transcripts to vocabulary commands.
//
// Resolution runs in two passes over the phrase index:
//
//  1. Exact pass: the first indexed phrase (in vocabulary declaration order)
//     that occurs as a substring of the normalized transcript wins with
//     confidence 1.0. "please mute game now" matches "mute game".
//
//  2. Fuzzy pass (optional): the phrase with the highest Ratcliff/Obershelp
//     similarity to the whole transcript is selected, provided the
//     similarity reaches the threshold. The reported confidence is not that
//     similarity but the cruder [PositionalConfidence] between transcript and
//     phrase, so a plausible-but-shifted transcript passes selection yet
//     reports low confidence.
//
// A miss is a normal outcome and is reported as the zero [Match].
package resolver

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sayso/internal/observe"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

const (
	// DefaultThreshold is the minimum similarity a fuzzy candidate needs.
	DefaultThreshold = 0.6
)

// Kind classifies how a [Match] was produced.
type Kind int

const (
	// KindNone means no command matched.
	KindNone Kind = iota

	// KindExact means an indexed phrase occurred verbatim in the transcript.
	KindExact

	// KindFuzzy means the closest phrase passed the similarity threshold.
	KindFuzzy
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Match is the outcome of resolving one transcript.
type Match struct {
	// Handler is the matched command's dispatch key, or "" on a miss.
	Handler string `json:"handler"`

	// Confidence is 1.0 for exact matches, the positional score for fuzzy
	// matches, and 0.0 on a miss.
	Confidence float64 `json:"confidence"`

	// Phrase is the normalized indexed phrase that matched.
	Phrase string `json:"phrase,omitempty"`

	// Similarity is the selection ratio of a fuzzy match (1.0 for exact).
	Similarity float64 `json:"similarity,omitempty"`

	// Kind tells exact and fuzzy matches apart.
	Kind Kind `json:"kind"`
}

// Matched reports whether m names a handler.
func (m Match) Matched() bool {
	return m.Handler != ""
}

// Config holds the per-call matching parameters.
type Config struct {
	// Fuzzy enables the approximate pass after a failed exact pass.
	Fuzzy bool

	// Threshold is the minimum similarity for a fuzzy candidate, in [0, 1].
	Threshold float64
}

// DefaultConfig returns fuzzy matching enabled at [DefaultThreshold].
func DefaultConfig() Config {
	return Config{Fuzzy: true, Threshold: DefaultThreshold}
}

// Source yields the vocabulary to match against. [vocabulary.Store]
// satisfies it; the resolver reads it once per call so a concurrent reload
// never splits a single resolution across two vocabularies.
type Source interface {
	Current() *vocabulary.Vocabulary
}

// Resolver matches transcripts against a [Source]. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	src     Source
	cfg     Config
	metrics *observe.Metrics
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithConfig overrides the default matching parameters.
func WithConfig(cfg Config) Option {
	return func(r *Resolver) {
		r.cfg = cfg
	}
}

// WithMetrics records resolution metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New returns a resolver reading vocabularies from src.
func New(src Source, opts ...Option) *Resolver {
	r := &Resolver{
		src: src,
		cfg: DefaultConfig(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Config returns the resolver's default parameters.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve matches transcript using the resolver's default parameters.
func (r *Resolver) Resolve(ctx context.Context, transcript string) Match {
	return r.ResolveWith(ctx, transcript, r.cfg)
}

// ResolveWith matches transcript using cfg. A threshold outside [0, 1] is
// clamped. ResolveWith never fails; the worst outcome is the zero Match.
func (r *Resolver) ResolveWith(ctx context.Context, transcript string, cfg Config) Match {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.Bool("resolver.fuzzy", cfg.Fuzzy)),
	)
	defer span.End()

	m := match(r.src.Current(), transcript, cfg)

	span.SetAttributes(
		attribute.String("resolver.kind", m.Kind.String()),
		attribute.String("resolver.handler", m.Handler),
		attribute.Float64("resolver.confidence", m.Confidence),
	)
	r.metrics.RecordResolution(ctx, m.Kind.String(), time.Since(start))

	log := observe.Logger(ctx)
	switch m.Kind {
	case KindExact:
		log.Debug("resolver: exact match", "phrase", m.Phrase, "handler", m.Handler)
	case KindFuzzy:
		log.Debug("resolver: fuzzy match",
			"phrase", m.Phrase,
			"handler", m.Handler,
			"similarity", m.Similarity,
			"confidence", m.Confidence,
		)
	default:
		log.Debug("resolver: no match", "transcript", transcript)
	}
	return m
}

// match is the pure matching algorithm.
func match(v *vocabulary.Vocabulary, transcript string, cfg Config) Match {
	if transcript == "" {
		return Match{}
	}
	normalized := vocabulary.Normalize(transcript)
	if normalized == "" {
		return Match{}
	}

	index := v.Index()
	for _, e := range index {
		if strings.Contains(normalized, e.Phrase) {
			return Match{
				Handler:    e.Handler,
				Confidence: 1.0,
				Phrase:     e.Phrase,
				Similarity: 1.0,
				Kind:       KindExact,
			}
		}
	}

	if !cfg.Fuzzy {
		return Match{}
	}

	threshold := min(max(cfg.Threshold, 0), 1)
	best, ratio, ok := closest(normalized, index, threshold)
	if !ok {
		return Match{}
	}
	return Match{
		Handler:    best.Handler,
		Confidence: PositionalConfidence(normalized, best.Phrase),
		Phrase:     best.Phrase,
		Similarity: ratio,
		Kind:       KindFuzzy,
	}
}
