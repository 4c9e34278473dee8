// Package app wires the sayso subsystems into a running service.
//
// New loads the vocabulary, registers handlers and opens the event sinks.
// Run serves HTTP and drains transcript sources until its context ends.
// Shutdown releases what New opened.
//
// For testing, inject doubles via functional options (WithRegistry,
// WithVocabulary, WithSink, ...). When an option is not provided, New builds
// the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sayso/internal/api"
	"github.com/MrWong99/sayso/internal/config"
	"github.com/MrWong99/sayso/internal/dispatch"
	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/handlers"
	"github.com/MrWong99/sayso/internal/health"
	"github.com/MrWong99/sayso/internal/ingest"
	"github.com/MrWong99/sayso/internal/observe"
	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

// shutdownTimeout bounds the graceful HTTP drain inside Run.
const shutdownTimeout = 5 * time.Second

// settings are the hot-reloadable knobs, swapped as one value.
type settings struct {
	match   resolver.Config
	execute float64
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	store      *vocabulary.Store
	resolver   *resolver.Resolver
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	settings   atomic.Pointer[settings]

	ring  *eventlog.Ring
	pg    *eventlog.PostgresSink
	sinks []eventlog.Sink
	sink  eventlog.Sink

	sources    []ingest.Source
	stdin      io.Reader
	handler    http.Handler
	logLevel   *slog.LevelVar
	configPath string

	vocab       *vocabulary.Vocabulary
	handlerOpts []handlers.Option

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVocabulary uses v instead of loading cfg.Vocabulary.Path.
func WithVocabulary(v *vocabulary.Vocabulary) Option {
	return func(a *App) { a.vocab = v }
}

// WithRegistry registers the configured handlers into reg instead of a
// fresh registry, so callers can pre-register their own handlers.
func WithRegistry(reg *dispatch.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithHandlerOptions passes opts to every configured handler, e.g.
// [handlers.WithRunner] to intercept process execution.
func WithHandlerOptions(opts ...handlers.Option) Option {
	return func(a *App) { a.handlerOpts = append(a.handlerOpts, opts...) }
}

// WithSink records events to s in addition to the configured sinks.
func WithSink(s eventlog.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, s) }
}

// WithSource adds a transcript source run by [App.Run].
func WithSource(s ingest.Source) Option {
	return func(a *App) { a.sources = append(a.sources, s) }
}

// WithStdin replaces os.Stdin as the reader behind ingest.stdin.
func WithStdin(r io.Reader) Option {
	return func(a *App) { a.stdin = r }
}

// WithLogLevel lets config reloads adjust lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigPath enables hot reload of the config file at path while Run
// is active.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It performs all
// initialisation synchronously: vocabulary load, handler registration,
// event sink connection and HTTP routing.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		stdin: os.Stdin,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.settings.Store(settingsFrom(cfg))

	// ── 1. Vocabulary ────────────────────────────────────────────────────
	if a.vocab == nil {
		a.vocab = vocabulary.LoadOrEmpty(cfg.Vocabulary.Path)
	}
	a.store = vocabulary.NewStore(a.vocab)
	a.metrics.VocabularyCommands.Record(ctx, int64(a.store.Current().Len()))
	a.resolver = resolver.New(a.store,
		resolver.WithConfig(cfg.Resolver.Matching()),
		resolver.WithMetrics(a.metrics),
	)

	// ── 2. Handlers ──────────────────────────────────────────────────────
	if err := a.initDispatch(); err != nil {
		return nil, fmt.Errorf("app: init handlers: %w", err)
	}

	// ── 3. Event sinks ───────────────────────────────────────────────────
	if err := a.initEvents(ctx); err != nil {
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 4. Sources ───────────────────────────────────────────────────────
	if cfg.Ingest.Stdin {
		a.sources = append(a.sources, ingest.NewLineSource("stdin", a.stdin))
	}

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initDispatch() error {
	if a.registry == nil {
		a.registry = dispatch.NewRegistry()
	}
	if err := handlers.Register(a.registry, a.cfg.Handlers, a.handlerOpts...); err != nil {
		return err
	}

	for _, c := range a.store.Current().Commands() {
		if _, ok := a.registry.Lookup(c.Handler); !ok {
			slog.Warn("app: vocabulary command has no registered handler", "handler", c.Handler)
		}
	}

	dopts := []dispatch.Option{dispatch.WithMetrics(a.metrics)}
	if a.cfg.Dispatch.Breaker.Enabled {
		dopts = append(dopts, dispatch.WithBreaker(a.cfg.Dispatch.Breaker.CircuitBreaker()))
	}
	a.dispatcher = dispatch.New(a.registry, dopts...)
	slog.Info("app: handlers registered", "count", a.registry.Len())
	return nil
}

func (a *App) initEvents(ctx context.Context) error {
	a.ring = eventlog.NewRing(a.cfg.Events.Capacity)
	sinks := []eventlog.Sink{a.ring}

	if dsn := a.cfg.Events.PostgresDSN; dsn != "" {
		pg, err := eventlog.NewPostgresSink(ctx, dsn)
		if err != nil {
			return err
		}
		a.pg = pg
		sinks = append(sinks, pg)
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		slog.Info("app: durable event history enabled")
	}

	a.sink = eventlog.Multi(append(sinks, a.sinks...)...)
	return nil
}

func (a *App) initHTTP() {
	checkers := []health.Checker{{
		Name: "vocabulary",
		Check: func(context.Context) error {
			if a.store.Current().Len() == 0 {
				return errors.New("no commands loaded")
			}
			return nil
		},
	}}
	if a.pg != nil {
		checkers = append(checkers, health.Checker{Name: "events", Check: a.pg.Ping})
	}

	opts := []api.Option{
		api.WithHealth(health.New(checkers...)),
		api.WithScrapeHandler(promhttp.Handler()),
		api.WithMetrics(a.metrics),
	}
	if a.cfg.Ingest.WebSocket {
		opts = append(opts, api.WithTranscripts(
			ingest.NewWebSocketHandler(a.Process, ingest.WithMetrics(a.metrics)),
		))
	}
	a.handler = api.New(a, opts...)
}

func settingsFrom(cfg *config.Config) *settings {
	return &settings{
		match:   cfg.Resolver.Matching(),
		execute: cfg.Resolver.Execute(),
	}
}

// ─── Pipeline ────────────────────────────────────────────────────────────────

// Process runs one transcript through the pipeline: resolve, execute when
// the confidence strictly exceeds the execute threshold, and record the
// event to every sink. A blank transcript is ignored and not recorded.
func (a *App) Process(ctx context.Context, transcript string) eventlog.Event {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return eventlog.Event{Timestamp: time.Now().UTC(), Kind: resolver.KindNone.String(), Result: eventlog.NotRecognized}
	}

	ctx, span := observe.StartSpan(ctx, "app.Process")
	defer span.End()
	log := observe.Logger(ctx)

	st := a.settings.Load()
	m := a.resolver.ResolveWith(ctx, text, st.match)

	ev := eventlog.Event{
		Timestamp:  time.Now().UTC(),
		Transcript: text,
		Command:    m.Handler,
		Phrase:     m.Phrase,
		Confidence: m.Confidence,
		Kind:       m.Kind.String(),
		TraceID:    observe.CorrelationID(ctx),
	}

	if m.Matched() && m.Confidence > st.execute {
		res := a.dispatcher.Run(ctx, m.Handler, text)
		ev.Result = res.Output
		ev.Executed = true
	} else {
		ev.Result = eventlog.NotRecognized
	}

	span.SetAttributes(
		attribute.String("app.command", ev.Command),
		attribute.Bool("app.executed", ev.Executed),
	)

	if err := a.sink.Record(ctx, ev); err != nil {
		log.Warn("app: failed to record event", "err", err)
	}

	log.Info("app: processed transcript",
		"transcript", ev.Transcript,
		"command", ev.Command,
		"confidence", ev.Confidence,
		"executed", ev.Executed,
		"result", ev.Result,
	)
	return ev
}

// Resolve matches transcript with the live settings without executing.
func (a *App) Resolve(ctx context.Context, transcript string) resolver.Match {
	return a.resolver.ResolveWith(ctx, transcript, a.settings.Load().match)
}

// Suggest returns up to n vocabulary phrases resembling transcript.
func (a *App) Suggest(transcript string, n int) []resolver.Suggestion {
	return a.resolver.Suggest(transcript, n)
}

// Execute runs a handler by name, bypassing resolution.
func (a *App) Execute(ctx context.Context, handler, commandText string) dispatch.Result {
	ctx, span := observe.StartSpan(ctx, "app.Execute",
		trace.WithAttributes(attribute.String("app.command", handler)),
	)
	defer span.End()
	return a.dispatcher.Run(ctx, handler, commandText)
}

// Commands returns the live vocabulary in declaration order.
func (a *App) Commands() []vocabulary.Command {
	return a.store.Current().Commands()
}

// Events returns up to limit recent events, oldest first. Requests larger
// than the in-memory window are served from durable history when it is
// configured. A limit of zero or less returns the whole in-memory window.
func (a *App) Events(ctx context.Context, limit int) ([]eventlog.Event, error) {
	snap := a.ring.Snapshot()
	switch {
	case limit <= 0:
		return snap, nil
	case limit <= len(snap):
		return snap[len(snap)-limit:], nil
	case a.pg != nil:
		return a.pg.Recent(ctx, limit)
	default:
		return snap, nil
	}
}

// Vocabulary returns the vocabulary store.
func (a *App) Vocabulary() *vocabulary.Store {
	return a.store
}

// ReloadVocabulary rereads the vocabulary file and publishes the result.
// Unlike the watcher, which keeps the last good vocabulary, a file that no
// longer loads leaves the service with an empty vocabulary, the same state
// as starting without it.
func (a *App) ReloadVocabulary(ctx context.Context) vocabulary.Diff {
	d := a.store.Reload(a.cfg.Vocabulary.Path)
	a.metrics.RecordVocabularyReload(ctx, observe.StatusOK, a.store.Current().Len())
	return d
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on cfg.Server.ListenAddr, runs every transcript source and
// the enabled watchers, and blocks until ctx is cancelled or a component
// fails. Cancellation is a clean exit and returns nil.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener, which it closes on return.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	// Watchers snapshot their files before the listener accepts anything,
	// so an edit made after the first successful request is always seen.
	if a.cfg.Vocabulary.Watch {
		w := vocabulary.NewWatcher(a.cfg.Vocabulary.Path, a.store,
			vocabulary.WithInterval(a.cfg.Vocabulary.WatchInterval),
			vocabulary.WithOnChange(func(vocabulary.Diff) {
				a.metrics.RecordVocabularyReload(ctx, observe.StatusOK, a.store.Current().Len())
			}),
		)
		g.Go(func() error {
			_ = w.Run(ctx)
			return nil
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig,
			config.WithInterval(a.cfg.Vocabulary.WatchInterval),
		)
		if err != nil {
			slog.Warn("app: config hot reload disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the run context rather than on Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		slog.Info("app: http listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http: %w", err)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: http shutdown", "err", err)
		}
		return nil
	})

	for _, src := range a.sources {
		g.Go(func() error {
			if err := src.Run(ctx, a.Process); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyConfig applies the hot-reloadable parts of a changed config file.
func (a *App) applyConfig(_, next *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.ResolverChanged {
		st := settingsFrom(next)
		a.settings.Store(st)
		slog.Info("app: resolver settings changed",
			"fuzzy", st.match.Fuzzy,
			"match_threshold", st.match.Threshold,
			"execute_threshold", st.execute,
		)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases resources opened by New. It respects the context
// deadline: if ctx expires before all closers finish, the remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
