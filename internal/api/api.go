// Package api serves the sayso HTTP interface.
//
// Routes:
//
//	GET  /logs          recent events, oldest first (?limit=N)
//	GET  /commands      the live vocabulary
//	POST /resolve       match a transcript without executing it
//	GET  /healthz       liveness
//	GET  /readyz        readiness
//	GET  /health        legacy liveness
//	GET  /metrics       Prometheus scrape endpoint
//	GET  /transcripts   WebSocket transcript stream
//
// Probe, metrics and stream routes are mounted only when the corresponding
// option is given.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/health"
	"github.com/MrWong99/sayso/internal/observe"
	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 64 * 1024

// suggestionCount is how many "did you mean" entries /resolve returns on a
// miss.
const suggestionCount = 3

// Service is the part of the application the API exposes.
type Service interface {
	// Resolve matches transcript with the live settings. It never executes.
	Resolve(ctx context.Context, transcript string) resolver.Match

	// Suggest returns up to n phrases resembling transcript.
	Suggest(transcript string, n int) []resolver.Suggestion

	// Commands returns the live vocabulary in declaration order.
	Commands() []vocabulary.Command

	// Events returns up to limit recent events, oldest first. A limit of
	// zero or less means everything kept in memory.
	Events(ctx context.Context, limit int) ([]eventlog.Event, error)
}

// Server routes HTTP requests to a [Service].
type Server struct {
	svc         Service
	health      *health.Handler
	scrape      http.Handler
	transcripts http.Handler
	metrics     *observe.Metrics

	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts the probe endpoints of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithScrapeHandler mounts h at /metrics.
func WithScrapeHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// WithTranscripts mounts h at /transcripts.
func WithTranscripts(h http.Handler) Option {
	return func(s *Server) { s.transcripts = h }
}

// WithMetrics records request metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router.
func New(svc Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /commands", s.handleCommands)
	mux.HandleFunc("POST /resolve", s.handleResolve)
	routes := []string{"/logs", "/commands", "/resolve"}
	if s.health != nil {
		s.health.Register(mux)
		routes = append(routes, probePaths...)
	}
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
		routes = append(routes, "/metrics")
	}
	if s.transcripts != nil {
		mux.Handle("GET /transcripts", s.transcripts)
		routes = append(routes, "/transcripts")
	}

	s.handler = observe.Middleware(s.metrics,
		observe.WithRoutes(routes...),
		observe.WithQuietPaths(probePaths...),
		observe.WithQuietPaths("/metrics"),
	)(mux)
	return s
}

// probePaths are the routes mounted by [health.Handler.Register].
var probePaths = []string{"/healthz", "/readyz", "/health"}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.svc.Events(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("api: list events", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read event log")
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := s.svc.Commands()
	if cmds == nil {
		cmds = []vocabulary.Command{}
	}
	writeJSON(w, http.StatusOK, cmds)
}

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	Text string `json:"text"`
}

// ResolveResponse is the reply of POST /resolve.
type ResolveResponse struct {
	Transcript string `json:"transcript"`
	resolver.Match

	// Suggestions is filled only when nothing matched.
	Suggestions []resolver.Suggestion `json:"suggestions,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is empty")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	m := s.svc.Resolve(r.Context(), req.Text)
	resp := ResolveResponse{Transcript: req.Text, Match: m}
	if !m.Matched() {
		resp.Suggestions = s.svc.Suggest(req.Text, suggestionCount)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
