package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/sayso/internal/api"
	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/health"
	"github.com/MrWong99/sayso/internal/observe"
	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

// fakeService answers from fixed data.
type fakeService struct {
	events    []eventlog.Event
	eventsErr error
	gotLimit  int
}

func (f *fakeService) Resolve(_ context.Context, transcript string) resolver.Match {
	if strings.Contains(transcript, "mute game") {
		return resolver.Match{Handler: "mute_game", Confidence: 1, Phrase: "mute game", Similarity: 1, Kind: resolver.KindExact}
	}
	return resolver.Match{}
}

func (f *fakeService) Suggest(string, int) []resolver.Suggestion {
	return []resolver.Suggestion{{Phrase: "mute game", Handler: "mute_game", Score: 0.8}}
}

func (f *fakeService) Commands() []vocabulary.Command {
	return []vocabulary.Command{
		{Handler: "mute_game", Phrases: []string{"mute game"}},
		{Handler: "stop_music", Phrases: []string{"stop music", "pause music"}},
	}
}

func (f *fakeService) Events(_ context.Context, limit int) ([]eventlog.Event, error) {
	f.gotLimit = limit
	return f.events, f.eventsErr
}

func newServer(t *testing.T, svc api.Service, opts ...api.Option) *api.Server {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return api.New(svc, append([]api.Option{api.WithMetrics(m)}, opts...)...)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogs(t *testing.T) {
	t.Parallel()

	svc := &fakeService{events: []eventlog.Event{
		{Transcript: "mute game", Command: "mute_game", Kind: "exact", Confidence: 1, Result: "Game audio toggled", Executed: true},
		{Transcript: "hello", Kind: "none", Result: eventlog.NotRecognized},
	}}
	srv := newServer(t, svc)

	rec := do(t, srv, "GET", "/logs?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if svc.gotLimit != 2 {
		t.Errorf("limit passed = %d, want 2", svc.gotLimit)
	}
	var got []eventlog.Event
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Command != "mute_game" || got[1].Result != eventlog.NotRecognized {
		t.Errorf("events = %+v", got)
	}
}

func TestLogs_EmptyIsArray(t *testing.T) {
	t.Parallel()
	rec := do(t, newServer(t, &fakeService{}), "GET", "/logs", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestLogs_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		svc      *fakeService
		path     string
		wantCode int
	}{
		{"bad limit", &fakeService{}, "/logs?limit=abc", http.StatusBadRequest},
		{"negative limit", &fakeService{}, "/logs?limit=-1", http.StatusBadRequest},
		{"sink failure", &fakeService{eventsErr: errors.New("db down")}, "/logs", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if rec := do(t, newServer(t, tt.svc), "GET", tt.path, ""); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	t.Parallel()

	rec := do(t, newServer(t, &fakeService{}), "GET", "/commands", "")
	var got []vocabulary.Command
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].Handler != "stop_music" || len(got[1].Phrases) != 2 {
		t.Errorf("commands = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &fakeService{})

	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantHandler string
		wantKind    string
		wantSuggest bool
	}{
		{"exact", `{"text": "please mute game"}`, http.StatusOK, "mute_game", "exact", false},
		{"miss", `{"text": "order pizza"}`, http.StatusOK, "", "none", true},
		{"empty text", `{"text": "  "}`, http.StatusBadRequest, "", "", false},
		{"empty body", ``, http.StatusBadRequest, "", "", false},
		{"invalid json", `{"text":`, http.StatusBadRequest, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, "POST", "/resolve", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var got struct {
				Transcript  string                `json:"transcript"`
				Handler     string                `json:"handler"`
				Kind        string                `json:"kind"`
				Confidence  float64               `json:"confidence"`
				Suggestions []resolver.Suggestion `json:"suggestions"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Handler != tt.wantHandler || got.Kind != tt.wantKind {
				t.Errorf("handler/kind = %q/%q, want %q/%q", got.Handler, got.Kind, tt.wantHandler, tt.wantKind)
			}
			if (len(got.Suggestions) > 0) != tt.wantSuggest {
				t.Errorf("suggestions = %+v, want present=%v", got.Suggestions, tt.wantSuggest)
			}
		})
	}
}

func TestResolve_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	if rec := do(t, newServer(t, &fakeService{}), "GET", "/resolve", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /resolve = %d, want 405", rec.Code)
	}
}

func TestOptionalRoutes(t *testing.T) {
	t.Parallel()

	scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	stream := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	bare := newServer(t, &fakeService{})
	full := newServer(t, &fakeService{},
		api.WithHealth(health.New()),
		api.WithScrapeHandler(scrape),
		api.WithTranscripts(stream),
	)

	tests := []struct {
		path     string
		bareCode int
		fullCode int
	}{
		{"/healthz", http.StatusNotFound, http.StatusOK},
		{"/readyz", http.StatusNotFound, http.StatusOK},
		{"/health", http.StatusNotFound, http.StatusOK},
		{"/metrics", http.StatusNotFound, http.StatusOK},
		{"/transcripts", http.StatusNotFound, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if rec := do(t, bare, "GET", tt.path, ""); rec.Code != tt.bareCode {
				t.Errorf("bare %s = %d, want %d", tt.path, rec.Code, tt.bareCode)
			}
			if rec := do(t, full, "GET", tt.path, ""); rec.Code != tt.fullCode {
				t.Errorf("full %s = %d, want %d", tt.path, rec.Code, tt.fullCode)
			}
		})
	}
}
