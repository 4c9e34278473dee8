package ingest_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/ingest"
)

// recorder is a ProcessFunc that remembers every transcript.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) process(_ context.Context, transcript string) eventlog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, transcript)
	return eventlog.Event{Transcript: transcript, Command: "mute_game", Kind: "exact", Confidence: 1, Executed: true}
}

func (r *recorder) transcripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen)
}

func TestLineSource_ProcessesNonBlankLines(t *testing.T) {
	t.Parallel()

	in := "mute game\n\n   \n  stop the music  \r\nvolume up"
	var rec recorder
	src := ingest.NewLineSource("test", strings.NewReader(in))

	if err := src.Run(context.Background(), rec.process); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"mute game", "stop the music", "volume up"}
	if got := rec.transcripts(); !slices.Equal(got, want) {
		t.Errorf("transcripts = %q, want %q", got, want)
	}
}

func TestLineSource_StopsOnCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	var rec recorder
	src := ingest.NewLineSource("pipe", pr)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, rec.process) }()

	if _, err := pw.Write([]byte("next track\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.transcripts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := rec.transcripts(); !slices.Equal(got, []string{"next track"}) {
		t.Errorf("transcripts = %q", got)
	}
}

func TestLineSource_LineTooLong(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("a", 128*1024) + "\n"
	var rec recorder
	err := ingest.NewLineSource("big", strings.NewReader(in)).Run(context.Background(), rec.process)
	if err == nil || !strings.Contains(err.Error(), "ingest: read big") {
		t.Fatalf("Run error = %v, want read error", err)
	}
}
