// Package ingest feeds transcripts into the command pipeline.
//
// A transcript source is anything that produces recognised speech as text:
// a line-oriented stream such as stdin or a pipe from a speech-to-text tool
// ([LineSource]), or an external recogniser pushing text frames over a
// WebSocket ([WebSocketHandler]).
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/sayso/internal/eventlog"
)

// maxLineBytes bounds a single transcript line.
const maxLineBytes = 64 * 1024

// ProcessFunc handles one transcript and returns the recorded event.
type ProcessFunc func(ctx context.Context, transcript string) eventlog.Event

// Source delivers transcripts to a [ProcessFunc] until it is exhausted or ctx
// is cancelled.
type Source interface {
	Run(ctx context.Context, process ProcessFunc) error
}

// LineSource reads one transcript per line. Blank lines are skipped.
type LineSource struct {
	name string
	r    io.Reader
}

var _ Source = (*LineSource)(nil)

// NewLineSource returns a source reading lines from r. name labels log
// output (e.g. "stdin").
func NewLineSource(name string, r io.Reader) *LineSource {
	return &LineSource{name: name, r: r}
}

// Run processes lines sequentially. It returns nil at end of input and
// ctx.Err() on cancellation. A read blocked in r is abandoned on
// cancellation rather than interrupted.
func (s *LineSource) Run(ctx context.Context, process ProcessFunc) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	slog.Info("ingest: reading transcripts", "source", s.name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("ingest: read %s: %w", s.name, err)
					}
				default:
				}
				slog.Info("ingest: source exhausted", "source", s.name)
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			ev := process(ctx, text)
			slog.Debug("ingest: processed", "source", s.name, "command", ev.Command, "executed", ev.Executed)
		}
	}
}
