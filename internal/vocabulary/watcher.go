package vocabulary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a vocabulary file and publishes every valid change into a
// [Store]. Polling keeps the dependency surface small and works on network
// filesystems where inotify does not.
//
// A changed file that fails to load is logged and ignored: the store keeps
// serving the last good vocabulary until the file is fixed.
type Watcher struct {
	path     string
	store    *Store
	interval time.Duration
	onChange func(Diff)

	mu        sync.Mutex
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers a callback invoked after each successful swap.
func WithOnChange(fn func(Diff)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// NewWatcher creates a watcher for path that publishes into store. It records
// the file's current state so that the first poll only reacts to later
// edits; the caller is expected to have loaded the initial vocabulary.
// A missing file is not an error, the watcher picks it up once it appears.
func NewWatcher(path string, store *Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		store:    store,
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}

	if data, mtime, err := w.read(); err == nil {
		w.lastHash = sha256.Sum256(data)
		w.lastMtime = mtime
	}
	return w
}

// Run polls until ctx is cancelled. It always returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check inspects the file once and swaps in a new vocabulary if the content
// changed and parses cleanly. It reports whether a swap happened.
func (w *Watcher) Check() bool {
	d, swapped := w.check()
	// The callback runs outside the lock so it may call Check itself.
	if swapped && w.onChange != nil {
		w.onChange(d)
	}
	return swapped
}

func (w *Watcher) check() (Diff, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Debug("vocabulary watcher: cannot stat file", "path", w.path, "err", err)
		return Diff{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.ModTime().Equal(w.lastMtime) {
		return Diff{}, false
	}

	data, mtime, err := w.read()
	if err != nil {
		slog.Warn("vocabulary watcher: cannot read file", "path", w.path, "err", err)
		return Diff{}, false
	}
	hash := sha256.Sum256(data)
	w.lastMtime = mtime
	if hash == w.lastHash {
		return Diff{}, false
	}

	next, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		slog.Warn("vocabulary watcher: keeping previous vocabulary", "path", w.path, "err", err)
		return Diff{}, false
	}
	w.lastHash = hash

	prev := w.store.Swap(next)
	d := Compare(prev, next)
	slog.Info("vocabulary watcher: vocabulary reloaded",
		"path", w.path,
		"commands", next.Len(),
		"added", d.Added,
		"removed", d.Removed,
		"modified", d.Modified,
	)
	return d, true
}

// read returns the file content and modification time.
func (w *Watcher) read() ([]byte, time.Time, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, time.Time{}, fmt.Errorf("read: %w", err)
	}
	return buf.Bytes(), info.ModTime(), nil
}
