package vocabulary

import (
	"log/slog"
	"sync/atomic"
)

// Store publishes the current [Vocabulary]. Readers call [Store.Current]
// without locking; writers build a complete vocabulary first and publish it
// with a single pointer swap, so a reader sees either the old or the new
// index and never a partially built one.
type Store struct {
	current atomic.Pointer[Vocabulary]
}

// NewStore returns a Store holding v. A nil v is replaced by [Empty].
func NewStore(v *Vocabulary) *Store {
	s := &Store{}
	s.Swap(v)
	return s
}

// Current returns the published vocabulary. It is never nil.
func (s *Store) Current() *Vocabulary {
	return s.current.Load()
}

// Swap publishes v and returns the vocabulary it replaced.
func (s *Store) Swap(v *Vocabulary) *Vocabulary {
	if v == nil {
		v = Empty()
	}
	return s.current.Swap(v)
}

// Reload loads path and publishes the result. A load failure publishes an
// empty vocabulary, matching the startup behaviour of [LoadOrEmpty].
func (s *Store) Reload(path string) Diff {
	next := LoadOrEmpty(path)
	prev := s.Swap(next)
	d := Compare(prev, next)
	if d.Changed() {
		slog.Info("vocabulary: reloaded",
			"path", path,
			"added", d.Added,
			"removed", d.Removed,
			"modified", d.Modified,
		)
	}
	return d
}
