package vocabulary

import "slices"

// Diff describes what changed between two vocabularies, keyed by handler.
type Diff struct {
	// Added lists handlers present only in the new vocabulary.
	Added []string

	// Removed lists handlers present only in the old vocabulary.
	Removed []string

	// Modified lists handlers whose phrases or description changed.
	Modified []string
}

// Changed reports whether the two vocabularies differ at all.
func (d Diff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}

// Compare returns the differences between old and new. Either may be nil.
// The handler lists follow the declaration order of the vocabulary they come
// from.
func Compare(old, new *Vocabulary) Diff {
	var d Diff

	for _, c := range old.Commands() {
		if _, ok := new.Command(c.Handler); !ok {
			d.Removed = append(d.Removed, c.Handler)
		}
	}

	for _, c := range new.Commands() {
		prev, ok := old.Command(c.Handler)
		if !ok {
			d.Added = append(d.Added, c.Handler)
			continue
		}
		if prev.Description != c.Description || !slices.Equal(prev.Phrases, c.Phrases) {
			d.Modified = append(d.Modified, c.Handler)
		}
	}
	return d
}
