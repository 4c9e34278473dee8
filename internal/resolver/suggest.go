package resolver

import (
	"slices"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/sayso/internal/vocabulary"
)

// Suggestion is a phrase that resembles a transcript which did not resolve.
type Suggestion struct {
	Phrase  string  `json:"phrase"`
	Handler string  `json:"handler"`
	Score   float64 `json:"score"`
}

// Suggest ranks indexed phrases by Jaro-Winkler similarity to transcript and
// returns at most n of them, best first. It is a diagnostic for "did you
// mean" output and never influences [Resolver.Resolve].
func (r *Resolver) Suggest(transcript string, n int) []Suggestion {
	normalized := vocabulary.Normalize(transcript)
	if normalized == "" || n <= 0 {
		return nil
	}

	index := r.src.Current().Index()
	out := make([]Suggestion, 0, len(index))
	for _, e := range index {
		out = append(out, Suggestion{
			Phrase:  e.Phrase,
			Handler: e.Handler,
			Score:   matchr.JaroWinkler(normalized, e.Phrase, false),
		})
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
