package resolver

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/MrWong99/sayso/internal/vocabulary"
)

// chars splits s into one element per rune, the unit difflib compares.
func chars(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

// Similarity returns the Ratcliff/Obershelp ratio between a and b:
// 2*M/T where M is the number of characters in matching blocks and T the
// combined length. It is 1.0 for identical strings and 0.0 for strings with
// nothing in common. The ratio is not symmetric in every case; callers that
// need reproducible numbers must keep the argument order fixed (the resolver
// always passes the indexed phrase as a and the transcript as b).
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

// PositionalConfidence counts the positions i where a[i] == b[i], stopping at
// the shorter string, and divides by the longer length. Two empty strings
// score 0.
//
// The score punishes any shift: "mut gam" against "mute game" agrees only on
// the first three runes and scores 3/9 although the two strings share seven
// characters in order.
func PositionalConfidence(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	same := 0
	for i := range min(len(ra), len(rb)) {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longest)
}

// closest returns the index entry with the highest [Similarity] to
// normalized, considering only entries scoring at least threshold. Equal
// scores keep the entry that comes first in the index. The cheap upper
// bounds are checked first so most phrases never reach the full ratio.
func closest(normalized string, index []vocabulary.IndexEntry, threshold float64) (entry vocabulary.IndexEntry, ratio float64, ok bool) {
	m := difflib.NewMatcher(nil, chars(normalized))

	for _, e := range index {
		m.SetSeq1(chars(e.Phrase))
		if m.RealQuickRatio() < threshold || m.QuickRatio() < threshold {
			continue
		}
		r := m.Ratio()
		if r < threshold {
			continue
		}
		if !ok || r > ratio {
			entry, ratio, ok = e, r, true
		}
	}
	return entry, ratio, ok
}
