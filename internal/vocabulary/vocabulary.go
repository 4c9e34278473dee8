// Package vocabulary holds the command vocabulary: the declarative mapping of
// handler identifiers to trigger phrases, and the reverse phrase index the
// resolver matches transcripts against.
//
// A [Vocabulary] is immutable once built. Reloads construct a new value and
// publish it through a [Store], so readers never need a lock.
package vocabulary

import (
	"log/slog"
	"strings"
)

// Command is a single vocabulary entry. Handler doubles as the dispatch key
// and the name under which a handler implementation is registered.
type Command struct {
	// Handler is the unique dispatch key (e.g. "mute_game").
	Handler string `yaml:"handler" json:"handler"`

	// Phrases are the trigger phrases as authored, case preserved. A command
	// with no phrases is legal but can never be matched.
	Phrases []string `yaml:"phrases" json:"phrases"`

	// Description is a free-text summary shown in listings.
	Description string `yaml:"description" json:"description,omitempty"`
}

// IndexEntry is one row of the phrase index.
type IndexEntry struct {
	// Phrase is the normalized trigger phrase.
	Phrase string

	// Handler is the command that owns Phrase.
	Handler string
}

// Vocabulary is a loaded set of commands plus the derived phrase index.
// All methods are safe for concurrent use; the value is never mutated after
// [New] returns.
type Vocabulary struct {
	commands []Command
	byName   map[string]int

	// index preserves insertion order; phrases maps a phrase to its slot.
	index   []IndexEntry
	phrases map[string]int
}

// Normalize lowercases s and collapses every run of whitespace into a single
// space, dropping leading and trailing whitespace.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Empty returns a vocabulary with zero commands.
func Empty() *Vocabulary {
	return New(nil)
}

// New builds a vocabulary from cmds in declaration order.
//
// Every phrase of every command is normalized and inserted into the phrase
// index, with one exception: a phrase that normalizes to the empty string
// is never inserted. An empty key is a substring of every transcript and
// would resolve any input to its handler at confidence 1.0, so New drops
// it with a warning instead.
//
// When two phrases normalize to the same key the later command wins the
// handler, while the phrase keeps the index position of its first
// insertion.
//
// A later command with a duplicate handler replaces the earlier entry in
// [Vocabulary.Commands]; its phrases are added on top of the earlier ones.
func New(cmds []Command) *Vocabulary {
	v := &Vocabulary{
		byName:  make(map[string]int, len(cmds)),
		phrases: make(map[string]int),
	}

	for _, c := range cmds {
		c.Phrases = append([]string(nil), c.Phrases...)
		if i, ok := v.byName[c.Handler]; ok {
			v.commands[i] = c
		} else {
			v.byName[c.Handler] = len(v.commands)
			v.commands = append(v.commands, c)
		}

		for _, p := range c.Phrases {
			key := Normalize(p)
			if key == "" {
				slog.Warn("vocabulary: skipping empty phrase", "handler", c.Handler)
				continue
			}
			if slot, ok := v.phrases[key]; ok {
				if prev := v.index[slot].Handler; prev != c.Handler {
					slog.Warn("vocabulary: phrase reassigned to later command",
						"phrase", key,
						"previous", prev,
						"handler", c.Handler,
					)
				}
				v.index[slot].Handler = c.Handler
				continue
			}
			v.phrases[key] = len(v.index)
			v.index = append(v.index, IndexEntry{Phrase: key, Handler: c.Handler})
		}
	}
	return v
}

// Len returns the number of commands.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.commands)
}

// PhraseCount returns the number of distinct normalized phrases in the index.
func (v *Vocabulary) PhraseCount() int {
	if v == nil {
		return 0
	}
	return len(v.index)
}

// Commands returns a copy of the commands in declaration order.
func (v *Vocabulary) Commands() []Command {
	if v == nil {
		return nil
	}
	out := make([]Command, len(v.commands))
	for i, c := range v.commands {
		c.Phrases = append([]string(nil), c.Phrases...)
		out[i] = c
	}
	return out
}

// Command returns the command registered under handler.
func (v *Vocabulary) Command(handler string) (Command, bool) {
	if v == nil {
		return Command{}, false
	}
	i, ok := v.byName[handler]
	if !ok {
		return Command{}, false
	}
	c := v.commands[i]
	c.Phrases = append([]string(nil), c.Phrases...)
	return c, true
}

// Index returns the phrase index in insertion order. The returned slice is
// shared and must not be modified.
func (v *Vocabulary) Index() []IndexEntry {
	if v == nil {
		return nil
	}
	return v.index
}

// Lookup returns the handler for an exact phrase. The phrase is normalized
// before lookup.
func (v *Vocabulary) Lookup(phrase string) (string, bool) {
	if v == nil {
		return "", false
	}
	slot, ok := v.phrases[Normalize(phrase)]
	if !ok {
		return "", false
	}
	return v.index[slot].Handler, true
}
