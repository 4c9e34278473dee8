package vocabulary

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"mute game", "mute game"},
		{"MUTE   Game", "mute game"},
		{"  stop\tthe\nmusic  ", "stop the music"},
		{"\t \n", ""},
		{"Volume UP please", "volume up please"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "MUTE   Game", " a  b\tc ", "ÄÖÜ  Straße", "already normal"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
	if Normalize("MUTE   Game") != Normalize("mute game") {
		t.Error("Normalize should be case-insensitive and whitespace-insensitive")
	}
}

func TestNew_BuildsIndexInDeclarationOrder(t *testing.T) {
	t.Parallel()

	v := New([]Command{
		{Handler: "mute_game", Phrases: []string{"Mute Game", "mute   the sound"}},
		{Handler: "stop_music", Phrases: []string{"stop music"}, Description: "Stop playback"},
	})

	if v.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", v.Len())
	}
	if v.PhraseCount() != 3 {
		t.Fatalf("PhraseCount() = %d, want 3", v.PhraseCount())
	}

	want := []IndexEntry{
		{Phrase: "mute game", Handler: "mute_game"},
		{Phrase: "mute the sound", Handler: "mute_game"},
		{Phrase: "stop music", Handler: "stop_music"},
	}
	for i, e := range v.Index() {
		if e != want[i] {
			t.Errorf("Index()[%d] = %+v, want %+v", i, e, want[i])
		}
	}

	for _, e := range v.Index() {
		if Normalize(e.Phrase) != e.Phrase {
			t.Errorf("index key %q is not normalized", e.Phrase)
		}
	}
}

func TestNew_PhraseCollisionLastWriteWins(t *testing.T) {
	t.Parallel()

	v := New([]Command{
		{Handler: "first", Phrases: []string{"pause", "Stop Music"}},
		{Handler: "second", Phrases: []string{"stop   music"}},
	})

	h, ok := v.Lookup("stop music")
	if !ok {
		t.Fatal("Lookup(stop music) not found")
	}
	if h != "second" {
		t.Errorf("Lookup(stop music) = %q, want %q (later command wins)", h, "second")
	}

	// The colliding phrase keeps its original slot.
	idx := v.Index()
	if len(idx) != 2 {
		t.Fatalf("PhraseCount = %d, want 2", len(idx))
	}
	if idx[1].Phrase != "stop music" || idx[1].Handler != "second" {
		t.Errorf("Index()[1] = %+v, want {stop music second}", idx[1])
	}
}

func TestNew_SkipsEmptyPhrases(t *testing.T) {
	t.Parallel()

	v := New([]Command{{Handler: "h", Phrases: []string{"", "   ", "go"}}})
	if v.PhraseCount() != 1 {
		t.Errorf("PhraseCount() = %d, want 1", v.PhraseCount())
	}
}

func TestNew_CommandWithoutPhrases(t *testing.T) {
	t.Parallel()

	v := New([]Command{{Handler: "unreachable", Phrases: nil}})
	if v.Len() != 1 {
		t.Errorf("Len() = %d, want 1", v.Len())
	}
	if v.PhraseCount() != 0 {
		t.Errorf("PhraseCount() = %d, want 0", v.PhraseCount())
	}
	if _, ok := v.Command("unreachable"); !ok {
		t.Error("Command(unreachable) not found")
	}
}

func TestNew_DuplicateHandlerReplacesEntry(t *testing.T) {
	t.Parallel()

	v := New([]Command{
		{Handler: "h", Phrases: []string{"one"}, Description: "old"},
		{Handler: "h", Phrases: []string{"two"}, Description: "new"},
	})
	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}
	c, _ := v.Command("h")
	if c.Description != "new" {
		t.Errorf("Description = %q, want %q", c.Description, "new")
	}
	// Phrases from both declarations stay reachable.
	for _, p := range []string{"one", "two"} {
		if h, ok := v.Lookup(p); !ok || h != "h" {
			t.Errorf("Lookup(%q) = %q, %v; want h, true", p, h, ok)
		}
	}
}

func TestVocabulary_CommandsReturnsCopy(t *testing.T) {
	t.Parallel()

	v := New([]Command{{Handler: "h", Phrases: []string{"one"}}})
	cmds := v.Commands()
	cmds[0].Phrases[0] = "mutated"

	c, _ := v.Command("h")
	if c.Phrases[0] != "one" {
		t.Errorf("vocabulary was mutated through Commands(): %q", c.Phrases[0])
	}
}

func TestVocabulary_NilSafe(t *testing.T) {
	t.Parallel()

	var v *Vocabulary
	if v.Len() != 0 || v.PhraseCount() != 0 || v.Index() != nil || v.Commands() != nil {
		t.Error("nil vocabulary should behave as empty")
	}
	if _, ok := v.Lookup("x"); ok {
		t.Error("nil vocabulary Lookup should miss")
	}
}
