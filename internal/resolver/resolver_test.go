package resolver_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

// testCommands mirrors a small slice of a real desktop vocabulary.
var testCommands = []vocabulary.Command{
	{Handler: "mute_game", Phrases: []string{"mute game", "mute the sound"}},
	{Handler: "stop_music", Phrases: []string{"stop music", "pause the music"}},
	{Handler: "volume_up", Phrases: []string{"volume up", "turn up the volume"}},
	{Handler: "take_screenshot", Phrases: []string{"take a screenshot", "capture the screen"}},
}

func newResolver(t *testing.T, cmds []vocabulary.Command, opts ...resolver.Option) *resolver.Resolver {
	t.Helper()
	return resolver.New(vocabulary.NewStore(vocabulary.New(cmds)), opts...)
}

func TestResolve_ExactSubstring(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []vocabulary.Command{
		{Handler: "mute_game", Phrases: []string{"mute game", "mute the sound"}},
	})

	m := r.Resolve(context.Background(), "please mute game now")
	if m.Handler != "mute_game" || m.Confidence != 1.0 {
		t.Errorf("Resolve = (%q, %v), want (mute_game, 1.0)", m.Handler, m.Confidence)
	}
	if m.Kind != resolver.KindExact {
		t.Errorf("Kind = %v, want exact", m.Kind)
	}
	if m.Phrase != "mute game" {
		t.Errorf("Phrase = %q, want %q", m.Phrase, "mute game")
	}
}

func TestResolve_ExactPropertyForEveryPhrase(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands)
	ctx := context.Background()

	for _, c := range testCommands {
		for _, p := range c.Phrases {
			for _, s := range []string{
				p,
				strings.ToUpper(p),
				"hey computer,   " + p + "   right now",
				"PLEASE " + strings.ReplaceAll(p, " ", "\t  ") + " thanks",
			} {
				m := r.Resolve(ctx, s)
				if m.Handler != c.Handler || m.Confidence != 1.0 {
					t.Errorf("Resolve(%q) = (%q, %v), want (%q, 1.0)", s, m.Handler, m.Confidence, c.Handler)
				}
			}
		}
	}
}

func TestResolve_EmptyTranscript(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands)
	for _, s := range []string{"", "   ", "\n\t"} {
		m := r.Resolve(context.Background(), s)
		if m.Matched() || m.Confidence != 0 || m.Kind != resolver.KindNone {
			t.Errorf("Resolve(%q) = %+v, want zero match", s, m)
		}
	}
}

func TestResolve_FuzzyScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transcript string
		handler    string
		phrase     string
		similarity float64
		confidence float64
	}{
		{"mut gam", "mute_game", "mute game", 14.0 / 16, 3.0 / 9},
		{"mutt gaem", "mute_game", "mute game", 14.0 / 18, 6.0 / 9},
		{"volum upp", "volume_up", "volume up", 16.0 / 18, 6.0 / 9},
		{"take screen shot", "take_screenshot", "take a screenshot", 30.0 / 33, 5.0 / 17},
		{"capture screen", "take_screenshot", "capture the screen", 28.0 / 32, 8.0 / 18},
		// Passes selection but every position is shifted by one.
		{"top music", "stop_music", "stop music", 18.0 / 19, 0},
	}

	r := newResolver(t, testCommands)
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			t.Parallel()
			m := r.Resolve(context.Background(), tt.transcript)
			if m.Kind != resolver.KindFuzzy {
				t.Fatalf("Kind = %v, want fuzzy (match %+v)", m.Kind, m)
			}
			if m.Handler != tt.handler || m.Phrase != tt.phrase {
				t.Errorf("matched (%q, %q), want (%q, %q)", m.Handler, m.Phrase, tt.handler, tt.phrase)
			}
			if m.Similarity != tt.similarity {
				t.Errorf("Similarity = %v, want %v", m.Similarity, tt.similarity)
			}
			if m.Confidence != tt.confidence {
				t.Errorf("Confidence = %v, want %v", m.Confidence, tt.confidence)
			}
		})
	}
}

func TestResolve_FuzzyThresholdBoundary(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []vocabulary.Command{
		{Handler: "mute_game", Phrases: []string{"mute game", "mute the sound"}},
	})
	ctx := context.Background()

	// Similarity("mute game", "mut gam") is exactly 0.875.
	at := r.ResolveWith(ctx, "mut gam", resolver.Config{Fuzzy: true, Threshold: 0.875})
	if at.Handler != "mute_game" || at.Confidence != 3.0/9 {
		t.Errorf("threshold 0.875: got (%q, %v), want (mute_game, 1/3)", at.Handler, at.Confidence)
	}

	above := r.ResolveWith(ctx, "mut gam", resolver.Config{Fuzzy: true, Threshold: 0.876})
	if above.Matched() || above.Confidence != 0 {
		t.Errorf("threshold 0.876: got %+v, want no match", above)
	}

	def := r.Resolve(ctx, "mut gam")
	if def.Handler != "mute_game" {
		t.Errorf("default threshold: got %+v, want mute_game", def)
	}
}

func TestResolve_BelowThresholdIsNoMatch(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands)
	for _, s := range []string{"xyz", "hello world how are you"} {
		m := r.Resolve(context.Background(), s)
		if m.Matched() || m.Confidence != 0 {
			t.Errorf("Resolve(%q) = %+v, want no match", s, m)
		}
	}
}

func TestResolve_FuzzyDisabled(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands, resolver.WithConfig(resolver.Config{Fuzzy: false, Threshold: 0.6}))
	ctx := context.Background()

	if m := r.Resolve(ctx, "mut gam"); m.Matched() {
		t.Errorf("fuzzy disabled: got %+v, want no match", m)
	}
	if m := r.Resolve(ctx, "mute game"); m.Handler != "mute_game" {
		t.Errorf("exact with fuzzy disabled: got %+v", m)
	}
}

func TestResolve_ExactPassUsesDeclarationOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	shortFirst := newResolver(t, []vocabulary.Command{
		{Handler: "generic", Phrases: []string{"game"}},
		{Handler: "mute_game", Phrases: []string{"mute game"}},
	})
	if m := shortFirst.Resolve(ctx, "mute game"); m.Handler != "generic" {
		t.Errorf("first declared phrase should win, got %q", m.Handler)
	}

	longFirst := newResolver(t, []vocabulary.Command{
		{Handler: "mute_game", Phrases: []string{"mute game"}},
		{Handler: "generic", Phrases: []string{"game"}},
	})
	if m := longFirst.Resolve(ctx, "mute game"); m.Handler != "mute_game" {
		t.Errorf("first declared phrase should win, got %q", m.Handler)
	}
}

func TestResolve_FuzzyTieKeepsIndexOrder(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []vocabulary.Command{
		{Handler: "first", Phrases: []string{"abcx"}},
		{Handler: "second", Phrases: []string{"abcy"}},
	})

	m := r.Resolve(context.Background(), "abcz")
	if m.Handler != "first" {
		t.Errorf("tie: got %q, want the earlier phrase's handler %q", m.Handler, "first")
	}
	if m.Similarity != 0.75 {
		t.Errorf("Similarity = %v, want 0.75", m.Similarity)
	}
}

func TestResolve_CollisionLaterCommandWins(t *testing.T) {
	t.Parallel()

	r := newResolver(t, []vocabulary.Command{
		{Handler: "pause_music", Phrases: []string{"Stop Music"}},
		{Handler: "stop_music", Phrases: []string{"stop  music"}},
	})
	if m := r.Resolve(context.Background(), "stop music please"); m.Handler != "stop_music" {
		t.Errorf("got %q, want stop_music", m.Handler)
	}
}

func TestResolve_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	r := resolver.New(vocabulary.NewStore(vocabulary.LoadOrEmpty("/definitely/missing/vocab.yaml")))
	m := r.Resolve(context.Background(), "anything")
	if m.Matched() || m.Confidence != 0 {
		t.Errorf("got %+v, want no match", m)
	}
}

func TestResolve_ConfidenceBounds(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands, resolver.WithConfig(resolver.Config{Fuzzy: true, Threshold: 0}))
	inputs := []string{"a", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", "mute", "volume", "ümlaut täst", "e", "the"}
	for _, s := range inputs {
		m := r.Resolve(context.Background(), s)
		if m.Confidence < 0 || m.Confidence > 1 {
			t.Errorf("Resolve(%q).Confidence = %v, out of [0, 1]", s, m.Confidence)
		}
	}
}

func TestResolve_ThresholdClamped(t *testing.T) {
	t.Parallel()

	r := newResolver(t, testCommands)
	ctx := context.Background()

	if m := r.ResolveWith(ctx, "mut gam", resolver.Config{Fuzzy: true, Threshold: 7}); m.Matched() {
		t.Errorf("threshold above 1 should behave as 1, got %+v", m)
	}
	if m := r.ResolveWith(ctx, "xyz", resolver.Config{Fuzzy: true, Threshold: -1}); !m.Matched() {
		t.Errorf("threshold below 0 should behave as 0 and accept any phrase, got %+v", m)
	}
}

func TestResolve_ConcurrentWithReload(t *testing.T) {
	t.Parallel()

	a := vocabulary.New(testCommands)
	b := vocabulary.New([]vocabulary.Command{{Handler: "other", Phrases: []string{"mute game"}}})
	store := vocabulary.NewStore(a)
	r := resolver.New(store)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				m := r.Resolve(context.Background(), "mute game")
				if m.Handler != "mute_game" && m.Handler != "other" {
					t.Errorf("unexpected handler %q", m.Handler)
					return
				}
			}
		}()
	}
	for i := range 500 {
		if i%2 == 0 {
			store.Swap(b)
		} else {
			store.Swap(a)
		}
	}
	wg.Wait()
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	for k, want := range map[resolver.Kind]string{
		resolver.KindNone:  "none",
		resolver.KindExact: "exact",
		resolver.KindFuzzy: "fuzzy",
		resolver.Kind(42):  "none",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
