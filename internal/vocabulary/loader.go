package vocabulary

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every error returned from [Load] and
// [LoadFromReader]: the source is missing, malformed, or violates the schema.
var ErrConfig = errors.New("vocabulary: invalid vocabulary")

// File is the top-level structure of a vocabulary document. JSON documents
// are accepted as well since JSON is a subset of YAML.
//
// Example:
//
//	commands:
//	  - handler: mute_game
//	    phrases: ["mute game", "mute the sound"]
//	    description: "Toggle the system mute key."
type File struct {
	Commands []commandDoc `yaml:"commands"`
}

// commandDoc mirrors [Command] with pointer fields so that absent keys can be
// told apart from empty values.
type commandDoc struct {
	Handler     *string   `yaml:"handler"`
	Phrases     *[]string `yaml:"phrases"`
	Description string    `yaml:"description"`
}

// Load reads the vocabulary document at path and builds a [Vocabulary].
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrConfig, path, err)
	}
	defer f.Close()

	v, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: parse %q: %w", path, err)
	}
	return v, nil
}

// LoadFromReader decodes a vocabulary document from r and validates it.
func LoadFromReader(r io.Reader) (*Vocabulary, error) {
	var doc File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrConfig)
		}
		return nil, fmt.Errorf("%w: decode: %w", ErrConfig, err)
	}

	cmds, err := validate(doc)
	if err != nil {
		return nil, err
	}
	return New(cmds), nil
}

// LoadOrEmpty loads the vocabulary at path. Any failure is logged and an
// empty vocabulary is returned instead, so a broken file degrades the agent's
// capabilities without stopping it.
func LoadOrEmpty(path string) *Vocabulary {
	v, err := Load(path)
	if err != nil {
		slog.Error("vocabulary: failed to load, continuing with no commands", "path", path, "err", err)
		return Empty()
	}
	slog.Info("vocabulary: loaded", "path", path, "commands", v.Len(), "phrases", v.PhraseCount())
	return v
}

// validate checks required fields and converts the document into commands.
// All violations are reported together.
func validate(doc File) ([]Command, error) {
	var errs []error
	cmds := make([]Command, 0, len(doc.Commands))

	for i, d := range doc.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		if d.Handler == nil || *d.Handler == "" {
			errs = append(errs, fmt.Errorf("%s.handler is required", prefix))
			continue
		}
		if d.Phrases == nil {
			errs = append(errs, fmt.Errorf("%s.phrases is required (handler %q)", prefix, *d.Handler))
			continue
		}
		cmds = append(cmds, Command{
			Handler:     *d.Handler,
			Phrases:     *d.Phrases,
			Description: d.Description,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cmds, nil
}
