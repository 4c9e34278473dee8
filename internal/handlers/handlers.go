// Package handlers provides the built-in command handlers that sayso can
// wire from configuration: running a fixed command, launching or closing an
// application named in the utterance, and echoing a message.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/MrWong99/sayso/internal/dispatch"
)

// Kind selects the behaviour of a configured handler.
type Kind string

const (
	// KindExec runs a fixed argv and waits for it.
	KindExec Kind = "exec"

	// KindLaunch starts an application named in the utterance without
	// waiting for it to exit.
	KindLaunch Kind = "launch"

	// KindClose runs argv against a window named in the utterance.
	KindClose Kind = "close"

	// KindEcho returns its message without side effects.
	KindEcho Kind = "echo"
)

// DefaultTimeout bounds exec and close commands that set no timeout.
const DefaultTimeout = 5 * time.Second

// Placeholders substituted in Command and Message.
const (
	TargetPlaceholder = "{target}"
	TextPlaceholder   = "{text}"
)

// Definition describes one configured handler.
type Definition struct {
	// Name is the dispatch key referenced by vocabulary commands.
	Name string `yaml:"name"`

	// Kind is one of exec, launch, close or echo.
	Kind Kind `yaml:"kind"`

	// Command is the argv to run. Elements may contain {target} and {text}.
	Command []string `yaml:"command"`

	// Message is the status returned on success. Defaults depend on Kind.
	Message string `yaml:"message"`

	// Aliases maps spoken names to targets, e.g. "web browser" to "firefox".
	Aliases map[string]string `yaml:"aliases"`

	// Strict rejects targets that are not an alias key or value.
	Strict bool `yaml:"strict"`

	// Timeout bounds exec and close commands. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`
}

// Runner executes external commands. [ExecRunner] is the real
// implementation; tests substitute a recorder.
type Runner interface {
	// Run executes argv and waits for it, returning the combined output.
	Run(ctx context.Context, argv []string) ([]byte, error)

	// Start launches argv and returns once the process has started.
	Start(argv []string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements [Runner].
func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return out, fmt.Errorf("%s failed: %w", argv[0], err)
		}
		return out, fmt.Errorf("%s failed: %w (%s)", argv[0], err, trimmed)
	}
	return out, nil
}

// Start implements [Runner]. The child is reaped in the background.
func (ExecRunner) Start(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("handlers: launched process exited", "cmd", argv[0], "err", err)
		}
	}()
	return nil
}

// Option configures handlers built by [New] and [Register].
type Option func(*options)

type options struct {
	runner Runner
}

// WithRunner replaces the [ExecRunner].
func WithRunner(r Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// Validate reports every problem with d.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch d.Kind {
	case KindExec, KindLaunch, KindClose:
		if len(d.Command) == 0 || d.Command[0] == "" {
			errs = append(errs, fmt.Errorf("kind %q requires a command", d.Kind))
		}
	case KindEcho:
		if d.Message == "" {
			errs = append(errs, errors.New(`kind "echo" requires a message`))
		}
	case "":
		errs = append(errs, errors.New("kind is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q", d.Kind))
	}
	if d.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %v must not be negative", d.Timeout))
	}
	return errors.Join(errs...)
}

// New builds the handler described by d.
func New(d Definition, opts ...Option) (dispatch.Handler, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("handlers: %q: %w", d.Name, err)
	}
	o := options{runner: ExecRunner{}}
	for _, fn := range opts {
		fn(&o)
	}

	h := &handler{def: d, runner: o.runner}
	if h.def.Timeout == 0 {
		h.def.Timeout = DefaultTimeout
	}
	if len(d.Aliases) > 0 {
		h.aliases = make(map[string]string, len(d.Aliases))
		h.known = make(map[string]bool, 2*len(d.Aliases))
		for spoken, target := range d.Aliases {
			spoken = strings.ToLower(strings.TrimSpace(spoken))
			h.aliases[spoken] = target
			h.known[spoken] = true
			h.known[strings.ToLower(target)] = true
		}
	}
	return h, nil
}

// Register builds every definition and registers it in reg. It reports all
// failures at once; definitions that build successfully are registered even
// when others fail.
func Register(reg *dispatch.Registry, defs []Definition, opts ...Option) error {
	var errs []error
	for i, d := range defs {
		h, err := New(d, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("handlers[%d]: %w", i, err))
			continue
		}
		if err := reg.Register(d.Name, h); err != nil {
			errs = append(errs, fmt.Errorf("handlers[%d]: %w", i, err))
			continue
		}
		slog.Debug("handlers: registered", "name", d.Name, "kind", d.Kind)
	}
	return errors.Join(errs...)
}

type handler struct {
	def     Definition
	runner  Runner
	aliases map[string]string
	known   map[string]bool
}

// Execute implements [dispatch.Handler].
func (h *handler) Execute(ctx context.Context, commandText string) (string, error) {
	switch h.def.Kind {
	case KindEcho:
		return h.render(h.def.Message, "", commandText), nil
	case KindExec:
		return h.run(ctx, "", commandText, "Done")
	case KindLaunch:
		name, ok := LaunchTarget(commandText)
		if !ok {
			return "Could not determine which application to open", nil
		}
		target, ok := h.resolveTarget(name)
		if !ok {
			return fmt.Sprintf("Could not find application '%s'", name), nil
		}
		if err := h.runner.Start(h.argv(target, commandText)); err != nil {
			return "", err
		}
		return h.render(h.messageOr("Opened {target}"), target, commandText), nil
	case KindClose:
		name, ok := CloseTarget(commandText)
		if !ok {
			return "Could not determine which window to close", nil
		}
		target, ok := h.resolveTarget(name)
		if !ok {
			return fmt.Sprintf("No windows found matching '%s'", name), nil
		}
		return h.run(ctx, target, commandText, "Closed window: {target}")
	}
	return "", fmt.Errorf("handlers: unknown kind %q", h.def.Kind)
}

func (h *handler) run(ctx context.Context, target, commandText, fallback string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.def.Timeout)
	defer cancel()
	if _, err := h.runner.Run(ctx, h.argv(target, commandText)); err != nil {
		return "", err
	}
	return h.render(h.messageOr(fallback), target, commandText), nil
}

func (h *handler) resolveTarget(name string) (string, bool) {
	if t, ok := h.aliases[name]; ok {
		return t, true
	}
	if h.def.Strict && !h.known[name] {
		return "", false
	}
	return name, true
}

func (h *handler) messageOr(fallback string) string {
	if h.def.Message != "" {
		return h.def.Message
	}
	return fallback
}

func (h *handler) argv(target, commandText string) []string {
	out := make([]string, len(h.def.Command))
	for i, a := range h.def.Command {
		out[i] = h.render(a, target, commandText)
	}
	return out
}

func (h *handler) render(s, target, commandText string) string {
	return strings.NewReplacer(TargetPlaceholder, target, TextPlaceholder, commandText).Replace(s)
}
