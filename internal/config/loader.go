package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/resilience"
)

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Vocabulary.Path == "" {
		cfg.Vocabulary.Path = DefaultVocabularyPath
	}
	if cfg.Vocabulary.WatchInterval == 0 {
		cfg.Vocabulary.WatchInterval = DefaultWatchInterval
	}

	if cfg.Resolver.Fuzzy == nil {
		fuzzy := true
		cfg.Resolver.Fuzzy = &fuzzy
	}
	if cfg.Resolver.MatchThreshold == nil {
		t := resolver.DefaultThreshold
		cfg.Resolver.MatchThreshold = &t
	}
	if cfg.Resolver.ExecuteThreshold == nil {
		t := DefaultExecuteThreshold
		cfg.Resolver.ExecuteThreshold = &t
	}

	if cfg.Dispatch.Breaker.MaxFailures == 0 {
		cfg.Dispatch.Breaker.MaxFailures = resilience.DefaultMaxFailures
	}
	if cfg.Dispatch.Breaker.ResetTimeout == 0 {
		cfg.Dispatch.Breaker.ResetTimeout = resilience.DefaultResetTimeout
	}

	if cfg.Events.Capacity == 0 {
		cfg.Events.Capacity = eventlog.DefaultCapacity
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Vocabulary
	if cfg.Vocabulary.Watch && cfg.Vocabulary.Path == "" {
		errs = append(errs, errors.New("vocabulary.path is required when vocabulary.watch is enabled"))
	}
	if cfg.Vocabulary.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("vocabulary.watch_interval %v must not be negative", cfg.Vocabulary.WatchInterval))
	}

	// Resolver
	if t := cfg.Resolver.MatchThreshold; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, fmt.Errorf("resolver.match_threshold %.2f is out of range [0, 1]", *t))
	}
	if t := cfg.Resolver.ExecuteThreshold; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, fmt.Errorf("resolver.execute_threshold %.2f is out of range [0, 1]", *t))
	}

	// Dispatch
	if cfg.Dispatch.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("dispatch.breaker.max_failures %d must not be negative", cfg.Dispatch.Breaker.MaxFailures))
	}
	if cfg.Dispatch.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("dispatch.breaker.reset_timeout %v must not be negative", cfg.Dispatch.Breaker.ResetTimeout))
	}

	// Handlers
	seen := make(map[string]int, len(cfg.Handlers))
	for i, h := range cfg.Handlers {
		prefix := fmt.Sprintf("handlers[%d]", i)
		if err := h.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if h.Name == "" {
			continue
		}
		if prev, ok := seen[h.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of handlers[%d]", prefix, h.Name, prev))
		}
		seen[h.Name] = i
	}

	// Events
	if cfg.Events.Capacity < 0 {
		errs = append(errs, fmt.Errorf("events.capacity %d must not be negative", cfg.Events.Capacity))
	}

	if !cfg.Ingest.Stdin && !cfg.Ingest.WebSocket {
		slog.Warn("config: no transcript source enabled; only /resolve and MCP will see input")
	}

	return errors.Join(errs...)
}
