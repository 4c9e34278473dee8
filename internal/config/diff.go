package config

import (
	"reflect"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the resolver settings are applied without a
// restart; the remaining flags let the caller warn about ignored edits.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ResolverChanged is true if fuzzy matching or either threshold changed.
	ResolverChanged bool

	// RestartRequired lists the sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ResolverChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Both configs
// must have had [ApplyDefaults] applied.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Resolver.Matching() != new.Resolver.Matching() ||
		old.Resolver.Execute() != new.Resolver.Execute() {
		d.ResolverChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Vocabulary != new.Vocabulary {
		d.RestartRequired = append(d.RestartRequired, "vocabulary")
	}
	if old.Dispatch != new.Dispatch {
		d.RestartRequired = append(d.RestartRequired, "dispatch")
	}
	if !reflect.DeepEqual(old.Handlers, new.Handlers) {
		d.RestartRequired = append(d.RestartRequired, "handlers")
	}
	if old.Events != new.Events {
		d.RestartRequired = append(d.RestartRequired, "events")
	}
	if old.Ingest != new.Ingest {
		d.RestartRequired = append(d.RestartRequired, "ingest")
	}

	return d
}
