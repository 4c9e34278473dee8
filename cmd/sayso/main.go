// Command sayso is the main entry point for the sayso voice command server.
//
// Usage:
//
//	sayso [-config sayso.yaml]          serve the HTTP API and configured sources
//	sayso -match "please mute the game" resolve one transcript and exit
//	sayso -mcp                          serve MCP tools on stdin/stdout
//
// Sending SIGHUP to a serving process rereads the vocabulary file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/sayso/internal/api"
	"github.com/MrWong99/sayso/internal/app"
	"github.com/MrWong99/sayso/internal/config"
	"github.com/MrWong99/sayso/internal/mcpserver"
	"github.com/MrWong99/sayso/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("sayso", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "sayso.yaml", "path to the YAML configuration file")
	matchText := fs.String("match", "", "resolve one transcript, print the match as JSON and exit")
	mcpMode := fs.Bool("mcp", false, "serve MCP tools on stdin/stdout instead of HTTP")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	watchConfig := true
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(stderr, "sayso: config file %q not found, using defaults\n", *configPath)
		cfg = config.Default()
		watchConfig = false
	case err != nil:
		fmt.Fprintf(stderr, "sayso: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Logs go to stderr so that stdout stays free for -match output and the
	// MCP stdio transport.
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(stderr, &level))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	opts := []app.Option{app.WithLogLevel(&level)}
	if watchConfig && *matchText == "" {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	if *mcpMode {
		// stdin belongs to the MCP transport.
		cfg.Ingest.Stdin = false
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if *matchText == "" {
		go reloadOnHangup(ctx, application)
	}

	switch {
	case *matchText != "":
		if err := printMatch(ctx, stdout, application, *matchText); err != nil {
			slog.Error("failed to write match", "err", err)
			return 1
		}
		return 0

	case *mcpMode:
		slog.Info("sayso serving MCP on stdio", "version", version, "commands", len(application.Commands()))
		if err := mcpserver.New(application, version).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("sayso starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"commands", len(application.Commands()),
	)

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printMatch(ctx context.Context, w io.Writer, a *app.App, text string) error {
	m := a.Resolve(ctx, text)
	out := api.ResolveResponse{Transcript: text, Match: m}
	if !m.Matched() {
		out.Suggestions = a.Suggest(text, 3)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// reloadOnHangup rereads the vocabulary file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, a *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			d := a.ReloadVocabulary(ctx)
			slog.Info("vocabulary reloaded on SIGHUP",
				"commands", len(a.Commands()),
				"added", len(d.Added),
				"removed", len(d.Removed),
				"modified", len(d.Modified),
			)
		}
	}
}

// newLogger creates a text logger writing to w whose level follows lv.
func newLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}
