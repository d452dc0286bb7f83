// Command planner runs the study planner: the HTTP service with its event
// consumers, and one-shot maintenance commands against the same stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/study-planner/planner-core/config"
)

const usage = `usage: planner <command> [flags]

commands:
  serve        run the HTTP server and the event consumers
  migrate      apply database migrations (-down rolls back one, -status lists)
  seed-task    create the first task of a topic for a user
  complete     complete a task
  uncomplete   reopen a completed task
  note         register a note on a task
  remove       delete a task
  tasks        list a user's agenda
  progress     show a user's daily progress
  flush-cache  drop a user's cached progress days
`

// errUsage is returned for an unknown or missing command.
var errUsage = errors.New("invalid command line")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	name, rest := args[0], args[1:]
	if name == "serve" {
		return serve(ctx, cfg, log)
	}
	if name == "migrate" {
		return migrate(ctx, cfg, log, rest)
	}

	cmd, ok := cliCommands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("%s needs DATABASE_URL: the in-memory stores do not outlive the process", name)
	}

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd(ctx, app, rest)
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Observability.LogLevel)}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name, "version", cfg.App.Version)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
