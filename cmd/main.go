package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/shared"
)

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

// run builds the app from the environment and config file and executes args.
// It returns the process exit code.
func run(args []string, out io.Writer) (code int) {
	sink := shared.NewLogSink(os.Stderr)
	logger := shared.NewLogger(sink)

	env, err := shared.LoadEnv()
	if err != nil {
		logger.Error("failed to read environment", "error", err)
		return 1
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(env.ConfigPath); err == nil {
		if loaded, err := shared.LoadConfig(env.ConfigPath); err == nil {
			config = loaded
		} else {
			logger.Warn("failed to load config, using defaults", "path", env.ConfigPath, "error", err)
		}
	}
	env.Apply(config)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: env.ConfigPath,
		Logger:     logger,
		LogSink:    sink,
		Output:     out,
	})
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("failed to release resources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if rec := recover(); rec != nil {
			code = runner.handleError(ctx, fmt.Errorf("unexpected failure: %v", rec))
		}
	}()

	app := runner.app()

	if err := app.Run(ctx, args); err != nil {
		return runner.handleError(ctx, err)
	}
	return 0
}

// app is the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "melodyflow",
		Usage:   "Browse music, request songs and run the DJ queue from the terminal",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.before,
		After:    func(ctx context.Context, cmd *cli.Command) error { r.flushToasts(); return nil },
		Commands: r.register(),
	}
}

// handleError is the catch-all boundary. Session failures clear the session,
// missing configuration points at the settings command and anything else
// resets the persisted view so the next start is clean.
func (r *Runner) handleError(ctx context.Context, err error) int {
	ctx = context.WithoutCancel(ctx)
	r.queueWait()
	r.flushToasts()

	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case shared.IsSessionError(err):
		if r.auth != nil {
			if lerr := r.auth.Logout(ctx); lerr != nil {
				r.logger.Warn("failed to clear session", "error", lerr)
			}
		}
		r.writePlain("✗ %v\n", err)
		r.writePlain("Run `melodyflow login` to sign in again.\n")
		return 1
	case errors.Is(err, shared.ErrConfigurationMissing):
		r.writePlain("✗ %v\n", err)
		r.writePlain("Run `melodyflow settings set` to add your credentials.\n")
		return 1
	case errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidTransition):
		r.writePlain("✗ %v\n", err)
		return 2
	default:
		r.logger.Error("command failed", "error", err)
		if r.session != nil {
			if verr := r.session.SetView(ctx, session.ViewDashboard); verr != nil {
				r.logger.Warn("failed to reset view", "error", verr)
			}
		}
		r.writePlain("✗ Something went wrong: %v\n", err)
		r.writePlain("Please try again.\n")
		return 1
	}
}

func (r *Runner) queueWait() {
	if r.queue != nil {
		r.queue.Wait()
	}
}
