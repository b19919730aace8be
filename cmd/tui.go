package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/ui"
)

// DJ launches the interactive DJ console.
func (r *Runner) DJ(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	restore, err := r.redirectLogs(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to redirect logs: %w", err)
	}
	defer restore()

	if err := r.session.SetView(ctx, session.ViewDJ); err != nil {
		r.logger.Warn("failed to save view", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, r.queue, r.bus, ui.WithClock(r.clock), ui.WithLogger(r.logger))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, runErr := p.Run()
	cancel()
	if err := model.Close(); err != nil {
		r.logger.Warn("failed to close change feed", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("error running DJ console: %w", runErr)
	}
	return nil
}
