package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/formatter"
	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/views"
)

// RequestsSubmit requests a track as the logged in user.
func (r *Runner) RequestsSubmit(ctx context.Context, cmd *cli.Command) error {
	track, err := r.spotify.Track(ctx, cmd.String("track"))
	if err != nil {
		return err
	}
	me, err := r.spotify.Me(ctx)
	if err != nil {
		return err
	}

	req, err := r.queue.Submit(ctx, track.Ref(), me.Listener())
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(req, true)
	}

	r.writePlain("✓ Requested %s - %s (id: %s)\n", req.Artist, req.Title, req.ID)
	if !r.queue.Configured() {
		r.writePlain("• Backing store not configured: this request was not saved\n")
	}
	return nil
}

// RequestsList prints one of the derived views of the queue.
func (r *Runner) RequestsList(ctx context.Context, cmd *cli.Command) error {
	all, err := r.queue.LoadAll(ctx)
	if err != nil {
		return err
	}

	var rows []models.SongRequest
	title := "All Requests"
	switch strings.ToLower(cmd.String("view")) {
	case "pending":
		rows, title = views.Pending(all), "Pending Requests"
	case "history":
		rows, title = views.DJHistory(all), "Request History"
	case "queue":
		rows, title = views.ListenerQueue(all), "Request Queue"
	case "all", "":
		rows = all
	default:
		return fmt.Errorf("%w: unknown view %q (pending, history, queue, all)", shared.ErrInvalidArgument, cmd.String("view"))
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	r.writePlainHeader(title)
	if !r.queue.Configured() {
		r.writePlain("Backing store not configured: run `melodyflow settings set --store-url ...`\n")
		return nil
	}
	if len(rows) == 0 {
		r.writePlain("No requests\n")
		return nil
	}

	now := r.clock.Now()
	for i, req := range rows {
		r.writePlain("%2d. %s - %s [%s]\n", i+1, req.Artist, req.Title, req.Status)
		r.writePlain("    %s • requested by %s • id: %s\n", views.TimeAgo(req.CreatedAt, now), req.UserName, req.ID)
	}

	tally := views.Counts(all)
	r.writePlainln("Pending: %d | Played: %d | Rejected: %d", tally.Pending, tally.Played, tally.Rejected)
	return nil
}

// RequestsPlay marks a pending request as played.
func (r *Runner) RequestsPlay(ctx context.Context, cmd *cli.Command) error {
	return r.setStatus(ctx, cmd.StringArg("id"), models.StatusPlayed)
}

// RequestsReject rejects a pending request.
func (r *Runner) RequestsReject(ctx context.Context, cmd *cli.Command) error {
	return r.setStatus(ctx, cmd.StringArg("id"), models.StatusRejected)
}

// setStatus loads the queue so the transition can be checked, applies the
// change and waits for the background write to settle.
func (r *Runner) setStatus(ctx context.Context, id string, status models.RequestStatus) error {
	if id == "" {
		return fmt.Errorf("%w: request id", shared.ErrMissingArgument)
	}
	if !r.queue.Configured() {
		return fmt.Errorf("%w: no backing store configured", shared.ErrConfigurationMissing)
	}
	if _, err := r.queue.LoadAll(ctx); err != nil {
		return err
	}

	if err := r.queue.SetStatus(ctx, models.RequestID(id), status); err != nil {
		return err
	}
	r.queue.Wait()

	if failed := r.toastErrors(); len(failed) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrStoreOperation, failed[0])
	}
	return r.writePlain("✓ Request %s marked as %s\n", id, strings.ToLower(string(status)))
}

// RequestsWatch streams change events until interrupted.
func (r *Runner) RequestsWatch(ctx context.Context, cmd *cli.Command) error {
	if !r.queue.Configured() {
		return fmt.Errorf("%w: no backing store configured", shared.ErrConfigurationMissing)
	}

	all, err := r.queue.LoadAll(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Watching requests (%d pending). Press Ctrl+C to stop.\n", views.Counts(all).Pending)

	err = r.queue.Watch(ctx, requests.Handlers{
		OnInsert: func(req models.SongRequest) {
			r.writePlain("+ %s - %s requested by %s (id: %s)\n", req.Artist, req.Title, req.UserName, req.ID)
		},
		OnUpdate: func(req models.SongRequest) {
			r.writePlain("~ %s - %s is now %s\n", req.Artist, req.Title, req.Status)
		},
		OnDelete: func(id models.RequestID) {
			r.writePlain("- request %s removed\n", id)
		},
	})
	if errors.Is(err, requests.ErrFeedClosed) {
		return fmt.Errorf("%w: %v", shared.ErrStoreOperation, err)
	}
	return err
}

// RequestsExport writes the request history in the chosen format.
func (r *Runner) RequestsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	rows, err := r.queue.LoadAll(ctx)
	if err != nil {
		return err
	}

	h := &formatter.History{Title: cmd.String("title"), GeneratedAt: r.clock.Now(), Requests: rows}
	output := cmd.String("output")

	switch format {
	case formatter.FormatCSV:
		res, err := formatter.WriteCSVExport(h, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d requests\n", len(rows))
		r.writePlain("  %s\n  %s\n", res.RequestsFile, res.MetadataFile)
	case formatter.FormatMarkdown:
		res, err := formatter.WriteMarkdownExport(h, output, formatter.CoverURL(h))
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d requests to %s\n", len(rows), res.Directory)
		for _, f := range res.Files {
			r.writePlain("  %s\n", f)
		}
	case formatter.FormatText:
		path, err := formatter.WriteTextExport(h, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d requests to %s\n", len(rows), path)
	}
	return nil
}
