package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/services"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/views"
)

// PlayerState prints the current playback.
func (r *Runner) PlayerState(ctx context.Context, cmd *cli.Command) error {
	state, err := r.spotify.PlaybackState(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(state, true)
	}
	if state == nil || state.Item == nil {
		return r.writePlain("Nothing is playing\n")
	}

	status := "Paused"
	if state.IsPlaying {
		status = "Playing"
	}
	item := state.Item
	r.writePlain("%s: %s - %s\n", status, item.ArtistNames(), item.Name)
	r.writePlain("%s / %s on %s\n", views.FormatDuration(state.ProgressMS), views.FormatDuration(item.DurationMS), state.Device.Name)
	return nil
}

// PlayerDevices lists available devices.
func (r *Runner) PlayerDevices(ctx context.Context, cmd *cli.Command) error {
	devices, err := r.spotify.Devices(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(devices, true)
	}
	if len(devices) == 0 {
		return r.writePlain("No devices available. Open Spotify on a device first.\n")
	}

	for _, d := range devices {
		marker := " "
		if d.IsActive {
			marker = "*"
		}
		volume := "-"
		if d.VolumePercent != nil {
			volume = strconv.Itoa(*d.VolumePercent) + "%"
		}
		r.writePlain("%s %s (%s, volume %s)\n    id: %s\n", marker, d.Name, d.Type, volume, d.ID)
	}
	return nil
}

// PlayerPlay starts or resumes playback.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	opts := services.PlayOptions{
		DeviceID:   cmd.String("device"),
		ContextURI: cmd.String("context"),
		URIs:       cmd.StringSlice("uri"),
		OffsetURI:  cmd.String("offset-uri"),
	}
	if err := r.spotify.Play(ctx, opts); err != nil {
		return err
	}
	return r.writePlain("▶ Playing\n")
}

func (r *Runner) PlayerPause(ctx context.Context, cmd *cli.Command) error {
	if err := r.spotify.Pause(ctx, cmd.String("device")); err != nil {
		return err
	}
	return r.writePlain("⏸ Paused\n")
}

func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	if err := r.spotify.Next(ctx, cmd.String("device")); err != nil {
		return err
	}
	return r.writePlain("⏭ Skipped\n")
}

func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	if err := r.spotify.Previous(ctx, cmd.String("device")); err != nil {
		return err
	}
	return r.writePlain("⏮ Back\n")
}

// PlayerVolume sets the volume.
func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("percent")
	if raw == "" {
		return fmt.Errorf("%w: volume percent", shared.ErrMissingArgument)
	}
	percent, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: volume must be a number, got %q", shared.ErrInvalidArgument, raw)
	}
	if err := r.spotify.SetVolume(ctx, percent, cmd.String("device")); err != nil {
		return err
	}
	return r.writePlain("🔊 Volume %d%%\n", percent)
}

// PlayerTransfer moves playback to a device.
func (r *Runner) PlayerTransfer(ctx context.Context, cmd *cli.Command) error {
	device := cmd.StringArg("device")
	if err := r.spotify.TransferPlayback(ctx, device); err != nil {
		return err
	}
	return r.writePlain("✓ Playback moved to %s\n", device)
}
