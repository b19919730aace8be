package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/services"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/views"
)

func (r *Runner) writeTracks(tracks []services.SpotifyTrack) {
	for i, t := range tracks {
		r.writePlain("%2d. %s - %s (%s)\n", i+1, t.ArtistNames(), t.Name, views.FormatDuration(t.DurationMS))
		r.writePlain("    id: %s\n", t.ID)
	}
}

// BrowseNewReleases lists new album releases.
func (r *Runner) BrowseNewReleases(ctx context.Context, cmd *cli.Command) error {
	page, err := r.spotify.NewReleases(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page, true)
	}

	r.writePlainHeader("New Releases")
	for i, a := range page.Items {
		artists := make([]string, 0, len(a.Artists))
		for _, ar := range a.Artists {
			artists = append(artists, ar.Name)
		}
		r.writePlain("%2d. %s - %s (%s)\n", i+1, strings.Join(artists, ", "), a.Name, a.ReleaseDate)
	}
	return nil
}

// BrowseFeatured lists featured playlists.
func (r *Runner) BrowseFeatured(ctx context.Context, cmd *cli.Command) error {
	res, err := r.spotify.FeaturedPlaylists(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	title := "Featured Playlists"
	if res.Message != "" {
		title = res.Message
	}
	r.writePlainHeader(title)
	for i, p := range res.Playlists.Items {
		r.writePlain("%2d. %s (%d tracks)\n", i+1, p.Name, p.Tracks.Total)
	}
	return nil
}

// BrowsePlaylists lists the user's playlists.
func (r *Runner) BrowsePlaylists(ctx context.Context, cmd *cli.Command) error {
	page, err := r.spotify.UserPlaylists(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page, true)
	}

	r.writePlainHeader(fmt.Sprintf("Your Playlists (%d)", page.Total))
	for i, p := range page.Items {
		r.writePlain("%2d. %s (%d tracks) by %s\n", i+1, p.Name, p.Tracks.Total, p.Owner.DisplayName)
	}
	return nil
}

// BrowseTop lists the user's top tracks.
func (r *Runner) BrowseTop(ctx context.Context, cmd *cli.Command) error {
	page, err := r.spotify.TopTracks(ctx, int(cmd.Int("limit")), cmd.String("range"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(page, true)
	}

	r.writePlainHeader("Your Top Tracks")
	r.writeTracks(page.Items)
	return nil
}

// Search finds tracks and artists.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	res, err := r.spotify.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	if res.Tracks != nil {
		r.writePlainHeader("Tracks")
		r.writeTracks(res.Tracks.Items)
	}
	if res.Artists != nil && len(res.Artists.Items) > 0 {
		r.writePlainHeader("Artists")
		for i, a := range res.Artists.Items {
			r.writePlain("%2d. %s\n", i+1, a.Name)
		}
	}
	if (res.Tracks == nil || len(res.Tracks.Items) == 0) && (res.Artists == nil || len(res.Artists.Items) == 0) {
		r.writePlain("No results for %q\n", query)
	}
	return nil
}

// Recommend suggests tracks. Without --seed the user's top tracks seed the request.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
	seeds := cmd.StringSlice("seed")
	if len(seeds) == 0 {
		top, err := r.spotify.TopTracks(ctx, 5, "")
		if err != nil {
			return err
		}
		for _, t := range top.Items {
			seeds = append(seeds, t.ID)
		}
	}

	res, err := r.spotify.Recommendations(ctx, seeds, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	if len(res.Tracks) == 0 {
		r.writePlain("No recommendations available\n")
		return nil
	}
	r.writePlainHeader("Recommended For You")
	r.writeTracks(res.Tracks)
	return nil
}
