package services

import (
	"context"
	"encoding/json"
)

// Fetcher performs authenticated API requests. Implemented by [auth.Manager].
//
// A nil result with a nil error means the API answered with no content.
type Fetcher interface {
	Fetch(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error)
}

// Catalog is the read side of the API used by the browse and search commands.
type Catalog interface {
	Me(ctx context.Context) (*SpotifyUser, error)
	NewReleases(ctx context.Context, limit int) (*Page[SpotifyAlbum], error)
	FeaturedPlaylists(ctx context.Context, limit int) (*FeaturedPlaylists, error)
	UserPlaylists(ctx context.Context, limit int) (*Page[SpotifySimplePlaylist], error)
	TopTracks(ctx context.Context, limit int, timeRange string) (*Page[SpotifyTrack], error)
	Track(ctx context.Context, trackID string) (*SpotifyTrack, error)
	Search(ctx context.Context, query string, limit int) (*SearchResults, error)
	Recommendations(ctx context.Context, seedTrackIDs []string, limit int) (*Recommendations, error)
}

// Player is the playback remote control.
type Player interface {
	PlaybackState(ctx context.Context) (*PlaybackState, error)
	Devices(ctx context.Context) ([]Device, error)
	Play(ctx context.Context, opts PlayOptions) error
	Pause(ctx context.Context, deviceID string) error
	Next(ctx context.Context, deviceID string) error
	Previous(ctx context.Context, deviceID string) error
	SetVolume(ctx context.Context, percent int, deviceID string) error
	TransferPlayback(ctx context.Context, deviceID string) error
}

var (
	_ Catalog = (*SpotifyService)(nil)
	_ Player  = (*SpotifyService)(nil)
)
