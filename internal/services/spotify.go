// Spotify Web API types and catalog calls
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/shared"
)

const (
	defaultNewReleasesLimit = 10
	defaultFeaturedLimit    = 8
	defaultPlaylistsLimit   = 20
	defaultTopTracksLimit   = 10
	defaultSearchLimit      = 10
	defaultRecommendLimit   = 10
	maxRecommendationSeeds  = 5
	defaultTimeRange        = "short_term"
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// Listener converts the profile into the requesting user.
func (u *SpotifyUser) Listener() *models.User {
	if u == nil {
		return nil
	}
	return &models.User{ID: u.ID, DisplayName: u.DisplayName}
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	PreviewURL *string         `json:"preview_url"`
	URI        string          `json:"uri"`
}

// ArtistNames joins all artist names with ", ".
func (t SpotifyTrack) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Ref copies the fields stored with a song request.
func (t SpotifyTrack) Ref() models.TrackRef {
	ref := models.TrackRef{ID: t.ID, Title: t.Name, URI: t.URI}
	if len(t.Artists) > 0 {
		ref.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		ref.CoverURL = t.Album.Images[0].URL
	}
	return ref
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

// Page is a paginated list response.
type Page[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

type newReleases struct {
	Albums Page[SpotifyAlbum] `json:"albums"`
}

// FeaturedPlaylists is the editorial playlist listing.
type FeaturedPlaylists struct {
	Message   string                      `json:"message"`
	Playlists Page[SpotifySimplePlaylist] `json:"playlists"`
}

// SearchResults holds the result groups of a search. Absent groups are nil.
type SearchResults struct {
	Tracks  *Page[SpotifyTrack]  `json:"tracks,omitempty"`
	Artists *Page[SpotifyArtist] `json:"artists,omitempty"`
}

// RecommendationSeed describes one seed of a recommendations response.
type RecommendationSeed struct {
	InitialPoolSize    int     `json:"initialPoolSize"`
	AfterFilteringSize int     `json:"afterFilteringSize"`
	AfterRelinkingSize int     `json:"afterRelinkingSize"`
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Href               *string `json:"href"`
}

// Recommendations is a recommendations response.
type Recommendations struct {
	Seeds  []RecommendationSeed `json:"seeds"`
	Tracks []SpotifyTrack       `json:"tracks"`
}

// SpotifyService calls the Spotify Web API through a [Fetcher].
type SpotifyService struct {
	fetch   Fetcher
	limiter *rate.Limiter
}

// NewSpotifyService creates a service throttled to requestsPerSecond. A non-positive rate disables throttling.
func NewSpotifyService(fetch Fetcher, requestsPerSecond float64) *SpotifyService {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &SpotifyService{fetch: fetch, limiter: rate.NewLimiter(limit, burst)}
}

// doRequest sends one request and decodes the response into result.
// It reports false when the API answered with no content.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}

	raw, err := s.fetch.Fetch(ctx, method, endpoint, body)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return true, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return true, nil
}

// get decodes a GET response into a new T. An empty response is an error for catalog calls.
func get[T any](ctx context.Context, s *SpotifyService, endpoint string) (*T, error) {
	var out T
	found, err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: empty response from %s", shared.ErrAPIRequest, endpoint)
	}
	return &out, nil
}

// Me retrieves the current user's profile.
func (s *SpotifyService) Me(ctx context.Context) (*SpotifyUser, error) {
	return get[SpotifyUser](ctx, s, "/me")
}

// NewReleases lists new album releases.
func (s *SpotifyService) NewReleases(ctx context.Context, limit int) (*Page[SpotifyAlbum], error) {
	q := url.Values{"limit": {strconv.Itoa(orDefault(limit, defaultNewReleasesLimit))}}
	res, err := get[newReleases](ctx, s, "/browse/new-releases?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return &res.Albums, nil
}

// FeaturedPlaylists lists editorial playlists.
func (s *SpotifyService) FeaturedPlaylists(ctx context.Context, limit int) (*FeaturedPlaylists, error) {
	q := url.Values{"limit": {strconv.Itoa(orDefault(limit, defaultFeaturedLimit))}}
	return get[FeaturedPlaylists](ctx, s, "/browse/featured-playlists?"+q.Encode())
}

// UserPlaylists lists the current user's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit int) (*Page[SpotifySimplePlaylist], error) {
	q := url.Values{"limit": {strconv.Itoa(orDefault(limit, defaultPlaylistsLimit))}}
	return get[Page[SpotifySimplePlaylist]](ctx, s, "/me/playlists?"+q.Encode())
}

// TopTracks lists the user's top tracks over timeRange (short_term when empty).
func (s *SpotifyService) TopTracks(ctx context.Context, limit int, timeRange string) (*Page[SpotifyTrack], error) {
	if timeRange == "" {
		timeRange = defaultTimeRange
	}
	q := url.Values{
		"limit":      {strconv.Itoa(orDefault(limit, defaultTopTracksLimit))},
		"time_range": {timeRange},
	}
	return get[Page[SpotifyTrack]](ctx, s, "/me/top/tracks?"+q.Encode())
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}
	return get[SpotifyTrack](ctx, s, "/tracks/"+url.PathEscape(trackID))
}

// Search finds tracks and artists. An empty query returns empty results without a request.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) (*SearchResults, error) {
	if strings.TrimSpace(query) == "" {
		return &SearchResults{}, nil
	}
	q := url.Values{
		"q":     {query},
		"type":  {"track,artist"},
		"limit": {strconv.Itoa(orDefault(limit, defaultSearchLimit))},
	}
	return get[SearchResults](ctx, s, "/search?"+q.Encode())
}

// Recommendations suggests tracks seeded by up to five track ids.
// No seeds returns an empty response without a request.
func (s *SpotifyService) Recommendations(ctx context.Context, seedTrackIDs []string, limit int) (*Recommendations, error) {
	if len(seedTrackIDs) == 0 {
		return &Recommendations{Seeds: []RecommendationSeed{}, Tracks: []SpotifyTrack{}}, nil
	}
	if len(seedTrackIDs) > maxRecommendationSeeds {
		seedTrackIDs = seedTrackIDs[:maxRecommendationSeeds]
	}
	q := url.Values{
		"seed_tracks": {strings.Join(seedTrackIDs, ",")},
		"limit":       {strconv.Itoa(orDefault(limit, defaultRecommendLimit))},
	}
	return get[Recommendations](ctx, s, "/recommendations?"+q.Encode())
}

// Raw performs an arbitrary authenticated request and returns the undecoded body.
func (s *SpotifyService) Raw(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var out json.RawMessage
	if _, err := s.doRequest(ctx, method, endpoint, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
