package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// Device is a Spotify Connect device.
type Device struct {
	ID               string `json:"id"`
	IsActive         bool   `json:"is_active"`
	IsPrivateSession bool   `json:"is_private_session"`
	IsRestricted     bool   `json:"is_restricted"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	VolumePercent    *int   `json:"volume_percent"`
}

// PlaybackContext is the album, playlist or artist being played.
type PlaybackContext struct {
	Type string `json:"type"`
	Href string `json:"href"`
	URI  string `json:"uri"`
}

// PlaybackState is the user's current playback.
type PlaybackState struct {
	Device               Device           `json:"device"`
	RepeatState          string           `json:"repeat_state"`
	ShuffleState         bool             `json:"shuffle_state"`
	Context              *PlaybackContext `json:"context"`
	Timestamp            int64            `json:"timestamp"`
	ProgressMS           int              `json:"progress_ms"`
	IsPlaying            bool             `json:"is_playing"`
	Item                 *SpotifyTrack    `json:"item"`
	CurrentlyPlayingType string           `json:"currently_playing_type"`
}

// PlayOptions selects what to start playing. All fields are optional; an empty
// value resumes the current playback.
type PlayOptions struct {
	DeviceID   string
	ContextURI string
	URIs       []string
	// Offset is a position within ContextURI, used when OffsetURI is empty.
	Offset     *int
	OffsetURI  string
	PositionMS *int
}

type playBody struct {
	ContextURI string         `json:"context_uri,omitempty"`
	URIs       []string       `json:"uris,omitempty"`
	Offset     map[string]any `json:"offset,omitempty"`
	PositionMS *int           `json:"position_ms,omitempty"`
}

func (o PlayOptions) body() any {
	b := playBody{ContextURI: o.ContextURI, URIs: o.URIs, PositionMS: o.PositionMS}
	switch {
	case o.OffsetURI != "":
		b.Offset = map[string]any{"uri": o.OffsetURI}
	case o.Offset != nil:
		b.Offset = map[string]any{"position": *o.Offset}
	}
	if b.ContextURI == "" && len(b.URIs) == 0 && b.Offset == nil && b.PositionMS == nil {
		return nil
	}
	return b
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

// PlaybackState returns the current playback, or nil when nothing is active.
func (s *SpotifyService) PlaybackState(ctx context.Context) (*PlaybackState, error) {
	var state PlaybackState
	found, err := s.doRequest(ctx, http.MethodGet, "/me/player", nil, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// Devices lists the user's available devices.
func (s *SpotifyService) Devices(ctx context.Context) ([]Device, error) {
	var res devicesResponse
	if _, err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, &res); err != nil {
		return nil, err
	}
	return res.Devices, nil
}

// Play starts or resumes playback.
func (s *SpotifyService) Play(ctx context.Context, opts PlayOptions) error {
	_, err := s.doRequest(ctx, http.MethodPut, withDevice("/me/player/play", opts.DeviceID, nil), opts.body(), nil)
	return err
}

// Pause pauses playback.
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	_, err := s.doRequest(ctx, http.MethodPut, withDevice("/me/player/pause", deviceID, nil), nil, nil)
	return err
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, deviceID string) error {
	_, err := s.doRequest(ctx, http.MethodPost, withDevice("/me/player/next", deviceID, nil), nil, nil)
	return err
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, deviceID string) error {
	_, err := s.doRequest(ctx, http.MethodPost, withDevice("/me/player/previous", deviceID, nil), nil, nil)
	return err
}

// SetVolume sets the volume to percent (0-100).
func (s *SpotifyService) SetVolume(ctx context.Context, percent int, deviceID string) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume must be between 0 and 100, got %d", shared.ErrInvalidArgument, percent)
	}
	q := url.Values{"volume_percent": {strconv.Itoa(percent)}}
	_, err := s.doRequest(ctx, http.MethodPut, withDevice("/me/player/volume", deviceID, q), nil, nil)
	return err
}

// TransferPlayback moves playback to deviceID and starts playing there.
func (s *SpotifyService) TransferPlayback(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id", shared.ErrMissingArgument)
	}
	body := map[string]any{"device_ids": []string{deviceID}, "play": true}
	_, err := s.doRequest(ctx, http.MethodPut, "/me/player", body, nil)
	return err
}

func withDevice(endpoint, deviceID string, q url.Values) string {
	if deviceID != "" {
		if q == nil {
			q = url.Values{}
		}
		q.Set("device_id", deviceID)
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
