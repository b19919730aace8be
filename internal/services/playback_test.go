package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/desertthunder/melodyflow/internal/shared"
)

func bodyJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestPlayback(t *testing.T) {
	ctx := context.Background()

	t.Run("PlaybackState nil on no content", func(t *testing.T) {
		srv, _ := newTestService(nil)
		state, err := srv.PlaybackState(ctx)
		if err != nil {
			t.Fatalf("PlaybackState() error = %v", err)
		}
		if state != nil {
			t.Errorf("expected nil state, got %+v", state)
		}
	})

	t.Run("PlaybackState decodes", func(t *testing.T) {
		srv, _ := newTestService(map[string]string{
			"/me/player": `{"is_playing":true,"progress_ms":1000,"device":{"id":"d1","name":"Desk","volume_percent":40},"item":` + trackJSON + `}`,
		})
		state, err := srv.PlaybackState(ctx)
		if err != nil {
			t.Fatalf("PlaybackState() error = %v", err)
		}
		if !state.IsPlaying || state.Device.Name != "Desk" || state.Item.Name != "Midnight City" {
			t.Errorf("unexpected state %+v", state)
		}
		if state.Device.VolumePercent == nil || *state.Device.VolumePercent != 40 {
			t.Errorf("unexpected volume %v", state.Device.VolumePercent)
		}
	})

	t.Run("Devices", func(t *testing.T) {
		srv, _ := newTestService(map[string]string{
			"/me/player/devices": `{"devices":[{"id":"d1","name":"Desk","is_active":true},{"id":"d2","name":"Phone"}]}`,
		})
		devices, err := srv.Devices(ctx)
		if err != nil {
			t.Fatalf("Devices() error = %v", err)
		}
		if len(devices) != 2 || !devices[0].IsActive {
			t.Errorf("unexpected devices %+v", devices)
		}
	})

	t.Run("commands", func(t *testing.T) {
		offset := 2
		tc := []struct {
			name     string
			run      func(*SpotifyService) error
			method   string
			endpoint string
			body     string
		}{
			{
				name:   "resume",
				run:    func(s *SpotifyService) error { return s.Play(ctx, PlayOptions{}) },
				method: http.MethodPut, endpoint: "/me/player/play",
			},
			{
				name: "play context with offset on device",
				run: func(s *SpotifyService) error {
					return s.Play(ctx, PlayOptions{DeviceID: "d1", ContextURI: "spotify:album:1", Offset: &offset})
				},
				method: http.MethodPut, endpoint: "/me/player/play?device_id=d1",
				body: `{"context_uri":"spotify:album:1","offset":{"position":2}}`,
			},
			{
				name:   "play uris",
				run:    func(s *SpotifyService) error { return s.Play(ctx, PlayOptions{URIs: []string{"spotify:track:t1"}}) },
				method: http.MethodPut, endpoint: "/me/player/play",
				body: `{"uris":["spotify:track:t1"]}`,
			},
			{
				name:   "pause",
				run:    func(s *SpotifyService) error { return s.Pause(ctx, "") },
				method: http.MethodPut, endpoint: "/me/player/pause",
			},
			{
				name:   "next",
				run:    func(s *SpotifyService) error { return s.Next(ctx, "") },
				method: http.MethodPost, endpoint: "/me/player/next",
			},
			{
				name:   "previous",
				run:    func(s *SpotifyService) error { return s.Previous(ctx, "d9") },
				method: http.MethodPost, endpoint: "/me/player/previous?device_id=d9",
			},
			{
				name:   "volume",
				run:    func(s *SpotifyService) error { return s.SetVolume(ctx, 55, "") },
				method: http.MethodPut, endpoint: "/me/player/volume?volume_percent=55",
			},
			{
				name:   "transfer",
				run:    func(s *SpotifyService) error { return s.TransferPlayback(ctx, "d2") },
				method: http.MethodPut, endpoint: "/me/player",
				body: `{"device_ids":["d2"],"play":true}`,
			},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				srv, f := newTestService(nil)
				if err := tt.run(srv); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(f.calls) != 1 {
					t.Fatalf("expected one call, got %d", len(f.calls))
				}
				c := f.calls[0]
				if c.method != tt.method || c.endpoint != tt.endpoint {
					t.Errorf("got %s %s, want %s %s", c.method, c.endpoint, tt.method, tt.endpoint)
				}
				if tt.body == "" {
					if c.body != nil {
						t.Errorf("expected no body, got %v", c.body)
					}
					return
				}
				if got := bodyJSON(t, c.body); got != tt.body {
					t.Errorf("body = %s, want %s", got, tt.body)
				}
			})
		}
	})

	t.Run("validation", func(t *testing.T) {
		srv, f := newTestService(nil)
		if err := srv.SetVolume(ctx, 101, ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
		if err := srv.TransferPlayback(ctx, ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
		if len(f.calls) != 0 {
			t.Errorf("invalid input should not reach the API, got %d calls", len(f.calls))
		}
	})
}
