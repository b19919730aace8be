package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/melodyflow/internal/shared"
)

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes proactively inside the threshold", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(30*time.Second))

		raw, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"me"}`, string(raw))

		assert.Equal(t, 1, f.p.tokenCalls())
		require.Equal(t, 1, f.p.apiCalls())
		assert.Equal(t, "new-access", f.p.apiTokens[0])
	})

	t.Run("no refresh outside the threshold", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(120*time.Second))

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.NoError(t, err)

		assert.Zero(t, f.p.tokenCalls())
		assert.Equal(t, []string{"old-access"}, f.p.apiTokens)
	})

	t.Run("threshold follows the clock", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(120*time.Second))

		f.clock.Advance(61 * time.Second)
		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, f.p.tokenCalls())
	})

	t.Run("proactive refresh failure expires the session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(10*time.Second))
		f.p.tokenStatus = http.StatusBadRequest
		f.p.tokenBody = `{"error":"invalid_grant"}`

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.ErrorIs(t, err, shared.ErrSessionExpired)
		assert.Zero(t, f.p.apiCalls())
		assert.True(t, f.sess.Auth().IsZero())
		assert.Equal(t, 1, f.expired)
	})

	t.Run("401 refreshes once and retries once", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			if token != "new-access" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"display_name":"Listener"}`)
		}

		raw, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"display_name":"Listener"}`, string(raw))

		assert.Equal(t, 1, f.p.tokenCalls())
		assert.Equal(t, []string{"old-access", "new-access"}, f.p.apiTokens)
		assert.Equal(t, "new-access", f.sess.Auth().AccessToken)
	})

	t.Run("second 401 ends the session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			w.WriteHeader(http.StatusUnauthorized)
		}

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.ErrorIs(t, err, shared.ErrSessionExpired)

		assert.Equal(t, 1, f.p.tokenCalls())
		assert.Equal(t, 2, f.p.apiCalls())
		assert.True(t, f.sess.Auth().IsZero())
		assert.Equal(t, 1, f.expired)
	})

	t.Run("401 with failing refresh", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.tokenStatus = http.StatusBadRequest
		f.p.tokenBody = `{"error":"invalid_grant"}`
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			w.WriteHeader(http.StatusUnauthorized)
		}

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.ErrorIs(t, err, shared.ErrSessionExpired)
		assert.Equal(t, 1, f.p.apiCalls())
	})

	t.Run("204 resolves to nil", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			w.WriteHeader(http.StatusNoContent)
		}

		raw, err := f.m.Fetch(ctx, http.MethodGet, "/me/player", nil)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("non-auth errors carry the provider message", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"status":404,"message":"Player command failed: No active device found"}}`)
		}

		_, err := f.m.Fetch(ctx, http.MethodPut, "/me/player/play", nil)
		require.ErrorIs(t, err, shared.ErrAPIRequest)

		var apiErr *shared.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "Player command failed: No active device found", apiErr.Message)
		assert.Zero(t, f.p.tokenCalls())
		assert.False(t, f.sess.Auth().IsZero(), "API errors do not end the session")
	})

	t.Run("unreadable error body falls back to status text", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>upstream</html>")
		}

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.Error(t, err)
		assert.Equal(t, "Spotify API Error: Bad Gateway", err.Error())
	})

	t.Run("sends JSON bodies and accepts absolute URLs", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.api = func(w http.ResponseWriter, r *http.Request, token string) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "/v1/me/player", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}

		body := map[string]any{"device_ids": []string{"dev-1"}, "play": true}
		_, err := f.m.Fetch(ctx, http.MethodPut, f.srv.URL+"/v1/me/player", body)
		require.NoError(t, err)
		require.Len(t, f.p.apiBodies, 1)
		assert.JSONEq(t, `{"device_ids":["dev-1"],"play":true}`, f.p.apiBodies[0])
	})

	t.Run("no token", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		require.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.Zero(t, f.p.apiCalls())
		assert.Zero(t, f.p.tokenCalls())
	})
}

func TestResolve(t *testing.T) {
	m := &Manager{cfg: Config{APIBaseURL: "https://api.spotify.com/v1/"}}

	assert.Equal(t, "https://api.spotify.com/v1/me", m.resolve("/me"))
	assert.Equal(t, "https://api.spotify.com/v1/me/top/tracks?limit=10", m.resolve("me/top/tracks?limit=10"))
	assert.Equal(t, "https://example.com/next", m.resolve("https://example.com/next"))
}
