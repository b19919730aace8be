package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/vault"
)

const testClientID = "client-1234567890-abcdefghijklmnop"

var epoch = time.UnixMilli(1_700_000_000_000)

// provider fakes the token endpoint and the API under one server.
type provider struct {
	mu         sync.Mutex
	tokenForms []url.Values
	apiTokens  []string
	apiBodies  []string

	tokenStatus int
	tokenBody   string
	api         func(w http.ResponseWriter, r *http.Request, token string)
}

func (p *provider) tokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokenForms)
}

func (p *provider) apiCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.apiTokens)
}

func (p *provider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		p.tokenForms = append(p.tokenForms, r.PostForm)
		status, body := p.tokenStatus, p.tokenBody
		p.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		if body == "" {
			body = `{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"new-refresh"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		data, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.apiTokens = append(p.apiTokens, token)
		p.apiBodies = append(p.apiBodies, string(data))
		handle := p.api
		p.mu.Unlock()

		if handle == nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"me"}`)
			return
		}
		handle(w, r, token)
	})
	return mux
}

type fixture struct {
	p       *provider
	srv     *httptest.Server
	m       *Manager
	sess    *session.Session
	clock   *clockwork.FakeClock
	expired int
	creds   vault.APIConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{p: &provider{}, clock: clockwork.NewFakeClockAt(epoch)}
	f.srv = httptest.NewServer(f.p.handler())
	t.Cleanup(f.srv.Close)

	sess, err := session.Load(context.Background(), session.NewMemoryStorage())
	require.NoError(t, err)
	f.sess = sess
	f.creds = vault.APIConfig{SpotifyClientID: testClientID}

	cfg := Config{
		AuthURL:     f.srv.URL + "/authorize",
		TokenURL:    f.srv.URL + "/api/token",
		APIBaseURL:  f.srv.URL + "/v1",
		RedirectURI: "http://127.0.0.1:3000/callback",
		Scopes:      []string{"user-read-playback-state", "user-top-read"},
	}
	f.m = NewManager(cfg, sess, func() vault.APIConfig { return f.creds },
		WithClock(f.clock),
		WithHTTPClient(f.srv.Client()),
		WithLogger(log.New(io.Discard)),
		WithSessionExpiredHook(func() { f.expired++ }),
	)
	return f
}

func (f *fixture) login(t *testing.T, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.sess.SetAuth(context.Background(), session.AuthSession{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiresAt.UnixMilli(),
	}))
}

func TestVerifier(t *testing.T) {
	alnum := regexp.MustCompile(`^[A-Za-z0-9]{64}$`)
	seen := make(map[string]bool)
	for range 20 {
		v, err := NewVerifier()
		require.NoError(t, err)
		assert.Regexp(t, alnum, v)
		assert.False(t, seen[v], "verifiers should not repeat")
		seen[v] = true
	}

	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestBeginAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("builds authorize url", func(t *testing.T) {
		f := newFixture(t)

		authz, err := f.m.BeginAuthorization(ctx)
		require.NoError(t, err)

		u, err := url.Parse(authz.URL)
		require.NoError(t, err)
		assert.Equal(t, "/authorize", u.Path)

		verifier, ok, err := f.sess.Verifier(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		q := u.Query()
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, testClientID, q.Get("client_id"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Equal(t, Challenge(verifier), q.Get("code_challenge"))
		assert.Equal(t, "http://127.0.0.1:3000/callback", q.Get("redirect_uri"))
		assert.Equal(t, "user-read-playback-state user-top-read", q.Get("scope"))
		assert.Equal(t, authz.State, q.Get("state"))
		assert.NotEmpty(t, authz.State)
	})

	t.Run("requires client id", func(t *testing.T) {
		f := newFixture(t)
		f.creds = vault.APIConfig{}

		_, err := f.m.BeginAuthorization(ctx)
		assert.ErrorIs(t, err, shared.ErrConfigurationMissing)

		_, ok, _ := f.sess.Verifier(ctx)
		assert.False(t, ok)
	})

	t.Run("a second start replaces the verifier", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.m.BeginAuthorization(ctx)
		require.NoError(t, err)
		first, _, _ := f.sess.Verifier(ctx)

		_, err = f.m.BeginAuthorization(ctx)
		require.NoError(t, err)
		second, _, _ := f.sess.Verifier(ctx)

		assert.NotEqual(t, first, second)
	})
}

func TestCompleteAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("missing verifier makes no network call", func(t *testing.T) {
		f := newFixture(t)

		err := f.m.CompleteAuthorization(ctx, "some-code")
		assert.ErrorIs(t, err, shared.ErrVerifierNotFound)
		assert.ErrorIs(t, err, shared.ErrAuthorizationFailed)
		assert.Zero(t, f.p.tokenCalls())
		assert.True(t, f.sess.Auth().IsZero())
	})

	t.Run("exchanges code with verifier", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.sess.SaveVerifier(ctx, "stored-verifier"))

		require.NoError(t, f.m.CompleteAuthorization(ctx, "auth-code"))

		require.Equal(t, 1, f.p.tokenCalls())
		form := f.p.tokenForms[0]
		assert.Equal(t, "authorization_code", form.Get("grant_type"))
		assert.Equal(t, "auth-code", form.Get("code"))
		assert.Equal(t, "stored-verifier", form.Get("code_verifier"))
		assert.Equal(t, testClientID, form.Get("client_id"))
		assert.Equal(t, "http://127.0.0.1:3000/callback", form.Get("redirect_uri"))
		assert.Empty(t, form.Get("client_secret"))

		got := f.sess.Auth()
		assert.Equal(t, "new-access", got.AccessToken)
		assert.Equal(t, "new-refresh", got.RefreshToken)
		assert.Equal(t, epoch.Add(time.Hour).UnixMilli(), got.ExpiresAt)
		assert.Equal(t, StateLoggedIn, f.m.State())

		_, ok, _ := f.sess.Verifier(ctx)
		assert.False(t, ok, "verifier is cleared after a successful exchange")
	})

	t.Run("provider rejection surfaces description", func(t *testing.T) {
		f := newFixture(t)
		f.p.tokenStatus = http.StatusBadRequest
		f.p.tokenBody = `{"error":"invalid_grant","error_description":"Invalid authorization code"}`
		require.NoError(t, f.sess.SaveVerifier(ctx, "stored-verifier"))

		err := f.m.CompleteAuthorization(ctx, "bad-code")
		require.ErrorIs(t, err, shared.ErrAuthorizationFailed)
		assert.Contains(t, err.Error(), "Invalid authorization code")
		assert.Equal(t, 1, f.p.tokenCalls())
		assert.Equal(t, StateLoggedOut, f.m.State())
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("failure clears the session once", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.tokenStatus = http.StatusBadRequest
		f.p.tokenBody = `{"error":"invalid_grant","error_description":"Refresh token revoked"}`

		_, err := f.m.Refresh(ctx)
		require.ErrorIs(t, err, shared.ErrSessionExpired)
		assert.True(t, f.sess.Auth().IsZero())
		assert.Equal(t, 1, f.expired)

		_, err = f.m.Refresh(ctx)
		require.ErrorIs(t, err, shared.ErrSessionExpired)
		assert.Equal(t, 1, f.expired, "hook fires only when a session was cleared")
		assert.Equal(t, 1, f.p.tokenCalls())

		_, err = f.m.Fetch(ctx, http.MethodGet, "/me", nil)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.Zero(t, f.p.apiCalls())
	})

	t.Run("keeps refresh token when response omits it", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))
		f.p.tokenBody = `{"access_token":"rotated","token_type":"Bearer","expires_in":1800}`

		token, err := f.m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rotated", token)

		got := f.sess.Auth()
		assert.Equal(t, "old-refresh", got.RefreshToken)
		assert.Equal(t, epoch.Add(30*time.Minute).UnixMilli(), got.ExpiresAt)

		form := f.p.tokenForms[0]
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, "old-refresh", form.Get("refresh_token"))
		assert.Equal(t, testClientID, form.Get("client_id"))
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.sess.SetAuth(ctx, session.AuthSession{AccessToken: "only-access"}))

		_, err := f.m.Refresh(ctx)
		assert.ErrorIs(t, err, shared.ErrSessionExpired)
		assert.Zero(t, f.p.tokenCalls())
		assert.True(t, f.sess.Auth().IsZero())
	})

	t.Run("cancelled context keeps the session", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(30*time.Second))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.m.Refresh(cancelled)
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, shared.ErrSessionExpired)
		assert.Equal(t, "old-refresh", f.sess.Auth().RefreshToken)
		assert.Zero(t, f.expired)

		_, err = f.m.Fetch(cancelled, http.MethodGet, "/me", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, f.sess.Auth().LoggedIn())
		assert.Zero(t, f.p.apiCalls())
	})

	t.Run("logout does not fire the hook", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, epoch.Add(time.Hour))

		require.NoError(t, f.m.Logout(ctx))
		assert.True(t, f.sess.Auth().IsZero())
		assert.Zero(t, f.expired)
		assert.Equal(t, StateLoggedOut, f.m.State())
	})
}

func TestLifetime(t *testing.T) {
	now := epoch

	assert.Equal(t, time.Hour, lifetime(&oauth2.Token{ExpiresIn: 3600}, now))

	extra := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{"expires_in": float64(600)})
	assert.Equal(t, 10*time.Minute, lifetime(extra, now))

	formEncoded := (&oauth2.Token{AccessToken: "a"}).WithExtra(url.Values{"expires_in": {"120"}})
	assert.Equal(t, 2*time.Minute, lifetime(formEncoded, now))

	expiring := &oauth2.Token{Expiry: now.Add(5 * time.Minute)}
	assert.Equal(t, 5*time.Minute, lifetime(expiring, now))

	assert.Zero(t, lifetime(&oauth2.Token{}, now))
}

func TestErrorMessage(t *testing.T) {
	tc := []struct {
		name string
		body string
		want string
	}{
		{name: "api error", body: `{"error":{"status":404,"message":"Non existing id"}}`, want: "Non existing id"},
		{name: "token error", body: `{"error":"invalid_client","error_description":"Invalid client"}`, want: "Invalid client"},
		{name: "bare code", body: `{"error":"server_error"}`, want: "server_error"},
		{name: "html", body: `<html>oops</html>`, want: ""},
		{name: "empty", body: ``, want: ""},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
		})
	}
}
