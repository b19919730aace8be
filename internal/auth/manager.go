package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/vault"
)

// RefreshThreshold is how close to expiry a token is refreshed before use.
const RefreshThreshold = 60 * time.Second

// State is the observable phase of the session.
type State string

const (
	StateLoggedOut      State = "LOGGED_OUT"
	StateAuthenticating State = "AUTHENTICATING"
	StateLoggedIn       State = "LOGGED_IN"
	StateRefreshing     State = "REFRESHING"
)

// Config holds the OAuth and API endpoints.
type Config struct {
	AuthURL     string
	TokenURL    string
	APIBaseURL  string
	RedirectURI string
	Scopes      []string
}

// ConfigFrom maps the spotify section of the application config.
func ConfigFrom(c shared.SpotifyConfig) Config {
	return Config{
		AuthURL:     c.AuthURL,
		TokenURL:    c.TokenURL,
		APIBaseURL:  c.APIBaseURL,
		RedirectURI: c.RedirectURI,
		Scopes:      c.Scopes,
	}
}

// Credentials returns the currently resolved API credentials.
type Credentials func() vault.APIConfig

// Authorization is the result of [Manager.BeginAuthorization].
type Authorization struct {
	URL   string
	State string
}

// Manager owns the auth session. It is the only writer of the token fields.
type Manager struct {
	cfg       Config
	session   *session.Session
	creds     Credentials
	client    *http.Client
	clock     clockwork.Clock
	logger    *log.Logger
	onExpired func()

	refreshes singleflight.Group

	mu             sync.Mutex
	authenticating int
	refreshing     int
}

// Option configures a [Manager].
type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }
func WithClock(c clockwork.Clock) Option   { return func(m *Manager) { m.clock = c } }
func WithLogger(l *log.Logger) Option      { return func(m *Manager) { m.logger = l } }

// WithSessionExpiredHook registers fn to run once each time a refresh failure ends the session.
func WithSessionExpiredHook(fn func()) Option { return func(m *Manager) { m.onExpired = fn } }

// NewManager creates a Manager over sess. creds is consulted on every call so
// credential changes take effect without rebuilding the Manager.
func NewManager(cfg Config, sess *session.Session, creds Credentials, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		session: sess,
		creds:   creds,
		client:  &http.Client{Timeout: 30 * time.Second},
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	m.logger = shared.WithLogger(m.logger, "component", "auth")
	return m
}

// State reports the current phase.
func (m *Manager) State() State {
	m.mu.Lock()
	refreshing, authenticating := m.refreshing > 0, m.authenticating > 0
	m.mu.Unlock()

	switch {
	case refreshing:
		return StateRefreshing
	case authenticating:
		return StateAuthenticating
	case m.session.Auth().LoggedIn():
		return StateLoggedIn
	default:
		return StateLoggedOut
	}
}

// Session returns a copy of the current token set.
func (m *Manager) Session() session.AuthSession {
	return m.session.Auth()
}

// BeginAuthorization stores a fresh code verifier and returns the authorize URL to navigate to.
func (m *Manager) BeginAuthorization(ctx context.Context) (*Authorization, error) {
	clientID := m.creds().SpotifyClientID
	if clientID == "" {
		return nil, fmt.Errorf("%w: Spotify client ID is not set", shared.ErrConfigurationMissing)
	}

	verifier, err := NewVerifier()
	if err != nil {
		return nil, err
	}
	if err := m.session.SaveVerifier(ctx, verifier); err != nil {
		return nil, fmt.Errorf("failed to store code verifier: %w", err)
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}

	authURL := m.oauthConfig(clientID).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	m.logger.Debug("authorization started", "redirect_uri", m.cfg.RedirectURI)
	return &Authorization{URL: authURL, State: state}, nil
}

// CompleteAuthorization exchanges code for tokens using the stored verifier.
//
// A missing verifier fails without a network call.
func (m *Manager) CompleteAuthorization(ctx context.Context, code string) error {
	verifier, ok, err := m.session.Verifier(ctx)
	if err != nil {
		return fmt.Errorf("failed to read code verifier: %w", err)
	}
	if !ok {
		return shared.ErrVerifierNotFound
	}

	clientID := m.creds().SpotifyClientID
	if clientID == "" {
		return fmt.Errorf("%w: Spotify client ID is not set", shared.ErrConfigurationMissing)
	}

	m.enter(&m.authenticating)
	defer m.exit(&m.authenticating)

	tok, err := m.oauthConfig(clientID).Exchange(m.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		m.logger.Error("code exchange failed", "error", err)
		return fmt.Errorf("%w: %s", shared.ErrAuthorizationFailed, describe(err))
	}

	if err := m.commit(ctx, tok, ""); err != nil {
		return err
	}
	if err := m.session.ClearVerifier(ctx); err != nil {
		m.logger.Warn("failed to clear code verifier", "error", err)
	}
	m.logger.Info("logged in")
	return nil
}

// Refresh exchanges the refresh token for a new access token and returns it.
//
// Any failure clears the session and returns an error wrapping
// [shared.ErrSessionExpired], except a cancelled ctx, which returns ctx.Err()
// and keeps the session. Concurrent callers share one refresh.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.refreshes.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	current := m.session.Auth()
	if current.RefreshToken == "" {
		return "", m.expire(ctx, shared.ErrNoRefreshToken)
	}

	clientID := m.creds().SpotifyClientID
	if clientID == "" {
		return "", m.expire(ctx, shared.ErrConfigurationMissing)
	}

	m.enter(&m.refreshing)
	defer m.exit(&m.refreshing)

	src := m.oauthConfig(clientID).TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", m.expire(ctx, fmt.Errorf("failed to refresh token: %s", describe(err)))
	}

	if err := m.commit(ctx, tok, current.RefreshToken); err != nil {
		return "", m.expire(ctx, err)
	}
	m.logger.Debug("token refreshed")
	return tok.AccessToken, nil
}

// Logout clears the session. It does not fire the session-expired hook.
func (m *Manager) Logout(ctx context.Context) error {
	if _, err := m.session.ClearAuth(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// expire ends the session after a failed refresh. The hook runs only when a
// session was actually cleared, so repeated failures notify once.
func (m *Manager) expire(ctx context.Context, cause error) error {
	had, err := m.session.ClearAuth(ctx)
	if err != nil {
		m.logger.Error("failed to persist cleared session", "error", err)
	}
	if had {
		m.logger.Warn("session expired", "cause", cause)
		if m.onExpired != nil {
			m.onExpired()
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrSessionExpired, cause)
}

// commit stores tok. prevRefresh is kept when the response carries no new refresh token.
func (m *Manager) commit(ctx context.Context, tok *oauth2.Token, prevRefresh string) error {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prevRefresh
	}
	now := m.clock.Now()
	next := session.NewAuthSession(tok.AccessToken, refresh, lifetime(tok, now), now)
	if err := m.session.SetAuth(ctx, next); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// needsRefresh reports whether the stored token expires within [RefreshThreshold].
func (m *Manager) needsRefresh() bool {
	exp := m.session.Auth().ExpiresAt
	if exp == 0 {
		return false
	}
	return m.clock.Now().UnixMilli() > exp-RefreshThreshold.Milliseconds()
}

func (m *Manager) oauthConfig(clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: m.cfg.RedirectURI,
		Scopes:      m.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.cfg.AuthURL,
			TokenURL:  m.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

func (m *Manager) enter(counter *int) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

func (m *Manager) exit(counter *int) {
	m.mu.Lock()
	*counter--
	m.mu.Unlock()
}

// lifetime reads expires_in from the token response, falling back to Expiry.
func lifetime(tok *oauth2.Token, now time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int64:
		return time.Duration(v) * time.Second
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry.Sub(now)
	}
	return 0
}

// describe extracts the provider's error description from an oauth2 failure.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorDescription != "":
			return re.ErrorDescription
		case re.ErrorCode != "":
			return re.ErrorCode
		case re.Response != nil:
			return http.StatusText(re.Response.StatusCode)
		}
	}
	return err.Error()
}
