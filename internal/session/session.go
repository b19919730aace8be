// package session holds the persisted client state: the auth session, the
// saved API credentials, the last active view and the PKCE code verifier.
//
// A [Session] replaces a process-wide global store. It is created once at
// startup and passed explicitly to the components that need it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/vault"
)

const (
	// StorageKey holds the persisted session entry.
	StorageKey = "melody-flow-storage"
	// VerifierKey holds the PKCE code verifier between authorization start and exchange.
	VerifierKey = "code_verifier"
)

// View is the last active screen.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewSearch    View = "search"
	ViewDJ        View = "dj"
)

// ParseView validates s as a [View].
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewDashboard, ViewSearch, ViewDJ:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown view %q", shared.ErrInvalidArgument, s)
	}
}

// AuthSession is the current token set. Empty strings and a zero ExpiresAt mean "absent".
type AuthSession struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is epoch milliseconds, fixed when the token is issued.
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// NewAuthSession computes ExpiresAt from the issue time. A non-positive expiresIn leaves it unset.
func NewAuthSession(access, refresh string, expiresIn time.Duration, issuedAt time.Time) AuthSession {
	s := AuthSession{AccessToken: access, RefreshToken: refresh}
	if expiresIn > 0 {
		s.ExpiresAt = issuedAt.Add(expiresIn).UnixMilli()
	}
	return s
}

// IsZero reports whether all fields are absent.
func (a AuthSession) IsZero() bool { return a == AuthSession{} }

// LoggedIn reports whether an access token is held.
func (a AuthSession) LoggedIn() bool { return a.AccessToken != "" }

// Expiry returns ExpiresAt as a time; ok is false when unset.
func (a AuthSession) Expiry() (time.Time, bool) {
	if a.ExpiresAt == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(a.ExpiresAt), true
}

type state struct {
	AuthSession
	CurrentView View            `json:"currentView,omitempty"`
	APIConfig   vault.APIConfig `json:"apiConfig"`
}

type envelope struct {
	State   state `json:"state"`
	Version int   `json:"version"`
}

// Session is the in-memory, persisted client state. Safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	storage Storage
	state   state
}

// Load reads the persisted entry from storage. A missing or unreadable entry starts an empty session.
func Load(ctx context.Context, storage Storage) (*Session, error) {
	s := &Session{storage: storage, state: state{CurrentView: ViewDashboard}}

	raw, ok, err := storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return s, nil
	}
	s.state = env.State
	if s.state.CurrentView == "" {
		s.state.CurrentView = ViewDashboard
	}
	return s, nil
}

// Auth returns a copy of the current token set.
func (s *Session) Auth() AuthSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AuthSession
}

// SetAuth replaces the token set and persists it.
func (s *Session) SetAuth(ctx context.Context, a AuthSession) error {
	return s.update(ctx, func(st *state) { st.AuthSession = a })
}

// ClearAuth clears all three token fields. It reports whether anything was held.
func (s *Session) ClearAuth(ctx context.Context) (bool, error) {
	var had bool
	err := s.update(ctx, func(st *state) {
		had = !st.AuthSession.IsZero()
		st.AuthSession = AuthSession{}
	})
	return had, err
}

// APIConfig returns the user-entered credentials, decoded.
func (s *Session) APIConfig() vault.APIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.APIConfig.Decode()
}

// SetAPIConfig stores user-entered credentials, encoded.
func (s *Session) SetAPIConfig(ctx context.Context, cfg vault.APIConfig) error {
	return s.update(ctx, func(st *state) { st.APIConfig = cfg.Encode() })
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentView
}

func (s *Session) SetView(ctx context.Context, v View) error {
	return s.update(ctx, func(st *state) { st.CurrentView = v })
}

// SaveVerifier stores the PKCE code verifier, replacing any previous one.
func (s *Session) SaveVerifier(ctx context.Context, verifier string) error {
	return s.storage.Set(ctx, VerifierKey, verifier)
}

// Verifier returns the stored code verifier.
func (s *Session) Verifier(ctx context.Context) (string, bool, error) {
	v, ok, err := s.storage.Get(ctx, VerifierKey)
	if err != nil || !ok || v == "" {
		return "", false, err
	}
	return v, true, nil
}

func (s *Session) ClearVerifier(ctx context.Context) error {
	return s.storage.Delete(ctx, VerifierKey)
}

// update applies fn under the write lock and persists the result.
// The in-memory state stays updated even if persisting fails.
func (s *Session) update(ctx context.Context, fn func(*state)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)

	data, err := json.Marshal(envelope{State: s.state})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.storage.Set(ctx, StorageKey, string(data))
}
