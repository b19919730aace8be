// package storeclient hands out the backing-store client for the current credentials.
//
// A [Factory] remembers the (url, key) pair it last built a client for. While
// the pair is unchanged every caller gets the same handle; when it changes the
// old handle is closed and a new one is built. Callers should ask the Factory
// for the store on every operation instead of keeping a handle.
package storeclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/melodyflow/internal/feed"
	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/repositories"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/store/postgres"
	"github.com/desertthunder/melodyflow/internal/store/supabase"
	"github.com/desertthunder/melodyflow/internal/vault"
)

// BuildTimeout bounds connecting to a store.
const BuildTimeout = 10 * time.Second

// Target identifies a backing store.
type Target struct {
	URL     string
	Key     string
	FeedURL string
}

// Resolver returns the credentials currently in effect.
type Resolver func() vault.APIConfig

// Builder connects to the store described by t.
type Builder func(ctx context.Context, t Target, logger *log.Logger) (requests.Store, error)

// Factory implements requests.Provider.
type Factory struct {
	resolve Resolver
	build   Builder
	feedURL string
	logger  *log.Logger

	mu      sync.Mutex
	current requests.Store
	target  Target
}

// Option configures a [Factory].
type Option func(*Factory)

func WithBuilder(b Builder) Option    { return func(f *Factory) { f.build = b } }
func WithLogger(l *log.Logger) Option { return func(f *Factory) { f.logger = l } }
func WithFeedURL(u string) Option     { return func(f *Factory) { f.feedURL = u } }

func NewFactory(resolve Resolver, opts ...Option) *Factory {
	f := &Factory{resolve: resolve, build: Build}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = shared.NewLogger(nil)
	}
	f.logger = shared.WithLogger(f.logger, "component", "storeclient")
	return f
}

// Store returns the handle for the current credentials, or nil when no store
// is configured or the client could not be built.
func (f *Factory) Store() requests.Store {
	cfg := f.resolve()

	f.mu.Lock()
	defer f.mu.Unlock()

	if !cfg.StoreConfigured() {
		f.dropLocked()
		return nil
	}

	t := Target{URL: strings.TrimSpace(cfg.StoreURL), Key: strings.TrimSpace(cfg.StoreKey), FeedURL: f.feedURL}
	if f.current != nil && f.target == t {
		return f.current
	}
	f.dropLocked()

	ctx, cancel := context.WithTimeout(context.Background(), BuildTimeout)
	defer cancel()

	s, err := f.build(ctx, t, f.logger)
	if err != nil {
		f.logger.Error("failed to build store client", "url", redact(t.URL), "error", err)
		return nil
	}
	f.current, f.target = s, t
	f.logger.Debug("store client ready", "url", redact(t.URL))
	return s
}

// Configured reports whether a usable store is available.
func (f *Factory) Configured() bool {
	return f.Store() != nil
}

// Close closes the cached handle.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropLocked()
}

func (f *Factory) dropLocked() error {
	if f.current == nil {
		return nil
	}
	err := f.current.Close()
	if err != nil {
		f.logger.Warn("failed to close store client", "error", err)
	}
	f.current, f.target = nil, Target{}
	return err
}

// Build dispatches on the URL scheme: http(s) for a hosted project, postgres
// for a direct database connection, sqlite or file for a local database.
func Build(ctx context.Context, t Target, logger *log.Logger) (requests.Store, error) {
	switch scheme(t.URL) {
	case "http", "https":
		c, err := supabase.New(t.URL, t.Key, supabase.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return c, nil
	case "postgres", "postgresql":
		s, err := postgres.Open(ctx, t.URL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "file":
		var broker feed.Broker
		if t.FeedURL != "" {
			r, err := feed.NewRedis(ctx, t.FeedURL, logger)
			if err != nil {
				return nil, err
			}
			broker = r
		}
		repo, err := repositories.Open(ctx, sqlitePath(t.URL), broker, logger)
		if err != nil {
			if broker != nil {
				broker.Close()
			}
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("%w: unsupported store url scheme %q", shared.ErrInvalidConfig, scheme(t.URL))
	}
}

type counter interface {
	Count(ctx context.Context, status models.RequestStatus) (int, error)
}

type prober interface {
	Probe(ctx context.Context) error
}

// Probe builds a throwaway client for (rawURL, key) and runs a count query against it.
func Probe(ctx context.Context, rawURL, key string, logger *log.Logger) error {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	cfg := vault.APIConfig{StoreURL: rawURL, StoreKey: key}
	if !cfg.StoreConfigured() {
		return fmt.Errorf("%w: store url and key are required", shared.ErrConfigurationMissing)
	}

	s, err := Build(ctx, Target{URL: strings.TrimSpace(rawURL), Key: strings.TrimSpace(key)}, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	switch p := s.(type) {
	case prober:
		return p.Probe(ctx)
	case counter:
		_, err := p.Count(ctx, "")
		return err
	default:
		_, err := s.List(ctx)
		return err
	}
}

func scheme(raw string) string {
	if i := strings.Index(raw, ":"); i > 0 {
		return strings.ToLower(raw[:i])
	}
	return ""
}

func sqlitePath(raw string) string {
	for _, prefix := range []string{"sqlite://", "sqlite:", "file://", "file:"} {
		if strings.HasPrefix(raw, prefix) {
			return strings.TrimPrefix(raw, prefix)
		}
	}
	return raw
}

// redact strips credentials from a URL before it is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	u.RawQuery = ""
	return u.String()
}
