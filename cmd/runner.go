package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/auth"
	"github.com/desertthunder/melodyflow/internal/notify"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/services"
	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/storeclient"
	"github.com/desertthunder/melodyflow/internal/vault"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The session, auth manager, store factory and request queue are created by
// [Runner.open] before the first command runs.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	logSink    *shared.LogSink
	output     io.Writer
	clock      clockwork.Clock
	storage    session.Storage
	builder    storeclient.Builder

	db      *sql.DB
	session *session.Session
	auth    *auth.Manager
	spotify *services.SpotifyService
	bus     *notify.Bus
	factory *storeclient.Factory
	queue   *requests.Queue
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	// LogSink is the writer Logger writes to; the DJ console redirects it to a file.
	LogSink *shared.LogSink
	Output  io.Writer
	Clock   clockwork.Clock
	// Storage replaces the local database for client state.
	Storage session.Storage
	// Builder replaces [storeclient.Build].
	Builder storeclient.Builder
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.LogSink == nil {
		opts.LogSink = shared.NewLogSink(nil)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(opts.LogSink)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		logSink:    opts.LogSink,
		output:     opts.Output,
		clock:      opts.Clock,
		storage:    opts.Storage,
		builder:    opts.Builder,
		bus:        notify.NewBus(notify.WithClock(opts.Clock)),
	}
}

// open loads the persisted session and wires the components that depend on it.
// It is idempotent.
func (r *Runner) open(ctx context.Context) error {
	if r.session != nil {
		return nil
	}

	if r.storage == nil {
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open local database: %w", err)
		}
		r.db = db
		r.storage = session.NewSQLiteStorage(db)
	}

	sess, err := session.Load(ctx, r.storage)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	r.session = sess

	r.auth = auth.NewManager(auth.ConfigFrom(r.config.Credentials.Spotify), sess, r.credentials,
		auth.WithHTTPClient(r.httpClient),
		auth.WithClock(r.clock),
		auth.WithLogger(r.logger),
		auth.WithSessionExpiredHook(func() { r.bus.Error("Your session expired. Please log in again.") }),
	)
	r.spotify = services.NewSpotifyService(r.auth, r.config.Credentials.Spotify.RequestsPerSecond)

	factoryOpts := []storeclient.Option{
		storeclient.WithLogger(r.logger),
		storeclient.WithFeedURL(r.config.Credentials.Store.FeedURL),
	}
	if r.builder != nil {
		factoryOpts = append(factoryOpts, storeclient.WithBuilder(r.builder))
	}
	r.factory = storeclient.NewFactory(r.credentials, factoryOpts...)
	r.queue = requests.NewQueue(r.factory,
		requests.WithNotifier(r.bus),
		requests.WithLogger(r.logger),
		requests.WithClock(r.clock),
	)
	return nil
}

// credentials resolves user-entered values over the environment defaults.
func (r *Runner) credentials() vault.APIConfig {
	var user vault.APIConfig
	if r.session != nil {
		user = r.session.APIConfig()
	}
	return vault.Resolve(user, vault.FromConfig(r.config))
}

// Close waits for background store writes and releases the store and database.
func (r *Runner) Close() error {
	var errs []error
	if r.queue != nil {
		r.queue.Wait()
	}
	if r.factory != nil {
		errs = append(errs, r.factory.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// redirectLogs sends every component's log output to the file at path until
// the returned func is called.
func (r *Runner) redirectLogs(path string) (restore func(), err error) {
	f, err := shared.OpenLogFile(path)
	if err != nil {
		return nil, err
	}
	undo := r.logSink.Redirect(f)
	return func() {
		undo()
		f.Close()
	}, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, settingsCommand, loginCommand, logoutCommand, whoamiCommand, viewCommand,
		browseCommand, searchCommand, recommendCommand, requestsCommand, playerCommand, apiCommand, djCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before runs ahead of every command: it applies the log level and opens the session.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, r.open(ctx)
}

// flushToasts prints notifications raised while the command ran.
func (r *Runner) flushToasts() {
	for _, t := range r.bus.Active() {
		switch t.Kind {
		case notify.KindError:
			r.writePlain("✗ %s\n", t.Message)
		case notify.KindSuccess:
			r.writePlain("✓ %s\n", t.Message)
		default:
			r.writePlain("• %s\n", t.Message)
		}
		r.bus.Dismiss(t.ID)
	}
}

// toastErrors returns the messages of active error toasts.
func (r *Runner) toastErrors() []string {
	var out []string
	for _, t := range r.bus.Active() {
		if t.Kind == notify.KindError {
			out = append(out, t.Message)
		}
	}
	return out
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
