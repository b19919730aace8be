// package postgres is a request store over a PostgreSQL database.
//
// Writes go through sqlx; the change feed is LISTEN/NOTIFY on
// [NotifyChannel], fed by the trigger installed by [Store.EnsureSchema].
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

// NotifyChannel is the LISTEN/NOTIFY channel request changes are sent on.
const NotifyChannel = "requests_changes"

const requestColumns = `id, track_id, title, artist, cover_url, user_id, user_name, status, created_at`

//go:embed schema.sql
var schema string

// Store implements requests.Store.
type Store struct {
	db     *sqlx.DB
	dsn    string
	logger *log.Logger
}

// Open connects to dsn (postgres://...) and verifies the connection.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{db: db, dsn: dsn, logger: shared.WithLogger(logger, "component", "postgres")}, nil
}

// Schema returns the DDL applied by [Store.EnsureSchema].
func Schema() string { return schema }

// EnsureSchema creates the requests table and its notify trigger.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]models.SongRequest, error) {
	rows := []models.SongRequest{}
	err := s.db.SelectContext(ctx, &rows, `SELECT `+requestColumns+` FROM requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, storeError("list", err)
	}
	return rows, nil
}

func (s *Store) Insert(ctx context.Context, req models.NewSongRequest) (*models.SongRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, &shared.StoreError{Op: "insert", Code: "invalid", Message: err.Error()}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	query, args, err := s.db.BindNamed(`
		INSERT INTO requests (`+requestColumns+`)
		VALUES (:id, :track_id, :title, :artist, :cover_url, :user_id, :user_name, :status, :created_at)
		RETURNING `+requestColumns, req.Request(models.RequestID(shared.GenerateID())))
	if err != nil {
		return nil, storeError("insert", err)
	}

	var row models.SongRequest
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, storeError("insert", err)
	}
	return &row, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) (*models.SongRequest, error) {
	var row models.SongRequest
	err := s.db.GetContext(ctx, &row,
		`UPDATE requests SET status = $1 WHERE id = $2 RETURNING `+requestColumns, status, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &shared.StoreError{Op: "update", Code: "not_found", Message: fmt.Sprintf("request %s not found", id)}
		}
		return nil, storeError("update", err)
	}
	return &row, nil
}

// Count returns the number of requests with status, or all requests when status is empty.
func (s *Store) Count(ctx context.Context, status models.RequestStatus) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM requests WHERE $1 = '' OR status = $1`, string(status))
	if err != nil {
		return 0, storeError("count", err)
	}
	return n, nil
}

// Subscribe opens a dedicated LISTEN connection.
func (s *Store) Subscribe(ctx context.Context) (requests.Channel, error) {
	l := pq.NewListener(s.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	ch := &listenChannel{
		listener: l,
		events:   make(chan requests.ChangeEvent, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go ch.pump(s.logger)
	return ch, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// storeError maps driver errors, keeping the SQLSTATE code and hint.
func storeError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &shared.StoreError{Op: op, Code: string(pqErr.Code), Message: pqErr.Message, Hint: pqErr.Hint}
	}
	return &shared.StoreError{Op: op, Message: err.Error()}
}
