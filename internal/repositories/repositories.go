package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"

	"github.com/desertthunder/melodyflow/internal/feed"
	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

const requestColumns = `id, track_id, title, artist, cover_url, user_id, user_name, status, created_at`

// RequestRepository stores song requests in SQLite.
type RequestRepository struct {
	db     *sqlx.DB
	broker feed.Broker
	logger *log.Logger
	ownsDB bool
}

// NewRequestRepository wraps an open database. The repository does not close db.
// A nil broker falls back to an in-process one.
func NewRequestRepository(db *sql.DB, broker feed.Broker, logger *log.Logger) *RequestRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if broker == nil {
		broker = feed.NewLocal(logger)
	}
	return &RequestRepository{
		db:     sqlx.NewDb(db, "sqlite3"),
		broker: broker,
		logger: shared.WithLogger(logger, "component", "sqlite"),
	}
}

// Open opens (and migrates) the database at path and returns a repository that owns it.
func Open(ctx context.Context, path string, broker feed.Broker, logger *log.Logger) (*RequestRepository, error) {
	db, err := shared.OpenDatabase(ctx, shared.DatabaseConfig{Path: path, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		return nil, err
	}
	r := NewRequestRepository(db, broker, logger)
	r.ownsDB = true
	return r, nil
}

// List returns every request, newest first.
func (r *RequestRepository) List(ctx context.Context) ([]models.SongRequest, error) {
	rows := []models.SongRequest{}
	query := `SELECT ` + requestColumns + ` FROM requests ORDER BY created_at DESC, rowid DESC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeError("list", err)
	}
	return rows, nil
}

// Get returns one request.
func (r *RequestRepository) Get(ctx context.Context, id models.RequestID) (*models.SongRequest, error) {
	var row models.SongRequest
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("get", id)
		}
		return nil, storeError("get", err)
	}
	return &row, nil
}

// Insert stores req under a generated id and publishes an INSERT event.
func (r *RequestRepository) Insert(ctx context.Context, req models.NewSongRequest) (*models.SongRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, &shared.StoreError{Op: "insert", Code: "invalid", Message: err.Error()}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	row := req.Request(models.RequestID(shared.GenerateID()))
	row.CreatedAt = row.CreatedAt.UTC()

	query := `INSERT INTO requests (` + requestColumns + `)
		VALUES (:id, :track_id, :title, :artist, :cover_url, :user_id, :user_name, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return nil, storeError("insert", err)
	}

	r.publish(ctx, requests.ChangeEvent{Type: requests.EventInsert, New: &row})
	return &row, nil
}

// UpdateStatus sets the status of one request and publishes an UPDATE event.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) (*models.SongRequest, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE requests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, storeError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storeError("update", err)
	}
	if n == 0 {
		return nil, notFound("update", id)
	}

	row, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, requests.ChangeEvent{Type: requests.EventUpdate, New: row})
	return row, nil
}

// Delete removes one request and publishes a DELETE event.
func (r *RequestRepository) Delete(ctx context.Context, id models.RequestID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return storeError("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("delete", id)
	}
	r.publish(ctx, requests.ChangeEvent{Type: requests.EventDelete, Old: &models.SongRequest{ID: id}})
	return nil
}

// Count returns the number of requests with status, or all requests when status is empty.
func (r *RequestRepository) Count(ctx context.Context, status models.RequestStatus) (int, error) {
	var n int
	var err error
	if status == "" {
		err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM requests`)
	} else {
		err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM requests WHERE status = ?`, status)
	}
	if err != nil {
		return 0, storeError("count", err)
	}
	return n, nil
}

func (r *RequestRepository) Subscribe(ctx context.Context) (requests.Channel, error) {
	return r.broker.Subscribe(ctx)
}

// Close closes the broker, and the database when the repository opened it.
func (r *RequestRepository) Close() error {
	err := r.broker.Close()
	if r.ownsDB {
		err = errors.Join(err, r.db.Close())
	}
	return err
}

// publish never fails the write that triggered it.
func (r *RequestRepository) publish(ctx context.Context, ev requests.ChangeEvent) {
	if err := r.broker.Publish(ctx, ev); err != nil {
		r.logger.Warn("failed to publish change event", "type", ev.Type, "id", ev.ID(), "error", err)
	}
}

func storeError(op string, err error) error {
	return &shared.StoreError{Op: op, Message: err.Error()}
}

func notFound(op string, id models.RequestID) error {
	return &shared.StoreError{Op: op, Code: "not_found", Message: fmt.Sprintf("request %s not found", id)}
}
