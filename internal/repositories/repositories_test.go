package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/melodyflow/internal/feed"
	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func setupTestRepo(t *testing.T) (*RequestRepository, *feed.Local) {
	t.Helper()
	db := setupTestDB(t)
	logger := shared.NewLogger(&bytes.Buffer{})
	broker := feed.NewLocal(logger)
	repo := NewRequestRepository(db, broker, logger)
	t.Cleanup(func() {
		repo.Close()
		db.Close()
	})
	return repo, broker
}

func newRequest(trackID string, at time.Time) models.NewSongRequest {
	return models.NewRequest(
		models.TrackRef{ID: trackID, Title: "Title " + trackID, Artist: "Artist", CoverURL: "https://i.scdn.co/image/" + trackID},
		models.User{ID: "u1", DisplayName: "Listener"},
		at,
	)
}

func TestRequestRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

	t.Run("Insert", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		row, err := repo.Insert(ctx, newRequest("t1", base))
		if err != nil {
			t.Fatalf("failed to insert request: %v", err)
		}
		if row.ID == "" {
			t.Error("request ID should be set after insert")
		}
		if row.Status != models.StatusPending {
			t.Errorf("expected status %s, got %s", models.StatusPending, row.Status)
		}

		got, err := repo.Get(ctx, row.ID)
		if err != nil {
			t.Fatalf("failed to get request: %v", err)
		}
		if got.Title != "Title t1" || got.UserName != "Listener" || got.CoverURL != "https://i.scdn.co/image/t1" {
			t.Errorf("unexpected row: %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("expected created_at %v, got %v", base, got.CreatedAt)
		}
	})

	t.Run("InsertValidation", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		_, err := repo.Insert(ctx, models.NewSongRequest{Title: "no track"})
		if !errors.Is(err, shared.ErrStoreOperation) {
			t.Fatalf("expected store error, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		for i, id := range []string{"old", "mid", "new"} {
			if _, err := repo.Insert(ctx, newRequest(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatalf("failed to insert %s: %v", id, err)
			}
		}

		rows, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("failed to list requests: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		want := []string{"new", "mid", "old"}
		for i, r := range rows {
			if r.TrackID != want[i] {
				t.Errorf("row %d: expected %s, got %s", i, want[i], r.TrackID)
			}
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		rows, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("failed to list requests: %v", err)
		}
		if rows == nil || len(rows) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", rows)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		row, err := repo.Insert(ctx, newRequest("t1", base))
		if err != nil {
			t.Fatalf("failed to insert request: %v", err)
		}

		updated, err := repo.UpdateStatus(ctx, row.ID, models.StatusPlayed)
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}
		if updated.Status != models.StatusPlayed {
			t.Errorf("expected PLAYED, got %s", updated.Status)
		}
	})

	t.Run("UpdateStatusNotFound", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		_, err := repo.UpdateStatus(ctx, "missing", models.StatusRejected)
		var storeErr *shared.StoreError
		if !errors.As(err, &storeErr) {
			t.Fatalf("expected StoreError, got %v", err)
		}
		if storeErr.Code != "not_found" {
			t.Errorf("expected not_found, got %q", storeErr.Code)
		}
	})

	t.Run("UpdateStatusRejectsUnknownStatus", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		row, err := repo.Insert(ctx, newRequest("t1", base))
		if err != nil {
			t.Fatalf("failed to insert request: %v", err)
		}
		if _, err := repo.UpdateStatus(ctx, row.ID, "SKIPPED"); err == nil {
			t.Fatal("expected check constraint failure")
		}
	})

	t.Run("Count", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		a, _ := repo.Insert(ctx, newRequest("a", base))
		if _, err := repo.Insert(ctx, newRequest("b", base)); err != nil {
			t.Fatalf("failed to insert request: %v", err)
		}
		if _, err := repo.UpdateStatus(ctx, a.ID, models.StatusRejected); err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		total, err := repo.Count(ctx, "")
		if err != nil || total != 2 {
			t.Errorf("expected 2 total, got %d (%v)", total, err)
		}
		pending, err := repo.Count(ctx, models.StatusPending)
		if err != nil || pending != 1 {
			t.Errorf("expected 1 pending, got %d (%v)", pending, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo, _ := setupTestRepo(t)

		row, _ := repo.Insert(ctx, newRequest("t1", base))
		if err := repo.Delete(ctx, row.ID); err != nil {
			t.Fatalf("failed to delete request: %v", err)
		}
		if err := repo.Delete(ctx, row.ID); !errors.Is(err, shared.ErrStoreOperation) {
			t.Errorf("expected store error on second delete, got %v", err)
		}
	})
}

func TestRequestRepositoryChangeFeed(t *testing.T) {
	ctx := context.Background()
	repo, broker := setupTestRepo(t)

	ch, err := repo.Subscribe(ctx)
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	row, err := repo.Insert(ctx, newRequest("t1", time.Now()))
	if err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, row.ID, models.StatusPlayed); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}
	if err := repo.Delete(ctx, row.ID); err != nil {
		t.Fatalf("failed to delete request: %v", err)
	}

	want := []requests.EventType{requests.EventInsert, requests.EventUpdate, requests.EventDelete}
	for _, typ := range want {
		select {
		case ev := <-ch.Events():
			if ev.Type != typ {
				t.Errorf("expected %s, got %s", typ, ev.Type)
			}
			if ev.ID() != row.ID {
				t.Errorf("expected id %s, got %s", row.ID, ev.ID())
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("failed to close channel: %v", err)
	}
	if n := broker.Subscribers(); n != 0 {
		t.Errorf("expected no subscribers after close, got %d", n)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "requests.db")

	repo, err := Open(ctx, path, nil, shared.NewLogger(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	if _, err := repo.Insert(ctx, newRequest("t1", time.Now())); err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("failed to close repository: %v", err)
	}

	reopened, err := Open(ctx, path, nil, shared.NewLogger(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("failed to reopen repository: %v", err)
	}
	defer reopened.Close()

	n, err := reopened.Count(ctx, "")
	if err != nil || n != 1 {
		t.Errorf("expected 1 persisted request, got %d (%v)", n, err)
	}
}
