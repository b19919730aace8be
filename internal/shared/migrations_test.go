package shared

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	ctx := context.Background()

	openDB := func(t *testing.T) *DatabaseConfig {
		t.Helper()
		return &DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1, MaxIdleConns: 1}
	}

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) < 2 {
			t.Fatalf("expected at least two migrations, got %d", len(migrations))
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[0].Name != "create_kv" {
			t.Errorf("expected first migration create_kv, got %s", migrations[0].Name)
		}
	})

	t.Run("OpenDatabase runs migrations", func(t *testing.T) {
		db, err := OpenDatabase(ctx, *openDB(t))
		if err != nil {
			t.Fatalf("OpenDatabase() error = %v", err)
		}
		defer db.Close()

		for _, table := range []string{"kv", "requests"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		db, err := OpenDatabase(ctx, *openDB(t))
		if err != nil {
			t.Fatalf("OpenDatabase() error = %v", err)
		}
		defer db.Close()

		before, err := AppliedMigrations(ctx, db)
		if err != nil {
			t.Fatalf("AppliedMigrations() error = %v", err)
		}

		if err := RollbackMigration(ctx, db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		after, err := AppliedMigrations(ctx, db)
		if err != nil {
			t.Fatalf("AppliedMigrations() error = %v", err)
		}
		if len(after) != len(before)-1 {
			t.Errorf("expected one fewer migration after rollback, got %d (was %d)", len(after), len(before))
		}
		if _, err := db.Exec("SELECT 1 FROM requests LIMIT 1"); err == nil {
			t.Error("requests table should be dropped after rollback")
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := OpenDatabase(ctx, *openDB(t))
		if err != nil {
			t.Fatalf("OpenDatabase() error = %v", err)
		}
		defer db.Close()

		if err := RunMigrations(ctx, db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		applied, err := AppliedMigrations(ctx, db)
		if err != nil {
			t.Fatalf("AppliedMigrations() error = %v", err)
		}

		migrations, _ := loadMigrations()
		if len(applied) != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), len(applied))
		}
	})

	t.Run("removeComments", func(t *testing.T) {
		got := removeComments("-- header\nCREATE TABLE x (id INT); -- trailing\n")
		if got != "CREATE TABLE x (id INT);" {
			t.Errorf("removeComments() = %q", got)
		}
	})
}
