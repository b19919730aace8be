package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/store/postgres"
	"github.com/desertthunder/melodyflow/internal/storeclient"
)

// SetupDatabase creates config.toml from the template when it is missing,
// then initializes the local database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.writePlain("✓ Created %s\n", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	applied, err := shared.AppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s (%d migrations applied)\n", r.config.Database.Path, len(applied))
	return nil
}

type schemaOwner interface {
	EnsureSchema(ctx context.Context) error
}

// SetupStore prepares the configured backing store.
//
// Direct Postgres connections get the table and notify trigger, local SQLite
// stores are migrated, and hosted projects get the SQL to run in their editor.
func (r *Runner) SetupStore(ctx context.Context, cmd *cli.Command) error {
	creds := r.credentials()
	if !creds.StoreConfigured() {
		return fmt.Errorf("%w: no backing store configured", shared.ErrConfigurationMissing)
	}

	u, err := url.Parse(creds.StoreURL)
	if err != nil {
		return fmt.Errorf("%w: store url: %v", shared.ErrInvalidArgument, err)
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		r.writePlainHeader("Hosted store")
		r.writePlain("Run this in your project's SQL editor, then enable realtime for the requests table:\n\n")
		r.writePlain("%s\n", postgres.Schema())
		return nil
	}

	store, err := storeclient.Build(ctx, storeclient.Target{URL: creds.StoreURL, Key: creds.StoreKey}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer store.Close()

	if owner, ok := store.(schemaOwner); ok {
		if err := owner.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	r.writePlain("✓ Store ready (%s)\n", u.Scheme)
	return nil
}
