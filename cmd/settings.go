package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/storeclient"
	"github.com/desertthunder/melodyflow/internal/vault"
)

// mask keeps the first and last four characters of a secret.
func mask(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return strings.Repeat("•", len(s))
	default:
		return s[:4] + strings.Repeat("•", 8) + s[len(s)-4:]
	}
}

func source(user, effective string) string {
	switch {
	case effective == "":
		return ""
	case user != "":
		return "saved"
	default:
		return "default"
	}
}

// SettingsShow prints the credentials in effect and where each came from.
func (r *Runner) SettingsShow(ctx context.Context, cmd *cli.Command) error {
	user := r.session.APIConfig()
	creds := r.credentials()

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"spotify_client_id":     mask(creds.SpotifyClientID),
			"spotify_client_secret": mask(creds.SpotifyClientSecret),
			"store_url":             creds.StoreURL,
			"store_key":             mask(creds.StoreKey),
			"spotify_configured":    creds.SpotifyConfigured(),
			"store_configured":      creds.StoreConfigured(),
		}, true)
	}

	r.writePlainHeader("Settings")
	rows := []struct{ label, value, from string }{
		{"Spotify client ID", mask(creds.SpotifyClientID), source(user.SpotifyClientID, creds.SpotifyClientID)},
		{"Spotify client secret", mask(creds.SpotifyClientSecret), source(user.SpotifyClientSecret, creds.SpotifyClientSecret)},
		{"Store URL", orNotSet(creds.StoreURL), source(user.StoreURL, creds.StoreURL)},
		{"Store key", mask(creds.StoreKey), source(user.StoreKey, creds.StoreKey)},
	}
	for _, row := range rows {
		if row.from != "" {
			r.writePlain("%-22s %s (%s)\n", row.label+":", row.value, row.from)
		} else {
			r.writePlain("%-22s %s\n", row.label+":", row.value)
		}
	}

	if !creds.StoreConfigured() {
		r.writePlainln("Backing store not configured: requests run in demo mode.")
	}
	return nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// SettingsSet validates and saves user-entered credentials. Flags that are
// not given keep their saved value.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("clear") {
		if err := r.session.SetAPIConfig(ctx, vault.APIConfig{}); err != nil {
			return fmt.Errorf("failed to clear settings: %w", err)
		}
		r.writePlain("✓ Saved credentials cleared\n")
		return nil
	}

	next := r.session.APIConfig()
	changed := false
	for _, f := range []struct {
		flag string
		dst  *string
	}{
		{"client-id", &next.SpotifyClientID},
		{"client-secret", &next.SpotifyClientSecret},
		{"store-url", &next.StoreURL},
		{"store-key", &next.StoreKey},
	} {
		if cmd.IsSet(f.flag) {
			*f.dst = strings.TrimSpace(cmd.String(f.flag))
			changed = true
		}
	}
	if !changed {
		return fmt.Errorf("%w: pass at least one of --client-id, --client-secret, --store-url, --store-key", shared.ErrMissingArgument)
	}

	if cmd.IsSet("client-id") && next.SpotifyClientID != "" {
		if err := vault.ValidateClientID(next.SpotifyClientID); err != nil {
			return err
		}
	}
	if cmd.IsSet("store-url") && next.StoreURL != "" {
		if err := vault.ValidateStoreURL(next.StoreURL); err != nil {
			return err
		}
	}

	if err := r.session.SetAPIConfig(ctx, next); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	r.logger.Debug("settings saved")
	r.writePlain("✓ Settings saved\n")
	return nil
}

// SettingsTest probes the backing store with the given or saved credentials.
func (r *Runner) SettingsTest(ctx context.Context, cmd *cli.Command) error {
	creds := r.credentials()
	if cmd.IsSet("store-url") {
		creds.StoreURL = cmd.String("store-url")
	}
	if cmd.IsSet("store-key") {
		creds.StoreKey = cmd.String("store-key")
	}

	if err := storeclient.Probe(ctx, creds.StoreURL, creds.StoreKey, r.logger); err != nil {
		r.writePlain("✗ Connection failed\n")
		return err
	}
	r.writePlain("✓ Connection successful\n")

	if !creds.SpotifyConfigured() {
		r.writePlain("• Spotify client ID is not set; login is unavailable\n")
	}
	return nil
}

// SettingsExport writes the saved credentials to an encoded backup file.
func (r *Runner) SettingsExport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = vault.BackupFileName
	}

	cfg := r.session.APIConfig()
	if cfg.IsZero() {
		cfg = r.credentials()
	}
	if err := vault.WriteBackup(path, cfg, r.clock.Now()); err != nil {
		return err
	}
	r.writePlain("✓ Settings exported to %s\n", path)
	return nil
}

// SettingsImport replaces the saved credentials with those in a backup file.
func (r *Runner) SettingsImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: backup file path", shared.ErrMissingArgument)
	}

	cfg, err := vault.ReadBackup(path)
	if err != nil {
		return err
	}
	if err := r.session.SetAPIConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	r.writePlain("✓ Settings imported from %s\n", path)
	return nil
}
