package shared

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds environment-provided defaults.
//
// Non-empty values override the matching keys of the TOML file.
type Env struct {
	SpotifyClientID string `env:"SPOTIFY_CLIENT_ID"`
	StoreURL        string `env:"SUPABASE_URL"`
	StoreKey        string `env:"SUPABASE_ANON_KEY"`
	FeedURL         string `env:"MELODYFLOW_FEED_URL"`
	LogLevel        string `env:"MELODYFLOW_LOG_LEVEL"`
	ConfigPath      string `env:"MELODYFLOW_CONFIG" envDefault:"config.toml"`
}

// LoadEnv reads the given dotenv files (a missing file is not an error) and
// parses the process environment into an [Env].
func LoadEnv(files ...string) (*Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("%w: failed to parse environment: %v", ErrInvalidConfig, err)
	}
	return &e, nil
}

// Apply overlays non-empty environment values onto config.
func (e *Env) Apply(config *Config) {
	if e == nil || config == nil {
		return
	}
	if e.SpotifyClientID != "" {
		config.Credentials.Spotify.ClientID = e.SpotifyClientID
	}
	if e.StoreURL != "" {
		config.Credentials.Store.URL = e.StoreURL
	}
	if e.StoreKey != "" {
		config.Credentials.Store.Key = e.StoreKey
	}
	if e.FeedURL != "" {
		config.Credentials.Store.FeedURL = e.FeedURL
	}
	if e.LogLevel != "" {
		config.Log.Level = e.LogLevel
	}
}
