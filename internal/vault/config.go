package vault

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// MinClientIDLength is the shortest client id accepted by [ValidateClientID].
const MinClientIDLength = 30

// APIConfig holds the credentials needed to reach the streaming service and the backing store.
//
// SpotifyClientSecret is stored for the user's convenience only and is never sent anywhere.
type APIConfig struct {
	SpotifyClientID     string `json:"spotifyClientId"`
	SpotifyClientSecret string `json:"spotifyClientSecret"`
	StoreURL            string `json:"supabaseUrl"`
	StoreKey            string `json:"supabaseKey"`
}

// FromConfig builds the environment default layer from the loaded configuration.
func FromConfig(c *shared.Config) APIConfig {
	if c == nil {
		return APIConfig{}
	}
	return APIConfig{
		SpotifyClientID:     c.Credentials.Spotify.ClientID,
		SpotifyClientSecret: c.Credentials.Spotify.ClientSecret,
		StoreURL:            c.Credentials.Store.URL,
		StoreKey:            c.Credentials.Store.Key,
	}
}

// Encode returns a copy with every field obfuscated.
func (c APIConfig) Encode() APIConfig {
	return APIConfig{
		SpotifyClientID:     Encode(c.SpotifyClientID),
		SpotifyClientSecret: Encode(c.SpotifyClientSecret),
		StoreURL:            Encode(c.StoreURL),
		StoreKey:            Encode(c.StoreKey),
	}
}

// Decode returns a copy with every field decoded.
func (c APIConfig) Decode() APIConfig {
	return APIConfig{
		SpotifyClientID:     Decode(c.SpotifyClientID),
		SpotifyClientSecret: Decode(c.SpotifyClientSecret),
		StoreURL:            Decode(c.StoreURL),
		StoreKey:            Decode(c.StoreKey),
	}
}

// IsZero reports whether no field is set.
func (c APIConfig) IsZero() bool {
	return c == APIConfig{}
}

// SpotifyConfigured reports whether a client id is available.
func (c APIConfig) SpotifyConfigured() bool {
	return strings.TrimSpace(c.SpotifyClientID) != ""
}

// StoreConfigured reports whether a backing store can be built.
//
// Hosted (http/https) stores also need an access key.
func (c APIConfig) StoreConfigured() bool {
	raw := strings.TrimSpace(c.StoreURL)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return strings.TrimSpace(c.StoreKey) != ""
	}
	return true
}

// Resolve picks, per field, the user-entered value, then the environment default, then empty.
func Resolve(user, defaults APIConfig) APIConfig {
	return APIConfig{
		SpotifyClientID:     firstNonEmpty(user.SpotifyClientID, defaults.SpotifyClientID),
		SpotifyClientSecret: firstNonEmpty(user.SpotifyClientSecret, defaults.SpotifyClientSecret),
		StoreURL:            firstNonEmpty(user.StoreURL, defaults.StoreURL),
		StoreKey:            firstNonEmpty(user.StoreKey, defaults.StoreKey),
	}
}

// ValidateClientID performs the format check applied before saving a client id.
func ValidateClientID(id string) error {
	if len(strings.TrimSpace(id)) < MinClientIDLength {
		return fmt.Errorf("%w: client id looks invalid (expected at least %d characters)", shared.ErrInvalidArgument, MinClientIDLength)
	}
	return nil
}

// ValidateStoreURL checks that raw parses and uses a supported scheme.
func ValidateStoreURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: store url: %v", shared.ErrInvalidArgument, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: store url has no host", shared.ErrInvalidArgument)
		}
	case "postgres", "postgresql", "sqlite", "file":
	default:
		return fmt.Errorf("%w: unsupported store url scheme %q", shared.ErrInvalidArgument, u.Scheme)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
