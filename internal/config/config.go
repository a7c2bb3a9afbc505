// Package config provides the configuration schema, loader, and hot-reload
// watcher for the tunehunt server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings such as
// "30s" or "6h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the tunehunt server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for tunehunt.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Game    GameConfig    `yaml:"game"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists origins accepted during the websocket handshake.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// CatalogConfig configures the upstream music catalogs.
type CatalogConfig struct {
	Spotify SpotifyConfig `yaml:"spotify"`
	Video   VideoConfig   `yaml:"video"`
}

// SpotifyConfig holds client-credentials for the Spotify Web API. The secret
// can also come from the TUNEHUNT_SPOTIFY_CLIENT_SECRET environment variable.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// VideoConfig holds the official video search API key. The key can also come
// from the TUNEHUNT_VIDEO_API_KEY environment variable.
type VideoConfig struct {
	APIKey string `yaml:"api_key"`

	// BreakerHold is how long the official search stays disabled after a
	// quota error. Zero means the built-in default.
	BreakerHold Duration `yaml:"breaker_hold"`
}

// AuthConfig configures the external token verification endpoint. An empty
// endpoint disables authentication; all joins are then anonymous.
type AuthConfig struct {
	VerifyEndpoint string `yaml:"verify_endpoint"`
}

// StoreConfig selects the snapshot store. An empty DSN selects the in-memory
// store, which loses everything on restart.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// GameConfig holds gameplay tunables.
type GameConfig struct {
	// MinTracks is the smallest accepted round pool. Zero means 1.
	MinTracks int `yaml:"min_tracks"`
}
