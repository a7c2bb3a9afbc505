package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secret-bearing fields, so credentials
// can stay out of the config file.
const (
	EnvSpotifySecret = "TUNEHUNT_SPOTIFY_CLIENT_SECRET"
	EnvVideoAPIKey   = "TUNEHUNT_VIDEO_API_KEY"
	EnvPostgresDSN   = "TUNEHUNT_POSTGRES_DSN"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overrides applied. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secret-bearing fields from the environment. Set variables
// win over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSpotifySecret); v != "" {
		cfg.Catalog.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvVideoAPIKey); v != "" {
		cfg.Catalog.Video.APIKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Store.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if (cfg.Catalog.Spotify.ClientID == "") != (cfg.Catalog.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("catalog.spotify requires both client_id and client_secret, or neither"))
	}
	if cfg.Catalog.Video.BreakerHold < 0 {
		errs = append(errs, fmt.Errorf("catalog.video.breaker_hold %s must not be negative", cfg.Catalog.Video.BreakerHold.Std()))
	}
	if cfg.Game.MinTracks < 0 {
		errs = append(errs, fmt.Errorf("game.min_tracks %d must not be negative", cfg.Game.MinTracks))
	}

	// Availability warnings, not errors: the server still runs degraded.
	if cfg.Catalog.Spotify.ClientID == "" {
		slog.Warn("catalog.spotify is not configured; Spotify playlists will be rejected")
	}
	if cfg.Catalog.Video.APIKey == "" {
		slog.Warn("catalog.video.api_key is empty; official video search is disabled")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; rooms and leaderboard will not survive a restart")
	}
	if cfg.Auth.VerifyEndpoint == "" {
		slog.Warn("auth.verify_endpoint is empty; all players join anonymously")
	}

	return errors.Join(errs...)
}

// SlogLevel converts l to the slog level, defaulting to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
