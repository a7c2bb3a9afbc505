package config

import "slices"

// ChangeSet describes what changed between two configs. Only fields that can
// be applied without a restart are tracked individually; everything else
// flips RestartRequired.
type ChangeSet struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MinTracksChanged bool
	NewMinTracks     int

	// RestartRequired is set when a field outside the hot-reloadable set
	// differs, such as the listen address or store DSN.
	RestartRequired bool
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return !c.LogLevelChanged && !c.MinTracksChanged && !c.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ChangeSet {
	var c ChangeSet

	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}
	if old.Game.MinTracks != new.Game.MinTracks {
		c.MinTracksChanged = true
		c.NewMinTracks = new.Game.MinTracks
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Catalog != new.Catalog ||
		old.Auth != new.Auth ||
		old.Store != new.Store {
		c.RestartRequired = true
	}

	return c
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
