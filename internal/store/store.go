// Package store defines the persistence capability: durable room snapshots
// for crash recovery, the global leaderboard, and per-user playlist history.
//
// The in-memory room is authoritative during play; the store is a durability
// cache. Implementations live in the postgres and memstore subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/playback"
)

// ErrNotFound is returned when no snapshot exists for a room code.
var ErrNotFound = errors.New("store: not found")

// HistoryCap is the maximum number of entries kept per user's playlist
// history. Implementations truncate on append.
const HistoryCap = 10

// PlayerEntry is the persisted per-player state, keyed by stable user id.
// Connection handles are transient and never stored.
type PlayerEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// RoundSnapshot is the serializable subset of an active round. Buzzer state
// is deliberately absent: it is keyed by connection handles, which do not
// survive a restart.
type RoundSnapshot struct {
	Track     catalog.Track   `json:"track"`
	Playback  playback.Handle `json:"playback"`
	StartedAt time.Time       `json:"startedAt"`
	Solved    bool            `json:"solved"`
	Paused    bool            `json:"paused"`
}

// RoomSnapshot is the durable projection of a room.
type RoomSnapshot struct {
	Code         string                 `json:"code"`
	HostUser     string                 `json:"hostUser"`
	Mode         playback.Mode          `json:"mode"`
	GameType     string                 `json:"gameType"`
	RoundIndex   int                    `json:"roundIndex"`
	Tracks       []catalog.Track        `json:"tracks"`
	AnswersKnown bool                   `json:"answersKnown"`
	CurrentRound *RoundSnapshot         `json:"currentRound,omitempty"`
	Players      map[string]PlayerEntry `json:"players"`
}

// LeaderboardEntry is one row of the global leaderboard.
type LeaderboardEntry struct {
	UserID      string    `json:"uid"`
	Name        string    `json:"name"`
	Score       int       `json:"score"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PlaylistRef is one entry of a user's recent-playlist history.
type PlaylistRef struct {
	URL    string         `json:"url"`
	Name   string         `json:"name"`
	Source catalog.Source `json:"source"`
}

// Store is the persistence capability consumed by the room registry and the
// REST surface. All methods are safe for concurrent use.
type Store interface {
	// SaveRoom upserts the snapshot for snap.Code.
	SaveRoom(ctx context.Context, snap RoomSnapshot) error

	// LoadRoom returns the snapshot for code, or [ErrNotFound].
	LoadRoom(ctx context.Context, code string) (RoomSnapshot, error)

	// DeleteRoom removes the snapshot for code. Deleting a missing room is
	// not an error.
	DeleteRoom(ctx context.Context, code string) error

	// IncrementLeaderboard adds delta to the user's global score, creating
	// the row on first increment and refreshing name and lastUpdated.
	IncrementLeaderboard(ctx context.Context, userID, name string, delta int) error

	// GetLeaderboard returns the top limit entries by score descending.
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// AppendRecentPlaylist puts ref at the head of the user's history,
	// deduplicating by URL and capping at [HistoryCap] entries. It returns
	// the updated history, most recent first.
	AppendRecentPlaylist(ctx context.Context, userID string, ref PlaylistRef) ([]PlaylistRef, error)

	// GetRecentPlaylists returns the user's history, most recent first.
	GetRecentPlaylists(ctx context.Context, userID string) ([]PlaylistRef, error)
}
