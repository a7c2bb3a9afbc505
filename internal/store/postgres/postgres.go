// Package postgres provides the PostgreSQL-backed implementation of the
// store capability. Room snapshots are kept as JSONB documents keyed by room
// code; the leaderboard and playlist history are relational tables.
//
// All operations share a single [pgxpool.Pool]. [Migrate] is idempotent and
// runs on every start.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pshemk/tunehunt/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS rooms (
    code        TEXT         PRIMARY KEY,
    snapshot    JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leaderboard (
    user_id       TEXT         PRIMARY KEY,
    name          TEXT         NOT NULL,
    score         BIGINT       NOT NULL DEFAULT 0,
    last_updated  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_score
    ON leaderboard (score DESC);

CREATE TABLE IF NOT EXISTS playlist_history (
    user_id   TEXT         NOT NULL,
    url       TEXT         NOT NULL,
    name      TEXT         NOT NULL,
    source    TEXT         NOT NULL,
    added_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, url)
);

CREATE INDEX IF NOT EXISTS idx_playlist_history_user_added
    ON playlist_history (user_id, added_at DESC);
`

// Store is the PostgreSQL-backed store. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates all required tables. It is idempotent and safe to call on
// every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity. Used as a readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveRoom implements [store.Store].
func (s *Store) SaveRoom(ctx context.Context, snap store.RoomSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres store: marshal snapshot: %w", err)
	}

	const q = `
		INSERT INTO rooms (code, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (code) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, snap.Code, doc); err != nil {
		return fmt.Errorf("postgres store: save room: %w", err)
	}
	return nil
}

// LoadRoom implements [store.Store].
func (s *Store) LoadRoom(ctx context.Context, code string) (store.RoomSnapshot, error) {
	const q = `SELECT snapshot FROM rooms WHERE code = $1`

	var doc []byte
	err := s.pool.QueryRow(ctx, q, code).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.RoomSnapshot{}, store.ErrNotFound
	}
	if err != nil {
		return store.RoomSnapshot{}, fmt.Errorf("postgres store: load room: %w", err)
	}

	var snap store.RoomSnapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return store.RoomSnapshot{}, fmt.Errorf("postgres store: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteRoom implements [store.Store].
func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE code = $1`, code); err != nil {
		return fmt.Errorf("postgres store: delete room: %w", err)
	}
	return nil
}

// IncrementLeaderboard implements [store.Store]. The upsert is atomic, so no
// explicit transaction is needed.
func (s *Store) IncrementLeaderboard(ctx context.Context, userID, name string, delta int) error {
	const q = `
		INSERT INTO leaderboard (user_id, name, score, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET score        = GREATEST(leaderboard.score + EXCLUDED.score, 0),
		    name         = EXCLUDED.name,
		    last_updated = now()`

	if _, err := s.pool.Exec(ctx, q, userID, name, delta); err != nil {
		return fmt.Errorf("postgres store: increment leaderboard: %w", err)
	}
	return nil
}

// GetLeaderboard implements [store.Store].
func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	const q = `
		SELECT user_id, name, score, last_updated
		FROM   leaderboard
		ORDER  BY score DESC, last_updated DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get leaderboard: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.LeaderboardEntry, error) {
		var e store.LeaderboardEntry
		err := row.Scan(&e.UserID, &e.Name, &e.Score, &e.LastUpdated)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan leaderboard: %w", err)
	}
	return entries, nil
}

// AppendRecentPlaylist implements [store.Store]. The upsert refreshes the
// timestamp of an existing URL, which moves it to the head; older rows past
// the cap are pruned in the same transaction.
func (s *Store) AppendRecentPlaylist(ctx context.Context, userID string, ref store.PlaylistRef) ([]store.PlaylistRef, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO playlist_history (user_id, url, name, source, added_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, url) DO UPDATE
		SET name = EXCLUDED.name, source = EXCLUDED.source, added_at = now()`

	if _, err := tx.Exec(ctx, upsert, userID, ref.URL, ref.Name, ref.Source); err != nil {
		return nil, fmt.Errorf("postgres store: append playlist: %w", err)
	}

	const prune = `
		DELETE FROM playlist_history
		WHERE user_id = $1
		  AND url NOT IN (
		      SELECT url FROM playlist_history
		      WHERE user_id = $1
		      ORDER BY added_at DESC
		      LIMIT $2)`

	if _, err := tx.Exec(ctx, prune, userID, store.HistoryCap); err != nil {
		return nil, fmt.Errorf("postgres store: prune playlist history: %w", err)
	}

	refs, err := getRecent(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres store: commit: %w", err)
	}
	return refs, nil
}

// GetRecentPlaylists implements [store.Store].
func (s *Store) GetRecentPlaylists(ctx context.Context, userID string) ([]store.PlaylistRef, error) {
	return getRecent(ctx, s.pool, userID)
}

// querier is the subset of pgx shared by pool and transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getRecent(ctx context.Context, q querier, userID string) ([]store.PlaylistRef, error) {
	const query = `
		SELECT url, name, source
		FROM   playlist_history
		WHERE  user_id = $1
		ORDER  BY added_at DESC
		LIMIT  $2`

	rows, err := q.Query(ctx, query, userID, store.HistoryCap)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get playlist history: %w", err)
	}

	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PlaylistRef, error) {
		var r store.PlaylistRef
		err := row.Scan(&r.URL, &r.Name, &r.Source)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan playlist history: %w", err)
	}
	return refs, nil
}
