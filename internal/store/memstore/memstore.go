// Package memstore provides an in-memory store.Store for development runs
// without a database and for tests. Nothing survives a restart.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pshemk/tunehunt/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	rooms   map[string]store.RoomSnapshot
	board   map[string]store.LeaderboardEntry
	history map[string][]store.PlaylistRef
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rooms:   make(map[string]store.RoomSnapshot),
		board:   make(map[string]store.LeaderboardEntry),
		history: make(map[string][]store.PlaylistRef),
	}
}

// SaveRoom implements [store.Store].
func (s *Store) SaveRoom(_ context.Context, snap store.RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[snap.Code] = snap
	return nil
}

// LoadRoom implements [store.Store].
func (s *Store) LoadRoom(_ context.Context, code string) (store.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.rooms[code]
	if !ok {
		return store.RoomSnapshot{}, store.ErrNotFound
	}
	return snap, nil
}

// DeleteRoom implements [store.Store].
func (s *Store) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

// IncrementLeaderboard implements [store.Store].
func (s *Store) IncrementLeaderboard(_ context.Context, userID, name string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.board[userID]
	e.UserID = userID
	e.Name = name
	e.Score += delta
	if e.Score < 0 {
		e.Score = 0
	}
	e.LastUpdated = time.Now()
	s.board[userID] = e
	return nil
}

// GetLeaderboard implements [store.Store].
func (s *Store) GetLeaderboard(_ context.Context, limit int) ([]store.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]store.LeaderboardEntry, 0, len(s.board))
	for _, e := range s.board {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].LastUpdated.After(entries[j].LastUpdated)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// AppendRecentPlaylist implements [store.Store].
func (s *Store) AppendRecentPlaylist(_ context.Context, userID string, ref store.PlaylistRef) ([]store.PlaylistRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.history[userID]
	refs = slices.DeleteFunc(refs, func(r store.PlaylistRef) bool {
		return r.URL == ref.URL
	})
	refs = append([]store.PlaylistRef{ref}, refs...)
	if len(refs) > store.HistoryCap {
		refs = refs[:store.HistoryCap]
	}
	s.history[userID] = refs

	out := make([]store.PlaylistRef, len(refs))
	copy(out, refs)
	return out, nil
}

// GetRecentPlaylists implements [store.Store].
func (s *Store) GetRecentPlaylists(_ context.Context, userID string) ([]store.PlaylistRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.history[userID]
	out := make([]store.PlaylistRef, len(refs))
	copy(out, refs)
	return out, nil
}
