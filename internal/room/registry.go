package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLen      = 6

	// createAttempts bounds code-collision retries. With a 36^6 space the
	// second attempt is already vanishingly rare.
	createAttempts = 16
)

// Registry is the process-wide map from room code to live room. Lookups load
// through the snapshot store so a room survives a restart; saves write
// through on every mutation. The registry lock only guards the map, never a
// room's own state.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	store store.Store
}

// NewRegistry creates a Registry backed by st.
func NewRegistry(st store.Store) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		store: st,
	}
}

// Create allocates a room with a fresh collision-checked code, hosted by
// hostConn, persists the initial snapshot and registers it.
func (g *Registry) Create(ctx context.Context, hostConn string) (*Room, error) {
	g.mu.Lock()

	var code string
	for range createAttempts {
		candidate := newCode()
		if _, taken := g.rooms[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		g.mu.Unlock()
		return nil, fmt.Errorf("room: could not allocate a free code")
	}

	r := New(code, hostConn)
	g.rooms[code] = r
	g.mu.Unlock()

	observe.DefaultMetrics().ActiveRooms.Add(ctx, 1)
	g.Save(ctx, r)
	return r, nil
}

// Get returns the live room for code, loading it from the snapshot store
// when it is not in memory. Returns [ErrRoomNotFound] when neither exists.
func (g *Registry) Get(ctx context.Context, code string) (*Room, error) {
	g.mu.Lock()
	if r, ok := g.rooms[code]; ok {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	snap, err := g.store.LoadRoom(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room: load snapshot: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// Another connection may have restored the room meanwhile.
	if r, ok := g.rooms[code]; ok {
		return r, nil
	}
	r := FromSnapshot(snap)
	g.rooms[code] = r
	observe.DefaultMetrics().ActiveRooms.Add(ctx, 1)
	slog.Info("room restored from snapshot", "room", code)
	return r, nil
}

// Remove drops the room from memory. The snapshot in the store is kept so
// the room can be restored later.
func (g *Registry) Remove(ctx context.Context, code string) {
	g.mu.Lock()
	_, ok := g.rooms[code]
	delete(g.rooms, code)
	g.mu.Unlock()

	if ok {
		observe.DefaultMetrics().ActiveRooms.Add(ctx, -1)
		slog.Info("room removed", "room", code)
	}
}

// Count returns the number of live rooms. Used by the health endpoint.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Save writes the room's snapshot through to the store. Store failures are
// logged and counted but never surfaced: availability beats durability here.
func (g *Registry) Save(ctx context.Context, r *Room) {
	snap := r.Snapshot()
	if err := g.store.SaveRoom(ctx, snap); err != nil {
		observe.DefaultMetrics().RecordStoreError(ctx, "save_room")
		slog.Error("room snapshot save failed", "room", snap.Code, "err", err)
	}
}

// newCode generates a random 6-character uppercase room code.
func newCode() string {
	buf := make([]byte, codeLen)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}
