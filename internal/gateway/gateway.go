// Package gateway exposes the game engine over websocket events and a small
// REST surface. One websocket connection maps to one connection handle; all
// room interaction after the upgrade happens through JSON event envelopes.
package gateway

import (
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/room"
	"github.com/pshemk/tunehunt/internal/store"
)

// Config wires a Gateway.
type Config struct {
	Service *room.Service
	Catalog *catalog.Resolver
	Store   store.Store

	// Verifier may be nil; authenticated REST endpoints then reject all
	// tokens.
	Verifier auth.Verifier

	// AllowedOrigins is passed to the websocket accept check. Empty means
	// same-origin only.
	AllowedOrigins []string
}

// Gateway terminates client connections and translates between the wire
// protocol and the engine.
type Gateway struct {
	svc      *room.Service
	catalog  *catalog.Resolver
	store    store.Store
	verifier auth.Verifier
	origins  []string
	hub      *Hub

	// roomLocks serializes engine-call-plus-delivery per room so members
	// observe broadcasts in the order mutations committed, even when the
	// operations arrive on different connections. Striped by room code.
	roomLocks [64]sync.Mutex
}

func New(cfg Config) *Gateway {
	return &Gateway{
		svc:      cfg.Service,
		catalog:  cfg.Catalog,
		store:    cfg.Store,
		verifier: cfg.Verifier,
		origins:  cfg.AllowedOrigins,
		hub:      NewHub(),
	}
}

// Hub exposes the connection hub, mainly for tests.
func (g *Gateway) Hub() *Hub { return g.hub }

// roomLock returns the dispatch lock for code. Unrelated rooms may share a
// stripe; that costs some contention, never correctness.
func (g *Gateway) roomLock(code string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(code))
	return &g.roomLocks[h.Sum32()%uint32(len(g.roomLocks))]
}

// Routes registers the gateway on mux. REST routes run through the request
// middleware; the websocket route must not, because the upgrade needs the
// raw http.ResponseWriter to hijack the connection.
func (g *Gateway) Routes(mux *http.ServeMux) {
	rest := observe.Middleware(observe.DefaultMetrics())

	mux.HandleFunc("GET /ws", g.handleWS)
	mux.Handle("POST /api/parse-playlist", rest(http.HandlerFunc(g.handleParsePlaylist)))
	mux.Handle("GET /api/leaderboard", rest(http.HandlerFunc(g.handleLeaderboard)))
	mux.Handle("GET /api/playlist-history", rest(http.HandlerFunc(g.handlePlaylistHistory)))
	mux.Handle("GET /metrics", promhttp.Handler())
}
