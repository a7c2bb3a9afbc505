package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pshemk/tunehunt/internal/auth"
	authmock "github.com/pshemk/tunehunt/internal/auth/mock"
	"github.com/pshemk/tunehunt/internal/catalog"
	catmock "github.com/pshemk/tunehunt/internal/catalog/mock"
	"github.com/pshemk/tunehunt/internal/playback"
	"github.com/pshemk/tunehunt/internal/room"
	"github.com/pshemk/tunehunt/internal/store"
	"github.com/pshemk/tunehunt/internal/store/memstore"
)

var testPlaylist = &catalog.Playlist{
	Source:   catalog.SourceSpotify,
	ID:       "pl1",
	Name:     "Polish Rap Classics",
	Total:    2,
	Playable: 2,
	Tracks: []catalog.Track{
		{ID: "t1", Title: "Deszcz na betonie", Artist: "Taco Hemingway", PreviewURL: "p1"},
		{ID: "t2", Title: "Tamagotchi", Artist: "Taco Hemingway", PreviewURL: "p2"},
	},
}

// newTestServer spins a gateway over the in-memory store behind httptest.
func newTestServer(t *testing.T, origins []string) (*httptest.Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	verifier := &authmock.Verifier{Identities: map[string]auth.Identity{
		"tok-bob": {UserID: "u-bob"},
	}}
	svc := room.NewService(room.ServiceConfig{
		Store:    st,
		Resolver: playback.NewResolver(&catmock.Searcher{}, nil),
		Verifier: verifier,
	})
	g := New(Config{
		Service: svc,
		Catalog: catalog.NewResolver(&catmock.Provider{
			Prefix: "https://open.spotify.com/",
			ResolveFunc: func(_ context.Context, url string, _ int) (*catalog.Playlist, error) {
				if strings.Contains(url, "nocreds") {
					return nil, catalog.ErrMissingCredentials
				}
				return testPlaylist, nil
			},
		}),
		Store:          st,
		Verifier:       verifier,
		AllowedOrigins: origins,
	})
	mux := http.NewServeMux()
	g.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

type wsMsg struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsAck struct {
	ID    int64           `json:"id"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, id int64, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	if err := wsjson.Write(ctx, conn, envelope{Event: event, ID: id, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// awaitEvent reads messages until one matches name, skipping everything else.
func awaitEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) json.RawMessage {
	t.Helper()
	for {
		var msg wsMsg
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("waiting for %q: %v", name, err)
		}
		if msg.Event == name {
			return msg.Data
		}
	}
}

// awaitAck reads until the ack for id arrives.
func awaitAck(t *testing.T, ctx context.Context, conn *websocket.Conn, id int64) wsAck {
	t.Helper()
	for {
		raw := awaitEvent(t, ctx, conn, "ack")
		var ack wsAck
		if err := json.Unmarshal(raw, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if ack.ID == id {
			return ack
		}
	}
}

func TestGateway_RoomLifecycleOverWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, _ := newTestServer(t, nil)

	host := dial(t, ctx, srv)

	send(t, ctx, host, 1, "createRoom", struct{}{})
	ack := awaitAck(t, ctx, host, 1)
	if !ack.OK {
		t.Fatalf("createRoom ack = %+v", ack)
	}
	var created createRoomResp
	if err := json.Unmarshal(ack.Data, &created); err != nil {
		t.Fatalf("decode createRoom data: %v", err)
	}
	if len(created.Code) != 6 || created.Conn == "" {
		t.Fatalf("created = %+v", created)
	}

	send(t, ctx, host, 2, "joinRoom", joinRoomReq{Code: created.Code, Name: "Alice"})
	if ack := awaitAck(t, ctx, host, 2); !ack.OK {
		t.Fatalf("joinRoom ack = %+v", ack)
	}

	guest := dial(t, ctx, srv)
	send(t, ctx, guest, 1, "joinRoom", joinRoomReq{Code: created.Code, Name: "Bob", Token: "tok-bob"})
	guestAck := awaitAck(t, ctx, guest, 1)
	if !guestAck.OK {
		t.Fatalf("guest joinRoom ack = %+v", guestAck)
	}
	var joined joinRoomResp
	if err := json.Unmarshal(guestAck.Data, &joined); err != nil {
		t.Fatalf("decode joinRoom data: %v", err)
	}

	// The host sees Bob arrive through the room snapshot.
	for {
		var state room.RoomStatePayload
		if err := json.Unmarshal(awaitEvent(t, ctx, host, room.EventRoomState), &state); err != nil {
			t.Fatalf("decode roomState: %v", err)
		}
		if len(state.Players) == 2 {
			if state.HostConn != created.Conn {
				t.Errorf("hostConn = %q, want %q", state.HostConn, created.Conn)
			}
			break
		}
	}

	// Chat fans out to the other member with the sender's name attached.
	send(t, ctx, guest, 2, "chat", chatReq{Code: created.Code, Text: "  hello  "})
	var line room.ChatPayload
	for {
		if err := json.Unmarshal(awaitEvent(t, ctx, host, room.EventChat), &line); err != nil {
			t.Fatalf("decode chat: %v", err)
		}
		if !line.System {
			break
		}
	}
	if line.Name != "Bob" || line.Text != "hello" {
		t.Errorf("chat = %+v", line)
	}

	// Kicking delivers a private notice to the target only.
	send(t, ctx, host, 3, "kickPlayer", kickReq{Code: created.Code, TargetConnHandle: joined.Conn})
	if ack := awaitAck(t, ctx, host, 3); !ack.OK {
		t.Fatalf("kickPlayer ack = %+v", ack)
	}
	var kicked room.KickedPayload
	if err := json.Unmarshal(awaitEvent(t, ctx, guest, room.EventKicked), &kicked); err != nil {
		t.Fatalf("decode kicked: %v", err)
	}
	if kicked.Message == "" {
		t.Error("kicked payload has no message")
	}
}

func TestGateway_GuessOverWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv, st := newTestServer(t, nil)

	host := dial(t, ctx, srv)
	send(t, ctx, host, 1, "createRoom", struct{}{})
	var created createRoomResp
	if err := json.Unmarshal(awaitAck(t, ctx, host, 1).Data, &created); err != nil {
		t.Fatalf("decode createRoom data: %v", err)
	}
	send(t, ctx, host, 2, "joinRoom", joinRoomReq{Code: created.Code, Name: "Alice", Token: "tok-bob"})
	awaitAck(t, ctx, host, 2)

	send(t, ctx, host, 3, "startGame", startGameReq{
		Code:     created.Code,
		Mode:     playback.ModePreview,
		GameType: room.GameText,
		Tracks:   testPlaylist.Tracks[:1],
	})
	if ack := awaitAck(t, ctx, host, 3); !ack.OK {
		t.Fatalf("startGame ack = %+v", ack)
	}

	// Broadcast events precede the ack on the wire, so read them first.
	send(t, ctx, host, 4, "nextRound", codeReq{Code: created.Code})
	var start room.RoundStartPayload
	if err := json.Unmarshal(awaitEvent(t, ctx, host, room.EventRoundStart), &start); err != nil {
		t.Fatalf("decode roundStart: %v", err)
	}
	if start.Playback.PreviewURL != "p1" {
		t.Errorf("playback = %+v", start.Playback)
	}
	if ack := awaitAck(t, ctx, host, 4); !ack.OK {
		t.Fatalf("nextRound ack = %+v", ack)
	}

	send(t, ctx, host, 5, "guess", guessReq{Code: created.Code, GuessText: "Taco Hemingway Deszcz na betonie"})
	var end room.RoundEndPayload
	if err := json.Unmarshal(awaitEvent(t, ctx, host, room.EventRoundEnd), &end); err != nil {
		t.Fatalf("decode roundEnd: %v", err)
	}
	if end.Winner != "Alice" {
		t.Errorf("winner = %q", end.Winner)
	}
	ack := awaitAck(t, ctx, host, 5)
	var res guessResp
	if err := json.Unmarshal(ack.Data, &res); err != nil {
		t.Fatalf("decode guess data: %v", err)
	}
	if !res.Correct || res.Points != 10 {
		t.Errorf("guess = %+v, want full credit", res)
	}

	// The authenticated winner reaches the global leaderboard.
	board, err := st.GetLeaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(board) != 1 || board[0].UserID != "u-bob" || board[0].Score != 10 {
		t.Errorf("leaderboard = %+v", board)
	}
}

func TestGateway_BroadcastOrderMatchesCommitOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv, _ := newTestServer(t, nil)

	host := dial(t, ctx, srv)
	send(t, ctx, host, 1, "createRoom", struct{}{})
	var created createRoomResp
	if err := json.Unmarshal(awaitAck(t, ctx, host, 1).Data, &created); err != nil {
		t.Fatalf("decode createRoom data: %v", err)
	}
	send(t, ctx, host, 2, "joinRoom", joinRoomReq{Code: created.Code, Name: "Host"})
	if ack := awaitAck(t, ctx, host, 2); !ack.OK {
		t.Fatalf("host joinRoom ack = %+v", ack)
	}

	const guests, renames = 4, 5
	conns := make([]*websocket.Conn, guests)
	for i := range conns {
		conns[i] = dial(t, ctx, srv)
		send(t, ctx, conns[i], 1, "joinRoom", joinRoomReq{Code: created.Code, Name: fmt.Sprintf("Guest%d", i)})
		if ack := awaitAck(t, ctx, conns[i], 1); !ack.OK {
			t.Fatalf("guest %d joinRoom ack = %+v", i, ack)
		}
	}

	// Hammer the room from every guest at once. Fire-and-forget envelopes
	// (no ack id) keep the unread guest buffers small.
	var wg sync.WaitGroup
	errCh := make(chan error, guests*renames)
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range renames {
				raw, err := json.Marshal(setNameReq{Code: created.Code, Name: fmt.Sprintf("Guest%d-%d", i, n)})
				if err != nil {
					errCh <- err
					return
				}
				if err := wsjson.Write(ctx, conn, envelope{Event: "setName", Data: raw}); err != nil {
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	select {
	case err := <-errCh:
		t.Fatalf("concurrent setName: %v", err)
	default:
	}

	// Every mutation bumps the snapshot sequence exactly once, so the host
	// must observe strictly increasing seq values up to the final one.
	wantFinal := uint64(1 + guests + guests*renames)
	var last uint64
	for {
		var state room.RoomStatePayload
		if err := json.Unmarshal(awaitEvent(t, ctx, host, room.EventRoomState), &state); err != nil {
			t.Fatalf("decode roomState: %v", err)
		}
		if state.Seq <= last {
			t.Fatalf("roomState seq regressed: %d after %d", state.Seq, last)
		}
		last = state.Seq
		if state.Seq == wantFinal {
			return
		}
	}
}

func TestGateway_UnknownEventAndBadRoom(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _ := newTestServer(t, nil)

	conn := dial(t, ctx, srv)

	send(t, ctx, conn, 1, "teleport", struct{}{})
	if ack := awaitAck(t, ctx, conn, 1); ack.OK || ack.Error != "unknown-event" {
		t.Errorf("ack = %+v, want unknown-event", ack)
	}

	send(t, ctx, conn, 2, "joinRoom", joinRoomReq{Code: "NOSUCH", Name: "X"})
	if ack := awaitAck(t, ctx, conn, 2); ack.OK || ack.Error != "room-not-found" {
		t.Errorf("ack = %+v, want room-not-found", ack)
	}
}

func TestGateway_OriginCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evil := http.Header{"Origin": []string{"http://evil.example"}}

	srv, _ := newTestServer(t, nil)
	if _, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{HTTPHeader: evil}); err == nil {
		t.Error("cross-origin dial succeeded without an allowlist")
	}

	open, _ := newTestServer(t, []string{"evil.example"})
	conn, _, err := websocket.Dial(ctx, wsURL(open), &websocket.DialOptions{HTTPHeader: evil})
	if err != nil {
		t.Fatalf("allowlisted dial: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestGateway_ParsePlaylist(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	post := func(body any) *http.Response {
		t.Helper()
		raw, _ := json.Marshal(body)
		resp, err := http.Post(srv.URL+"/api/parse-playlist", "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// The playlist fields sit flat at the top level of the body, not nested.
	resp := post(parsePlaylistReq{URL: "https://open.spotify.com/playlist/pl1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var shape map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&shape); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"source", "playlistId", "playlistName", "total", "playable", "tracks"} {
		if _, ok := shape[key]; !ok {
			t.Errorf("response missing top-level %q: %v", key, shape)
		}
	}
	if _, ok := shape["updatedHistory"]; ok {
		t.Errorf("anonymous request updated history: %s", shape["updatedHistory"])
	}

	// An authenticated parse lands in the caller's history.
	resp = post(parsePlaylistReq{URL: "https://open.spotify.com/playlist/pl1", Token: "tok-bob"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out parsePlaylistResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "Polish Rap Classics" || len(out.Tracks) != 2 {
		t.Errorf("playlist = %+v", out.Playlist)
	}
	if len(out.UpdatedHistory) != 1 || out.UpdatedHistory[0].Name != "Polish Rap Classics" {
		t.Errorf("updatedHistory = %+v", out.UpdatedHistory)
	}

	if resp := post(parsePlaylistReq{URL: "https://example.com/nope"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unrecognized URL status = %d, want 400", resp.StatusCode)
	}
	if resp := post(parsePlaylistReq{URL: "https://open.spotify.com/playlist/nocreds"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing credentials status = %d, want 400", resp.StatusCode)
	}
	if resp := post(struct{}{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestGateway_Leaderboard(t *testing.T) {
	srv, st := newTestServer(t, nil)
	ctx := context.Background()

	st.IncrementLeaderboard(ctx, "u-1", "Alice", 30)
	st.IncrementLeaderboard(ctx, "u-2", "Bob", 45)

	resp, err := http.Get(srv.URL + "/api/leaderboard")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// The body is the entries array itself.
	var out []store.LeaderboardEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].Name != "Bob" {
		t.Errorf("leaderboard = %+v", out)
	}
}

func TestGateway_PlaylistHistoryRequiresAuth(t *testing.T) {
	srv, st := newTestServer(t, nil)
	ctx := context.Background()

	st.AppendRecentPlaylist(ctx, "u-bob", store.PlaylistRef{
		URL: "https://open.spotify.com/playlist/pl1", Name: "Polish Rap Classics", Source: catalog.SourceSpotify,
	})

	get := func(token string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/playlist-history", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := get(""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", resp.StatusCode)
	}
	if resp := get("bogus"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}

	resp := get("tok-bob")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out []store.PlaylistRef
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "Polish Rap Classics" {
		t.Errorf("history = %+v", out)
	}
}
