package room

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/playback"
)

// findEvent returns the first event with the given name, failing the test
// when it is absent.
func findEvent(t *testing.T, events []Event, name string) Event {
	t.Helper()
	for _, e := range events {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("no %q event in %v", name, eventNames(events))
	return Event{}
}

func hasEvent(events []Event, name string) bool {
	for _, e := range events {
		if e.Name == name {
			return true
		}
	}
	return false
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestRoom_Join_CreatesMembers(t *testing.T) {
	r := New("ABC123", "conn-alice")

	events, created := r.Join("conn-alice", "Alice", auth.Identity{})
	if !created {
		t.Fatal("first join did not create a member")
	}
	chat := findEvent(t, events, EventChat).Payload.(ChatPayload)
	if !chat.System || chat.Text != "Alice joined the room" {
		t.Errorf("chat = %+v", chat)
	}

	bobEvents, _ := r.Join("conn-bob", "Bob", auth.Identity{})
	state := findEvent(t, bobEvents, EventRoomState).Payload.(RoomStatePayload)
	if len(state.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(state.Players))
	}
	if state.HostConn != "conn-alice" {
		t.Errorf("hostConn = %q, want conn-alice", state.HostConn)
	}
	if !state.Players[0].IsHost || state.Players[1].IsHost {
		t.Errorf("host flags wrong: %+v", state.Players)
	}
}

func TestRoom_Join_NameCollision(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "Sam", auth.Identity{})
	r.Join("conn-2", "Sam", auth.Identity{})
	events, _ := r.Join("conn-3", "Sam", auth.Identity{})

	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	names := map[string]bool{}
	for _, p := range state.Players {
		if names[p.Name] {
			t.Fatalf("duplicate name %q", p.Name)
		}
		names[p.Name] = true
	}
	if !names["Sam"] || !names["Sam#2"] || !names["Sam#3"] {
		t.Errorf("names = %v", names)
	}
}

func TestRoom_Join_TrimsLongNames(t *testing.T) {
	r := New("ABC123", "conn-1")
	long := strings.Repeat("ą", 50)
	events, _ := r.Join("conn-1", long, auth.Identity{})

	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	if got := len([]rune(state.Players[0].Name)); got != maxNameLen {
		t.Errorf("name length = %d code points, want %d", got, maxNameLen)
	}
}

func TestRoom_Join_HostAdoptionAndReattach(t *testing.T) {
	r := New("ABC123", "conn-alice")

	// First-login adoption binds the creator's identity to host rights.
	r.Join("conn-alice", "Alice", auth.Identity{UserID: "u-alice"})
	if r.hostUser != "u-alice" {
		t.Fatalf("hostUser = %q, want u-alice", r.hostUser)
	}

	r.Join("conn-bob", "Bob", auth.Identity{UserID: "u-bob"})

	// Host drops; Bob inherits the host connection.
	_, empty := r.Disconnect("conn-alice")
	if empty {
		t.Fatal("room reported empty with Bob present")
	}
	if r.hostConn != "conn-bob" {
		t.Fatalf("hostConn = %q, want conn-bob", r.hostConn)
	}

	// Alice returns under a new connection; host rights follow the user id.
	events, _ := r.Join("conn-alice-2", "Alice", auth.Identity{UserID: "u-alice"})
	if r.hostConn != "conn-alice-2" {
		t.Errorf("hostConn = %q, want conn-alice-2", r.hostConn)
	}
	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	if len(state.Players) != 2 {
		t.Errorf("players = %d, want 2", len(state.Players))
	}
}

func TestRoom_Join_MigratesExistingUser(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "Alice", auth.Identity{})
	r.Join("conn-2", "Bob", auth.Identity{UserID: "u-bob"})
	r.members["conn-2"].Score = 15

	// Bob reconnects under a fresh handle; score and name carry over.
	events, created := r.Join("conn-9", "Bobby", auth.Identity{UserID: "u-bob"})
	if created {
		t.Error("reconnect reported a new member")
	}
	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)

	if len(state.Players) != 2 {
		t.Fatalf("players = %d, want 2 (no duplicate for u-bob)", len(state.Players))
	}
	var bob PlayerInfo
	for _, p := range state.Players {
		if p.UserID == "u-bob" {
			bob = p
		}
	}
	if bob.ID != "conn-9" || bob.Score != 15 || bob.Name != "Bob" {
		t.Errorf("migrated member = %+v", bob)
	}
}

func TestRoom_SetName(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "Alice", auth.Identity{})
	r.Join("conn-2", "Bob", auth.Identity{})

	events, err := r.SetName("conn-2", "Robert")
	if err != nil {
		t.Fatalf("SetName: %v", err)
	}
	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	if state.Players[1].Name != "Robert" {
		t.Errorf("name = %q, want Robert", state.Players[1].Name)
	}

	// Colliding rename gets a random numeric suffix.
	events, err = r.SetName("conn-2", "Alice")
	if err != nil {
		t.Fatalf("SetName: %v", err)
	}
	state = findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	got := state.Players[1].Name
	if !strings.HasPrefix(got, "Alice#") {
		t.Errorf("name = %q, want Alice#N", got)
	}

	if _, err := r.SetName("conn-2", "   "); err == nil {
		t.Error("expected error for blank name")
	}
	if _, err := r.SetName("conn-404", "X"); err == nil {
		t.Error("expected error for unknown member")
	}
}

func TestRoom_Disconnect_LastMemberEmptiesRoom(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "Alice", auth.Identity{})

	events, empty := r.Disconnect("conn-1")
	if !empty {
		t.Fatal("room should report empty")
	}
	chat := findEvent(t, events, EventChat).Payload.(ChatPayload)
	if chat.Text != "Alice left the room" {
		t.Errorf("chat = %q", chat.Text)
	}
}

func TestRoom_Kick(t *testing.T) {
	r := New("ABC123", "conn-alice")
	r.Join("conn-alice", "Alice", auth.Identity{})
	r.Join("conn-bob", "Bob", auth.Identity{})

	if _, err := r.Kick("conn-bob", "conn-alice"); err != ErrPermission {
		t.Fatalf("non-host kick err = %v, want ErrPermission", err)
	}

	events, err := r.Kick("conn-alice", "conn-bob")
	if err != nil {
		t.Fatalf("Kick: %v", err)
	}

	kicked := findEvent(t, events, EventKicked)
	if kicked.To != "conn-bob" {
		t.Errorf("kicked.To = %q, want conn-bob", kicked.To)
	}
	state := findEvent(t, events, EventRoomState).Payload.(RoomStatePayload)
	if len(state.Players) != 1 {
		t.Errorf("players = %d, want 1", len(state.Players))
	}
}

func TestRoom_Kick_SelfRejected(t *testing.T) {
	r := New("ABC123", "conn-alice")
	r.Join("conn-alice", "Alice", auth.Identity{})
	r.Join("conn-bob", "Bob", auth.Identity{})

	if _, err := r.Kick("conn-alice", "conn-alice"); !errors.Is(err, ErrBadInput) {
		t.Fatalf("self-kick err = %v, want ErrBadInput", err)
	}
	if r.hostConn != "conn-alice" || !r.HasMember("conn-alice") {
		t.Errorf("self-kick mutated the room: hostConn=%q", r.hostConn)
	}
}

func TestRoom_Join_ReportsCreation(t *testing.T) {
	r := New("ABC123", "conn-alice")

	if _, created := r.Join("conn-alice", "Alice", auth.Identity{UserID: "u-alice"}); !created {
		t.Fatal("first join reported no new member")
	}
	// Repeat join under the same handle refreshes identity only.
	if _, created := r.Join("conn-alice", "Alice", auth.Identity{UserID: "u-alice"}); created {
		t.Error("repeat join reported a new member")
	}
	// Reconnect under a fresh handle migrates the existing member.
	if _, created := r.Join("conn-alice-2", "Alice", auth.Identity{UserID: "u-alice"}); created {
		t.Error("reconnect migration reported a new member")
	}
}

func TestRoom_Chat(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "Alice", auth.Identity{})

	events, err := r.Chat("conn-1", "  hello  ")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	chat := findEvent(t, events, EventChat).Payload.(ChatPayload)
	if chat.Text != "hello" || chat.Name != "Alice" || chat.System {
		t.Errorf("chat = %+v", chat)
	}

	// Overlong messages are truncated to the code-point limit.
	events, err = r.Chat("conn-1", strings.Repeat("x", maxChatLen+100))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	chat = findEvent(t, events, EventChat).Payload.(ChatPayload)
	if got := len([]rune(chat.Text)); got != maxChatLen {
		t.Errorf("chat length = %d, want %d", got, maxChatLen)
	}

	if _, err := r.Chat("conn-1", "   "); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestRoom_StateSequenceIncreases(t *testing.T) {
	r := New("ABC123", "conn-1")

	e1, _ := r.Join("conn-1", "Alice", auth.Identity{})
	e2, _ := r.Join("conn-2", "Bob", auth.Identity{})
	s1 := findEvent(t, e1, EventRoomState).Payload.(RoomStatePayload)
	s2 := findEvent(t, e2, EventRoomState).Payload.(RoomStatePayload)
	if s2.Seq <= s1.Seq {
		t.Errorf("seq not increasing: %d then %d", s1.Seq, s2.Seq)
	}
}

func TestRoom_SnapshotRoundtrip(t *testing.T) {
	r := New("ABC123", "conn-alice")
	r.Join("conn-alice", "Alice", auth.Identity{UserID: "u-alice"})
	r.Join("conn-bob", "Bob", auth.Identity{})
	r.members["conn-alice"].Score = 20

	tracks := []catalog.Track{{ID: "t1", Title: "Song", Artist: "Band", PreviewURL: "p1"}}
	if _, err := r.StartGame("conn-alice", playback.ModePreview, GameText, tracks, 1); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := r.CommitRound("conn-alice", 0, tracks[0], playback.Handle{Type: playback.TypeAudio, PreviewURL: "p1"}); err != nil {
		t.Fatalf("CommitRound: %v", err)
	}

	snap := r.Snapshot()
	if snap.Code != "ABC123" || snap.HostUser != "u-alice" || !snap.AnswersKnown {
		t.Errorf("snapshot = %+v", snap)
	}
	// Unauthenticated Bob is not persisted.
	if len(snap.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(snap.Players))
	}
	if snap.Players["u-alice"].Score != 20 {
		t.Errorf("score = %d, want 20", snap.Players["u-alice"].Score)
	}
	if snap.CurrentRound == nil || snap.CurrentRound.Track.ID != "t1" {
		t.Errorf("currentRound = %+v", snap.CurrentRound)
	}

	restored := FromSnapshot(snap)
	if restored.hostUser != "u-alice" || restored.hostConn != "" {
		t.Errorf("restored host = %q/%q", restored.hostUser, restored.hostConn)
	}
	m, ok := restored.members[pendingPrefix+"u-alice"]
	if !ok {
		t.Fatal("no sentinel member for u-alice")
	}
	if m.Score != 20 || m.Name != "Alice" {
		t.Errorf("restored member = %+v", m)
	}

	// Reconnecting resolves the sentinel to the live handle.
	restored.Join("conn-new", "Alice", auth.Identity{UserID: "u-alice"})
	if _, stale := restored.members[pendingPrefix+"u-alice"]; stale {
		t.Error("sentinel handle survived reconnection")
	}
	if restored.hostConn != "conn-new" {
		t.Errorf("hostConn = %q, want conn-new", restored.hostConn)
	}
}

func TestRoom_HostUniqueInvariant(t *testing.T) {
	r := New("ABC123", "conn-1")
	r.Join("conn-1", "A", auth.Identity{})
	r.Join("conn-2", "B", auth.Identity{})
	r.Join("conn-3", "C", auth.Identity{})

	for _, leave := range []string{"conn-1", "conn-2"} {
		r.Disconnect(leave)

		hosts := 0
		state := r.stateEventLocked()
		for _, p := range state.Players {
			if p.IsHost {
				hosts++
			}
		}
		if hosts != 1 {
			t.Fatalf("after %s left: %d hosts, want exactly 1", leave, hosts)
		}
	}
}

// stateEventLocked is a test helper that builds a fresh snapshot payload.
func (r *Room) stateEventLocked() RoomStatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateEvent().Payload.(RoomStatePayload)
}

// testClock returns a controllable clock starting at a fixed instant.
func testClock(start time.Time) (*time.Time, func() time.Time) {
	cur := start
	return &cur, func() time.Time { return cur }
}
