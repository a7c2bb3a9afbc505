// Package room contains the per-room game engine: membership and the host
// model, the round state machine, text-mode scoring, the buzzer protocol,
// and the registry that maps codes to live rooms.
//
// A Room owns its state exclusively; every operation takes the room lock, so
// all mutations on one room are serialized and their emitted events reflect
// commit order. Operations return the events to broadcast; delivery is the
// gateway's job.
package room

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/playback"
	"github.com/pshemk/tunehunt/internal/store"
)

// GameType selects the answer-arbitration protocol, fixed per game.
type GameType string

const (
	// GameText accepts free-form typed guesses scored by the fuzzy matcher.
	GameText GameType = "text"

	// GameBuzzer uses a first-come buzzer queue adjudicated by the host.
	GameBuzzer GameType = "buzzer"
)

// IsValid reports whether t is a recognised game type.
func (t GameType) IsValid() bool {
	return t == GameText || t == GameBuzzer
}

const (
	// maxNameLen is the display-name limit in code points.
	maxNameLen = 32

	// maxChatLen is the chat-message limit in code points.
	maxChatLen = 500

	// pendingPrefix marks connection handles reconstructed from a snapshot.
	// No live connection uses them; they resolve on the user's next join.
	pendingPrefix = "pending-"
)

// Member is one participant, keyed in the room by its connection handle.
type Member struct {
	Conn     string
	Name     string
	Score    int
	UserID   string
	PhotoURL string
}

// Buzzer is the first-come arbitration state of a buzzer-mode round. It
// exists only after the first buzz. A connection handle appears at most once
// across holder and queue.
type Buzzer struct {
	FirstBuzzAt time.Time
	Holder      string
	HolderName  string
	Queue       []QueueEntry
}

// Round is one playback of a single track.
type Round struct {
	StartedAt time.Time
	Track     catalog.Track
	Playback  playback.Handle
	Solved    bool
	Paused    bool
	Buzzer    *Buzzer
}

// Hint returns the answer-length hint for the round's track.
func (r *Round) Hint() Hint {
	return Hint{
		TitleLen:  utf8.RuneCountInString(r.Track.Title),
		ArtistLen: utf8.RuneCountInString(r.Track.Artist),
	}
}

// Room is the authoritative state of one game session. All exported methods
// are safe for concurrent use.
type Room struct {
	mu sync.Mutex

	code         string
	hostConn     string
	hostUser     string
	members      map[string]*Member
	order        []string // connection handles in insertion order
	mode         playback.Mode
	gameType     GameType
	tracks       []catalog.Track
	roundIndex   int
	current      *Round
	skipVotes    map[string]struct{}
	answersKnown bool
	seq          uint64

	now func() time.Time
}

// New creates an empty room with the given code, hosted by the creating
// connection. The host user id stays empty until the creator joins with a
// verified identity.
func New(code, hostConn string) *Room {
	return &Room{
		code:      code,
		hostConn:  hostConn,
		members:   make(map[string]*Member),
		skipVotes: make(map[string]struct{}),
		now:       time.Now,
	}
}

// Code returns the room's short code.
func (r *Room) Code() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// GameType returns the room's game type.
func (r *Room) GameType() GameType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameType
}

// Empty reports whether the room has no members.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// HasMember reports whether conn belongs to this room.
func (r *Room) HasMember(conn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[conn]
	return ok
}

// ── Membership ────────────────────────────────────────────────────────────────

// Join admits conn under requestedName. identity carries the verified user
// id when the caller presented a valid token; the zero value means
// unauthenticated. Join handles host reattach, first-login adoption and
// migration of an existing member (including snapshot sentinels) to the new
// connection handle. The second return reports whether a new member was
// created; reconnects and repeat joins leave the member count unchanged.
func (r *Room) Join(conn, requestedName string, identity auth.Identity) ([]Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid := identity.UserID

	// Host reattach: the owning user gets the host connection back.
	if uid != "" && uid == r.hostUser {
		r.hostConn = conn
	}

	// First-login adoption: the creating connection binds its identity.
	if r.hostUser == "" && conn == r.hostConn && uid != "" {
		r.hostUser = uid
	}

	// Migrate an existing member for this user to the new handle.
	if uid != "" {
		if prev := r.memberByUser(uid); prev != nil && prev.Conn != conn {
			r.rekeyMember(prev, conn)
			prev.PhotoURL = identity.PhotoURL
			return append(r.joinedEvents(prev.Name), r.stateEvent()), false
		}
	}

	if m, ok := r.members[conn]; ok {
		// Already joined under this handle; refresh identity only.
		m.UserID = uid
		if identity.PhotoURL != "" {
			m.PhotoURL = identity.PhotoURL
		}
		return []Event{r.stateEvent()}, false
	}

	m := &Member{
		Conn:     conn,
		Name:     r.uniqueName(trimName(requestedName)),
		UserID:   uid,
		PhotoURL: identity.PhotoURL,
	}
	r.members[conn] = m
	r.order = append(r.order, conn)

	return append(r.joinedEvents(m.Name), r.stateEvent()), true
}

// SetName renames the member behind conn. Colliding names get a random
// "#<1-99>" suffix.
func (r *Room) SetName(conn, name string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn]
	if !ok {
		return nil, fmt.Errorf("%w: unknown member", ErrBadInput)
	}
	name = trimName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrBadInput)
	}

	if other := r.memberByName(name); other != nil && other.Conn != conn {
		name = fmt.Sprintf("%s#%d", name, 1+rand.IntN(99))
	}
	m.Name = name

	return []Event{r.stateEvent()}, nil
}

// Disconnect removes the member behind conn, tidies the buzzer, and
// transfers the host connection to the first remaining member when the host
// left. The second return value reports whether the room is now empty.
func (r *Room) Disconnect(conn string) ([]Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn]
	if !ok {
		return nil, len(r.members) == 0
	}

	r.removeMember(conn)
	delete(r.skipVotes, conn)

	events := []Event{r.systemChat(m.Name + " left the room")}
	events = append(events, r.dropFromBuzzer(conn)...)

	if conn == r.hostConn && len(r.order) > 0 {
		r.hostConn = r.order[0]
	}

	if len(r.members) == 0 {
		return events, true
	}
	return append(events, r.stateEvent()), false
}

// Kick forcibly removes targetConn from the room. Host only. The kicked
// member receives a private notification before removal takes effect. The
// host cannot kick itself: that would strand hostConn on a removed member.
func (r *Room) Kick(conn, targetConn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if targetConn == conn {
		return nil, fmt.Errorf("%w: host cannot kick itself", ErrBadInput)
	}
	target, ok := r.members[targetConn]
	if !ok {
		return nil, fmt.Errorf("%w: unknown member", ErrBadInput)
	}

	r.removeMember(targetConn)
	delete(r.skipVotes, targetConn)

	events := []Event{
		{Name: EventKicked, Payload: KickedPayload{Message: "you were removed from the room"}, To: targetConn},
		r.systemChat(target.Name + " was removed from the room"),
	}
	events = append(events, r.dropFromBuzzer(targetConn)...)
	return append(events, r.stateEvent()), nil
}

// Chat relays a chat line from conn. Overlong messages are truncated, empty
// ones rejected.
func (r *Room) Chat(conn, text string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn]
	if !ok {
		return nil, fmt.Errorf("%w: unknown member", ErrBadInput)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", ErrBadInput)
	}
	if runes := []rune(text); len(runes) > maxChatLen {
		text = string(runes[:maxChatLen])
	}

	return []Event{{Name: EventChat, Payload: ChatPayload{
		Name: m.Name,
		Text: text,
		At:   r.now(),
	}}}, nil
}

// ── Snapshots ─────────────────────────────────────────────────────────────────

// Snapshot returns the durable projection of the room. Members are flattened
// to their stable user ids; unauthenticated members are not persisted since
// nothing ties them back after a restart.
func (r *Room) Snapshot() store.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make(map[string]store.PlayerEntry)
	for _, m := range r.members {
		if m.UserID == "" {
			continue
		}
		players[m.UserID] = store.PlayerEntry{Name: m.Name, Score: m.Score}
	}

	snap := store.RoomSnapshot{
		Code:         r.code,
		HostUser:     r.hostUser,
		Mode:         r.mode,
		GameType:     string(r.gameType),
		RoundIndex:   r.roundIndex,
		Tracks:       append([]catalog.Track(nil), r.tracks...),
		AnswersKnown: r.answersKnown,
		Players:      players,
	}
	if r.current != nil {
		snap.CurrentRound = &store.RoundSnapshot{
			Track:     r.current.Track,
			Playback:  r.current.Playback,
			StartedAt: r.current.StartedAt,
			Solved:    r.current.Solved,
			Paused:    r.current.Paused,
		}
	}
	return snap
}

// FromSnapshot reconstructs a room from its durable projection. Members get
// sentinel "pending-<uid>" handles until their users reconnect; the host
// connection stays empty for the same reason.
func FromSnapshot(snap store.RoomSnapshot) *Room {
	r := New(snap.Code, "")
	r.hostUser = snap.HostUser
	r.mode = snap.Mode
	r.gameType = GameType(snap.GameType)
	r.tracks = append([]catalog.Track(nil), snap.Tracks...)
	r.roundIndex = snap.RoundIndex
	r.answersKnown = snap.AnswersKnown

	for uid, p := range snap.Players {
		conn := pendingPrefix + uid
		r.members[conn] = &Member{Conn: conn, Name: p.Name, Score: p.Score, UserID: uid}
		r.order = append(r.order, conn)
	}

	if snap.CurrentRound != nil {
		r.current = &Round{
			Track:     snap.CurrentRound.Track,
			Playback:  snap.CurrentRound.Playback,
			StartedAt: snap.CurrentRound.StartedAt,
			Solved:    snap.CurrentRound.Solved,
			Paused:    snap.CurrentRound.Paused,
		}
	}
	return r
}

// ── Internal helpers (call with r.mu held) ────────────────────────────────────

func (r *Room) memberByUser(uid string) *Member {
	for _, m := range r.members {
		if m.UserID == uid {
			return m
		}
	}
	return nil
}

func (r *Room) memberByName(name string) *Member {
	for _, m := range r.members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// rekeyMember moves m to a new connection handle, preserving score and name.
func (r *Room) rekeyMember(m *Member, conn string) {
	old := m.Conn
	delete(r.members, old)
	m.Conn = conn
	r.members[conn] = m
	for i, h := range r.order {
		if h == old {
			r.order[i] = conn
			break
		}
	}
	if vote, voted := r.skipVotes[old]; voted {
		delete(r.skipVotes, old)
		r.skipVotes[conn] = vote
	}
}

func (r *Room) removeMember(conn string) {
	delete(r.members, conn)
	for i, h := range r.order {
		if h == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// uniqueName resolves display-name collisions by suffixing "#N".
func (r *Room) uniqueName(name string) string {
	if name == "" {
		name = "Player"
	}
	if r.memberByName(name) == nil {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", name, n)
		if r.memberByName(candidate) == nil {
			return candidate
		}
	}
}

func (r *Room) joinedEvents(name string) []Event {
	return []Event{r.systemChat(name + " joined the room")}
}

func (r *Room) systemChat(text string) Event {
	return Event{Name: EventChat, Payload: ChatPayload{
		Text:   text,
		System: true,
		At:     r.now(),
	}}
}

// scoreboard returns all member scores, best first.
func (r *Room) scoreboard() []ScoreEntry {
	scores := make([]ScoreEntry, 0, len(r.members))
	for _, conn := range r.order {
		if m, ok := r.members[conn]; ok {
			scores = append(scores, ScoreEntry{Name: m.Name, Score: m.Score})
		}
	}
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Score > scores[j-1].Score; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
	return scores
}

// stateEvent builds the sequence-numbered roomState snapshot event.
func (r *Room) stateEvent() Event {
	r.seq++

	players := make([]PlayerInfo, 0, len(r.order))
	for _, conn := range r.order {
		m, ok := r.members[conn]
		if !ok {
			continue
		}
		players = append(players, PlayerInfo{
			ID:       m.Conn,
			Name:     m.Name,
			Score:    m.Score,
			UserID:   m.UserID,
			PhotoURL: m.PhotoURL,
			IsHost:   m.Conn == r.hostConn,
		})
	}

	votes := make([]string, 0, len(r.skipVotes))
	for conn := range r.skipVotes {
		votes = append(votes, conn)
	}

	payload := RoomStatePayload{
		Code:        r.code,
		Seq:         r.seq,
		HostConn:    r.hostConn,
		Players:     players,
		SkipVotes:   votes,
		HasTracks:   len(r.tracks) > 0,
		GameStarted: r.answersKnown,
		GameType:    r.gameType,
		RoundCount:  r.roundIndex,
	}
	if r.current != nil {
		rs := &RoundState{
			StartedAt: r.current.StartedAt,
			Hint:      r.current.Hint(),
			Playback:  r.current.Playback,
			Solved:    r.current.Solved,
			Paused:    r.current.Paused,
		}
		if b := r.current.Buzzer; b != nil {
			rs.Buzzer = &BuzzerState{
				HolderID:   b.Holder,
				HolderName: b.HolderName,
				Queue:      append([]QueueEntry(nil), b.Queue...),
			}
		}
		payload.CurrentRound = rs
	}

	return Event{Name: EventRoomState, Payload: payload}
}

// trimName normalizes a requested display name to the length limit.
func trimName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLen {
		name = string(runes[:maxNameLen])
	}
	return name
}
