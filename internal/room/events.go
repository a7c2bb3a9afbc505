package room

import (
	"time"

	"github.com/pshemk/tunehunt/internal/playback"
)

// Event names broadcast to clients. The gateway serializes the payload under
// the event name verbatim.
const (
	EventRoomState      = "roomState"
	EventGameStarted    = "gameStarted"
	EventRoundStart     = "roundStart"
	EventRoundEnd       = "roundEnd"
	EventGameOver       = "gameOver"
	EventChat           = "chat"
	EventBuzzed         = "buzzed"
	EventQueueUpdated   = "queueUpdated"
	EventBuzzCleared    = "buzzCleared"
	EventPausePlayback  = "pausePlayback"
	EventResumePlayback = "resumePlayback"
	EventKicked         = "kicked"
)

// Event is one engine-produced notification. To selects a single connection
// handle for private delivery; empty To means broadcast to the whole room.
type Event struct {
	Name    string
	Payload any
	To      string
}

// PlayerInfo is the public view of one member.
type PlayerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	UserID   string `json:"userId,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	IsHost   bool   `json:"isHost"`
}

// Hint is the only information about the answer leaked before a round ends.
type Hint struct {
	TitleLen  int `json:"titleLen"`
	ArtistLen int `json:"artistLen"`
}

// Answer is the revealed solution in a roundEnd payload.
type Answer struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// ScoreEntry is one row of a scoreboard payload.
type ScoreEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// QueueEntry is one waiting buzzer in a queueUpdated payload.
type QueueEntry struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// BuzzerState is the public buzzer view inside a room snapshot.
type BuzzerState struct {
	HolderID   string       `json:"holderId"`
	HolderName string       `json:"holderName"`
	Queue      []QueueEntry `json:"queue"`
}

// RoundState is the public view of the current round inside a roomState
// payload. The answer is deliberately absent.
type RoundState struct {
	StartedAt time.Time       `json:"startedAt"`
	Hint      Hint            `json:"hint"`
	Playback  playback.Handle `json:"playback"`
	Solved    bool            `json:"solved"`
	Paused    bool            `json:"paused"`
	Buzzer    *BuzzerState    `json:"buzzer,omitempty"`
}

// RoomStatePayload is the full room snapshot broadcast after every mutation.
// Seq increases monotonically per room so clients can discard stale snapshots.
type RoomStatePayload struct {
	Code         string       `json:"code"`
	Seq          uint64       `json:"seq"`
	HostConn     string       `json:"hostConn"`
	Players      []PlayerInfo `json:"players"`
	SkipVotes    []string     `json:"skipVotes"`
	HasTracks    bool         `json:"hasTracks"`
	GameStarted  bool         `json:"gameStarted"`
	GameType     GameType     `json:"gameType"`
	RoundCount   int          `json:"roundCount"`
	CurrentRound *RoundState  `json:"currentRound,omitempty"`
}

// GameStartedPayload announces a new game.
type GameStartedPayload struct {
	Mode     playback.Mode `json:"mode"`
	GameType GameType      `json:"gameType"`
}

// RoundStartPayload announces a new round with its playback handle.
type RoundStartPayload struct {
	Mode      playback.Mode   `json:"mode"`
	GameType  GameType        `json:"gameType"`
	StartedAt time.Time       `json:"startedAt"`
	Hint      Hint            `json:"hint"`
	Playback  playback.Handle `json:"playback"`
}

// RoundEndPayload reveals the answer and the outcome of a round.
type RoundEndPayload struct {
	Winner    string       `json:"winner,omitempty"`
	Answer    Answer       `json:"answer"`
	ElapsedMs int64        `json:"elapsedMs"`
	Scores    []ScoreEntry `json:"scores"`
	Skipped   bool         `json:"skipped,omitempty"`
}

// GameOverPayload carries the final scoreboard.
type GameOverPayload struct {
	Scores []ScoreEntry `json:"scores"`
}

// ChatPayload is one chat line. System lines have no name.
type ChatPayload struct {
	Name   string    `json:"name,omitempty"`
	Text   string    `json:"text"`
	System bool      `json:"system,omitempty"`
	At     time.Time `json:"at"`
}

// BuzzedPayload announces the current buzzer holder.
type BuzzedPayload struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// QueueUpdatedPayload carries the waiting buzzer queue.
type QueueUpdatedPayload struct {
	Queue []QueueEntry `json:"queue"`
}

// KickedPayload is delivered privately to a removed member.
type KickedPayload struct {
	Message string `json:"message"`
}
