package gateway

import (
	"encoding/json"
	"errors"

	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/playback"
	"github.com/pshemk/tunehunt/internal/room"
)

// envelope is one inbound client message. ID, when non-zero, requests an ack
// carrying the same id.
type envelope struct {
	Event string          `json:"event"`
	ID    int64           `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is one server-to-client message.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ackPayload answers an inbound request. Error is one of the taxonomy tags
// below, or a free-form input complaint.
type ackPayload struct {
	ID    int64  `json:"id"`
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Inbound event payloads.

type joinRoomReq struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Token string `json:"token,omitempty"`
}

type setNameReq struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type startGameReq struct {
	Code     string          `json:"code"`
	Mode     playback.Mode   `json:"mode"`
	GameType room.GameType   `json:"gameType"`
	Tracks   []catalog.Track `json:"tracks"`
}

type codeReq struct {
	Code string `json:"code"`
}

type guessReq struct {
	Code      string `json:"code"`
	GuessText string `json:"guessText"`
}

type chatReq struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"` // ignored; the member's name is authoritative
	Text string `json:"text"`
}

type pointsReq struct {
	Code       string `json:"code"`
	PlayerName string `json:"playerName"`
	Points     int    `json:"points,omitempty"`
}

type verifyReq struct {
	Code   string `json:"code"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

type kickReq struct {
	Code             string `json:"code"`
	TargetConnHandle string `json:"targetConnHandle"`
}

// Ack response payloads.

type createRoomResp struct {
	Code string `json:"code"`
	Conn string `json:"conn"`
}

type joinRoomResp struct {
	Code string `json:"code"`
	Conn string `json:"conn"`
}

type guessResp struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
}

type verifyResp struct {
	ArtistCorrect bool `json:"artistCorrect"`
	TitleCorrect  bool `json:"titleCorrect"`
}

// errorTag maps engine errors onto the protocol's error taxonomy.
func errorTag(err error) string {
	switch {
	case errors.Is(err, room.ErrPermission):
		return "permission"
	case errors.Is(err, room.ErrNoRound):
		return "no-round"
	case errors.Is(err, room.ErrWrongMode):
		return "wrong-mode"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, room.ErrBadInput):
		return err.Error()
	default:
		return "internal"
	}
}
