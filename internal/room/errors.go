package room

import "errors"

// Engine error taxonomy. The gateway maps these onto ack error payloads;
// none of them leaves room state modified.
var (
	// ErrPermission means a non-host attempted a host-only operation.
	ErrPermission = errors.New("room: host permission required")

	// ErrNoRound means the operation requires an active, unsolved round.
	ErrNoRound = errors.New("room: no active round")

	// ErrWrongMode means the operation does not apply to the room's game type.
	ErrWrongMode = errors.New("room: wrong game type")

	// ErrRoomNotFound means no live room or snapshot exists for the code.
	ErrRoomNotFound = errors.New("room: not found")

	// ErrBadInput covers missing or malformed operation arguments.
	ErrBadInput = errors.New("room: bad input")
)
