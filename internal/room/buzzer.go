package room

import (
	"fmt"

	"github.com/pshemk/tunehunt/internal/match"
)

// defaultPoints is the award/deduct amount when the host sends none.
const defaultPoints = 10

// Buzz registers a buzz from conn. The first buzz of a round pauses playback
// and makes the caller the holder; later buzzes queue up in arrival order.
// A connection already holding or queued is rejected as a no-op.
func (r *Room) Buzz(conn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gameType != GameBuzzer {
		return nil, ErrWrongMode
	}
	if r.current == nil || r.current.Solved {
		return nil, ErrNoRound
	}
	m, ok := r.members[conn]
	if !ok {
		return nil, fmt.Errorf("%w: unknown member", ErrBadInput)
	}

	now := r.now()
	b := r.current.Buzzer

	if b == nil {
		r.current.Buzzer = &Buzzer{
			FirstBuzzAt: now,
			Holder:      conn,
			HolderName:  m.Name,
		}
		r.current.Paused = true
		return []Event{
			{Name: EventPausePlayback, Payload: struct{}{}},
			{Name: EventBuzzed, Payload: BuzzedPayload{ID: conn, Name: m.Name, At: now}},
			{Name: EventQueueUpdated, Payload: QueueUpdatedPayload{Queue: []QueueEntry{}}},
			r.stateEvent(),
		}, nil
	}

	if b.Holder == conn {
		return nil, nil
	}
	for _, q := range b.Queue {
		if q.ID == conn {
			return nil, nil
		}
	}

	b.Queue = append(b.Queue, QueueEntry{ID: conn, Name: m.Name, At: now})
	return []Event{
		{Name: EventQueueUpdated, Payload: QueueUpdatedPayload{Queue: append([]QueueEntry(nil), b.Queue...)}},
		r.stateEvent(),
	}, nil
}

// PassBuzzer hands the buzzer to the next queued member, or clears it and
// resumes playback when nobody is waiting. Host only. Playback stays paused
// while a holder exists, since the new holder owes a spoken answer.
func (r *Room) PassBuzzer(conn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if r.current == nil || r.current.Solved {
		return nil, ErrNoRound
	}
	b := r.current.Buzzer
	if b == nil {
		return nil, fmt.Errorf("%w: nobody buzzed", ErrBadInput)
	}

	if len(b.Queue) == 0 {
		r.current.Buzzer = nil
		r.current.Paused = false
		return []Event{
			{Name: EventBuzzCleared, Payload: struct{}{}},
			{Name: EventResumePlayback, Payload: struct{}{}},
			r.stateEvent(),
		}, nil
	}

	head := b.Queue[0]
	b.Queue = b.Queue[1:]
	b.Holder = head.ID
	b.HolderName = head.Name
	r.current.Paused = true

	return []Event{
		{Name: EventBuzzed, Payload: BuzzedPayload{ID: head.ID, Name: head.Name, At: head.At}},
		{Name: EventQueueUpdated, Payload: QueueUpdatedPayload{Queue: append([]QueueEntry(nil), b.Queue...)}},
		{Name: EventPausePlayback, Payload: struct{}{}},
		r.stateEvent(),
	}, nil
}

// AwardPoints adds points to the named member's score. Host only. points <= 0
// means the default of 10.
func (r *Room) AwardPoints(conn, playerName string, points int) (ScoreDelta, []Event, error) {
	return r.adjustScore(conn, playerName, points, 1)
}

// DeductPoints removes points from the named member's score, clamping at
// zero. Host only. points <= 0 means the default of 10.
func (r *Room) DeductPoints(conn, playerName string, points int) (ScoreDelta, []Event, error) {
	return r.adjustScore(conn, playerName, points, -1)
}

func (r *Room) adjustScore(conn, playerName string, points, sign int) (ScoreDelta, []Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return ScoreDelta{}, nil, ErrPermission
	}
	m := r.memberByName(playerName)
	if m == nil {
		return ScoreDelta{}, nil, fmt.Errorf("%w: unknown player %q", ErrBadInput, playerName)
	}
	if points <= 0 {
		points = defaultPoints
	}

	delta := sign * points
	if delta < 0 && m.Score+delta < 0 {
		delta = -m.Score
	}
	m.Score += delta

	return ScoreDelta{UserID: m.UserID, Name: m.Name, Delta: delta},
		[]Event{r.stateEvent()}, nil
}

// EndRoundManual closes the current round by host decree. The winner is the
// current buzzer holder, if any; elapsed time is measured to the first buzz
// when one happened, otherwise to now.
func (r *Room) EndRoundManual(conn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if r.current == nil || r.current.Solved {
		return nil, ErrNoRound
	}

	r.current.Solved = true

	winner := ""
	end := r.now()
	if b := r.current.Buzzer; b != nil {
		winner = b.HolderName
		end = b.FirstBuzzAt
	}

	return []Event{
		{Name: EventRoundEnd, Payload: RoundEndPayload{
			Winner:    winner,
			Answer:    Answer{Title: r.current.Track.Title, Artist: r.current.Track.Artist},
			ElapsedMs: end.Sub(r.current.StartedAt).Milliseconds(),
			Scores:    r.scoreboard(),
		}},
		r.stateEvent(),
	}, nil
}

// HostVerifyGuess checks a spoken answer against the current round. Host
// only, advisory, no state change.
func (r *Room) HostVerifyGuess(conn, artist, title string) (match.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return match.Result{}, ErrPermission
	}
	if r.current == nil {
		return match.Result{}, ErrNoRound
	}

	return match.Detailed(artist, title, r.current.Track.Artist, r.current.Track.Title), nil
}

// dropFromBuzzer removes a departing connection from the buzzer structure.
// Promotes the queue head when the holder left; clears the buzzer and
// resumes playback when nobody remains. Call with r.mu held.
func (r *Room) dropFromBuzzer(conn string) []Event {
	if r.current == nil || r.current.Buzzer == nil {
		return nil
	}
	b := r.current.Buzzer

	if b.Holder == conn {
		if len(b.Queue) == 0 {
			r.current.Buzzer = nil
			r.current.Paused = false
			return []Event{
				{Name: EventBuzzCleared, Payload: struct{}{}},
				{Name: EventResumePlayback, Payload: struct{}{}},
			}
		}
		head := b.Queue[0]
		b.Queue = b.Queue[1:]
		b.Holder = head.ID
		b.HolderName = head.Name
		return []Event{
			{Name: EventBuzzed, Payload: BuzzedPayload{ID: head.ID, Name: head.Name, At: head.At}},
			{Name: EventQueueUpdated, Payload: QueueUpdatedPayload{Queue: append([]QueueEntry(nil), b.Queue...)}},
		}
	}

	for i, q := range b.Queue {
		if q.ID == conn {
			b.Queue = append(b.Queue[:i], b.Queue[i+1:]...)
			return []Event{
				{Name: EventQueueUpdated, Payload: QueueUpdatedPayload{Queue: append([]QueueEntry(nil), b.Queue...)}},
			}
		}
	}
	return nil
}
