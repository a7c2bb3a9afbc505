package room

import (
	"fmt"
	"math/rand/v2"

	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/match"
	"github.com/pshemk/tunehunt/internal/playback"
)

// ScoreDelta describes a leaderboard mutation the caller should mirror to
// the store. A delta with an empty UserID stays room-local.
type ScoreDelta struct {
	UserID string
	Name   string
	Delta  int
}

// GuessOutcome is the result of evaluating a text-mode guess.
type GuessOutcome struct {
	// Points awarded: 10 for title and artist, 5 for title only, 0 otherwise.
	Points int

	// WinnerName and WinnerUser identify the credited member when Points > 0.
	WinnerName string
	WinnerUser string

	// Events to broadcast. Empty for a zero-point guess.
	Events []Event
}

// StartGame configures the round pool and begins a game. Host only. The
// track list is shuffled uniformly at random; minTracks guards against
// degenerate pools (1 unless configured higher).
func (r *Room) StartGame(conn string, mode playback.Mode, gameType GameType, tracks []catalog.Track, minTracks int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrBadInput, mode)
	}
	if !gameType.IsValid() {
		return nil, fmt.Errorf("%w: unknown game type %q", ErrBadInput, gameType)
	}
	if minTracks < 1 {
		minTracks = 1
	}
	if len(tracks) < minTracks {
		return nil, fmt.Errorf("%w: need at least %d tracks, got %d", ErrBadInput, minTracks, len(tracks))
	}

	pool := append([]catalog.Track(nil), tracks...)
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	r.mode = mode
	r.gameType = gameType
	r.tracks = pool
	r.roundIndex = 0
	r.current = nil
	r.skipVotes = make(map[string]struct{})
	r.answersKnown = true

	return []Event{
		{Name: EventGameStarted, Payload: GameStartedPayload{Mode: mode, GameType: gameType}},
		r.stateEvent(),
	}, nil
}

// PlanNextRound validates a nextRound request and returns the candidate
// tracks from the current round index onward, together with that index and
// the room mode. Playback resolution happens outside the room lock; the
// caller commits the first resolvable track via [Room.CommitRound], or ends
// the game via [Room.EndGame] when nothing remains.
func (r *Room) PlanNextRound(conn string) (candidates []catalog.Track, startIndex int, mode playback.Mode, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, 0, "", ErrPermission
	}
	if !r.answersKnown {
		return nil, 0, "", fmt.Errorf("%w: game not started", ErrBadInput)
	}

	remaining := append([]catalog.Track(nil), r.tracks[min(r.roundIndex, len(r.tracks)):]...)
	return remaining, r.roundIndex, r.mode, nil
}

// CommitRound installs the resolved track at pool index idx as the current
// round. Tracks before idx that failed to resolve are skipped for good.
func (r *Room) CommitRound(conn string, idx int, track catalog.Track, handle playback.Handle) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if !r.answersKnown || idx < r.roundIndex || idx >= len(r.tracks) {
		return nil, fmt.Errorf("%w: stale round commit", ErrBadInput)
	}

	r.current = &Round{
		StartedAt: r.now(),
		Track:     track,
		Playback:  handle,
	}
	r.roundIndex = idx + 1
	r.skipVotes = make(map[string]struct{})

	return []Event{
		{Name: EventRoundStart, Payload: RoundStartPayload{
			Mode:      r.mode,
			GameType:  r.gameType,
			StartedAt: r.current.StartedAt,
			Hint:      r.current.Hint(),
			Playback:  handle,
		}},
		r.stateEvent(),
	}, nil
}

// EndGame terminates the game and broadcasts the final scoreboard. Called
// when the round pool is exhausted.
func (r *Room) EndGame(conn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}

	r.current = nil
	r.roundIndex = len(r.tracks)

	return []Event{
		{Name: EventGameOver, Payload: GameOverPayload{Scores: r.scoreboard()}},
		r.stateEvent(),
	}, nil
}

// Guess evaluates a free-form text-mode guess against the current round's
// answer. Only the first non-zero guess ends the round; arrival order under
// the room lock breaks ties.
func (r *Room) Guess(conn, text string) (GuessOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gameType != GameText {
		return GuessOutcome{}, ErrWrongMode
	}
	if r.current == nil || r.current.Solved {
		return GuessOutcome{}, ErrNoRound
	}
	m, ok := r.members[conn]
	if !ok {
		return GuessOutcome{}, fmt.Errorf("%w: unknown member", ErrBadInput)
	}

	res := match.Detailed("", text, r.current.Track.Artist, r.current.Track.Title)

	points := 0
	switch {
	case res.TitleCorrect && res.ArtistCorrect:
		points = 10
	case res.TitleCorrect:
		points = 5
	}
	if points == 0 {
		return GuessOutcome{}, nil
	}

	r.current.Solved = true
	m.Score += points

	elapsed := r.now().Sub(r.current.StartedAt)
	events := []Event{
		{Name: EventRoundEnd, Payload: RoundEndPayload{
			Winner:    m.Name,
			Answer:    Answer{Title: r.current.Track.Title, Artist: r.current.Track.Artist},
			ElapsedMs: elapsed.Milliseconds(),
			Scores:    r.scoreboard(),
		}},
		r.stateEvent(),
	}

	return GuessOutcome{
		Points:     points,
		WinnerName: m.Name,
		WinnerUser: m.UserID,
		Events:     events,
	}, nil
}

// VoteSkip records a skip vote from conn. The round ends without a winner
// once a strict majority of current members voted.
func (r *Room) VoteSkip(conn string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.Solved {
		return nil, ErrNoRound
	}
	if _, ok := r.members[conn]; !ok {
		return nil, fmt.Errorf("%w: unknown member", ErrBadInput)
	}

	r.skipVotes[conn] = struct{}{}

	if 2*len(r.skipVotes) <= len(r.members) {
		return []Event{r.stateEvent()}, nil
	}

	r.current.Solved = true
	elapsed := r.now().Sub(r.current.StartedAt)

	return []Event{
		{Name: EventRoundEnd, Payload: RoundEndPayload{
			Answer:    Answer{Title: r.current.Track.Title, Artist: r.current.Track.Artist},
			ElapsedMs: elapsed.Milliseconds(),
			Scores:    r.scoreboard(),
			Skipped:   true,
		}},
		r.stateEvent(),
	}, nil
}

// Pause suspends playback for the current round. Host only.
func (r *Room) Pause(conn string) ([]Event, error) {
	return r.setPaused(conn, true, EventPausePlayback)
}

// Resume continues playback for the current round. Host only.
func (r *Room) Resume(conn string) ([]Event, error) {
	return r.setPaused(conn, false, EventResumePlayback)
}

func (r *Room) setPaused(conn string, paused bool, event string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn != r.hostConn {
		return nil, ErrPermission
	}
	if r.current == nil || r.current.Solved {
		return nil, ErrNoRound
	}

	r.current.Paused = paused
	return []Event{
		{Name: event, Payload: struct{}{}},
		r.stateEvent(),
	}, nil
}
