package room

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/match"
	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/playback"
	"github.com/pshemk/tunehunt/internal/store"
)

// Service is the operation surface the gateway drives. It owns the sequencing
// around each engine mutation: token verification and playback resolution
// happen outside the room lock, the mutation commits under it, and the
// snapshot write-through follows in commit order.
type Service struct {
	reg      *Registry
	store    store.Store
	resolver *playback.Resolver
	verifier auth.Verifier

	// minTracks is hot-reloadable through [Service.SetMinTracks].
	minTracks atomic.Int64
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store    store.Store
	Resolver *playback.Resolver

	// Verifier may be nil; all joins are then unauthenticated.
	Verifier auth.Verifier

	// MinTracks is the smallest accepted round pool. Default 1.
	MinTracks int
}

// NewService creates a Service and its registry.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		reg:      NewRegistry(cfg.Store),
		store:    cfg.Store,
		resolver: cfg.Resolver,
		verifier: cfg.Verifier,
	}
	s.SetMinTracks(cfg.MinTracks)
	return s
}

// SetMinTracks updates the smallest accepted round pool. Values below 1 are
// clamped to 1. Safe to call while the service is running.
func (s *Service) SetMinTracks(n int) {
	if n < 1 {
		n = 1
	}
	s.minTracks.Store(int64(n))
}

// Registry exposes the underlying registry for health reporting.
func (s *Service) Registry() *Registry { return s.reg }

// CreateRoom allocates a new room hosted by conn and returns its code. The
// creator still joins through [Service.JoinRoom] like everyone else.
func (s *Service) CreateRoom(ctx context.Context, conn string) (string, error) {
	r, err := s.reg.Create(ctx, conn)
	if err != nil {
		return "", err
	}
	slog.Info("room created", "room", r.Code(), "host", conn)
	return r.Code(), nil
}

// JoinRoom admits conn to the room behind code. A failing token is
// downgraded to an unauthenticated join, never an error.
func (s *Service) JoinRoom(ctx context.Context, conn, code, name, token string) ([]Event, error) {
	var identity auth.Identity
	if token != "" && s.verifier != nil {
		id, err := s.verifier.Verify(ctx, token)
		if err != nil {
			slog.Debug("token verification failed, joining unauthenticated",
				"room", code, "err", err)
		} else {
			identity = id
		}
	}

	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	events, created := r.Join(conn, name, identity)
	if created {
		observe.DefaultMetrics().ActiveMembers.Add(ctx, 1)
	}
	s.reg.Save(ctx, r)
	return events, nil
}

// SetName renames the member behind conn.
func (s *Service) SetName(ctx context.Context, conn, code, name string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.SetName(conn, name)
	})
}

// Disconnect removes conn from the room, dropping the room from the
// registry when it empties out.
func (s *Service) Disconnect(ctx context.Context, conn, code string) ([]Event, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !r.HasMember(conn) {
		return nil, nil
	}

	events, empty := r.Disconnect(conn)
	observe.DefaultMetrics().ActiveMembers.Add(ctx, -1)
	if empty {
		s.reg.Save(ctx, r)
		s.reg.Remove(ctx, code)
		return events, nil
	}
	s.reg.Save(ctx, r)
	return events, nil
}

// KickPlayer forces targetConn out of the room. Host only.
func (s *Service) KickPlayer(ctx context.Context, conn, code, targetConn string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.Kick(conn, targetConn)
	})
}

// StartGame begins a game with the given pool. Host only.
func (s *Service) StartGame(ctx context.Context, conn, code string, mode playback.Mode, gameType GameType, tracks []catalog.Track) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.StartGame(conn, mode, gameType, tracks, int(s.minTracks.Load()))
	})
}

// NextRound advances to the next resolvable track, skipping those without a
// playable source, and ends the game when the pool is exhausted. Playback
// resolution runs outside the room lock.
func (s *Service) NextRound(ctx context.Context, conn, code string) ([]Event, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	candidates, startIdx, mode, err := r.PlanNextRound(conn)
	if err != nil {
		return nil, err
	}

	for i, track := range candidates {
		handle, ok := s.resolver.Resolve(ctx, track, mode)
		if !ok {
			slog.Info("track skipped, nothing playable",
				"room", code, "track", track.Title)
			continue
		}

		events, err := r.CommitRound(conn, startIdx+i, track, handle)
		if err != nil {
			return nil, err
		}
		observe.DefaultMetrics().RecordRoundStart(ctx, string(mode), string(r.GameType()))
		s.reg.Save(ctx, r)
		return events, nil
	}

	events, err := r.EndGame(conn)
	if err != nil {
		return nil, err
	}
	s.reg.Save(ctx, r)
	return events, nil
}

// Guess evaluates a text-mode guess, crediting the winner on the leaderboard
// when they are authenticated.
func (s *Service) Guess(ctx context.Context, conn, code, text string) (GuessOutcome, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return GuessOutcome{}, err
	}

	outcome, err := r.Guess(conn, text)
	if err != nil {
		return GuessOutcome{}, err
	}

	result := "miss"
	switch outcome.Points {
	case 10:
		result = "full"
	case 5:
		result = "title"
	}
	observe.DefaultMetrics().RecordGuess(ctx, result)

	if outcome.Points == 0 {
		return outcome, nil
	}

	s.applyDelta(ctx, ScoreDelta{
		UserID: outcome.WinnerUser,
		Name:   outcome.WinnerName,
		Delta:  outcome.Points,
	})
	s.reg.Save(ctx, r)
	return outcome, nil
}

// Chat relays a chat line to the room.
func (s *Service) Chat(ctx context.Context, conn, code, text string) ([]Event, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return r.Chat(conn, text)
}

// VoteSkip records a skip vote.
func (s *Service) VoteSkip(ctx context.Context, conn, code string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.VoteSkip(conn)
	})
}

// Buzz registers a buzzer press.
func (s *Service) Buzz(ctx context.Context, conn, code string) ([]Event, error) {
	events, err := s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.Buzz(conn)
	})
	if err == nil && len(events) > 0 {
		observe.DefaultMetrics().Buzzes.Add(ctx, 1)
	}
	return events, err
}

// PassBuzzer rotates or clears the buzzer. Host only.
func (s *Service) PassBuzzer(ctx context.Context, conn, code string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.PassBuzzer(conn)
	})
}

// AwardPoints credits a member by name. Host only.
func (s *Service) AwardPoints(ctx context.Context, conn, code, playerName string, points int) ([]Event, error) {
	return s.adjust(ctx, conn, code, playerName, points, (*Room).AwardPoints)
}

// DeductPoints debits a member by name, clamping at zero. Host only.
func (s *Service) DeductPoints(ctx context.Context, conn, code, playerName string, points int) ([]Event, error) {
	return s.adjust(ctx, conn, code, playerName, points, (*Room).DeductPoints)
}

// EndRoundManual closes the round by host decree.
func (s *Service) EndRoundManual(ctx context.Context, conn, code string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.EndRoundManual(conn)
	})
}

// HostVerifyGuess checks a spoken answer without changing state. Host only.
func (s *Service) HostVerifyGuess(ctx context.Context, conn, code, artist, title string) (match.Result, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return match.Result{}, err
	}
	return r.HostVerifyGuess(conn, artist, title)
}

// PauseRound suspends playback. Host only.
func (s *Service) PauseRound(ctx context.Context, conn, code string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.Pause(conn)
	})
}

// ResumeRound continues playback. Host only.
func (s *Service) ResumeRound(ctx context.Context, conn, code string) ([]Event, error) {
	return s.mutate(ctx, code, func(r *Room) ([]Event, error) {
		return r.Resume(conn)
	})
}

// mutate runs op against the room behind code and writes the snapshot
// through on success.
func (s *Service) mutate(ctx context.Context, code string, op func(*Room) ([]Event, error)) ([]Event, error) {
	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	events, err := op(r)
	if err != nil {
		return nil, err
	}
	s.reg.Save(ctx, r)
	return events, nil
}

func (s *Service) adjust(ctx context.Context, conn, code, playerName string, points int,
	op func(*Room, string, string, int) (ScoreDelta, []Event, error)) ([]Event, error) {

	r, err := s.reg.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	delta, events, err := op(r, conn, playerName, points)
	if err != nil {
		return nil, err
	}
	s.applyDelta(ctx, delta)
	s.reg.Save(ctx, r)
	return events, nil
}

// applyDelta mirrors a score change to the global leaderboard. Failures are
// logged, never surfaced.
func (s *Service) applyDelta(ctx context.Context, d ScoreDelta) {
	if d.UserID == "" || d.Delta == 0 {
		return
	}
	if err := s.store.IncrementLeaderboard(ctx, d.UserID, d.Name, d.Delta); err != nil {
		observe.DefaultMetrics().RecordStoreError(ctx, "increment_leaderboard")
		slog.Error("leaderboard update failed", "user", d.UserID, "err", err)
	}
}
