package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/room"
)

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.origins,
	})
	if err != nil {
		slog.Debug("websocket accept rejected", "err", err)
		return
	}

	c := newClient(uuid.NewString(), conn)
	g.hub.add(c)
	slog.Info("client connected", "conn", c.id)

	ctx := r.Context()
	go c.writeLoop(ctx)
	g.readLoop(ctx, c)

	g.hub.remove(c.id)
	// The request context is gone once the read loop exits; room cleanup
	// still has to run.
	g.disconnect(context.Background(), c)
	c.close(websocket.StatusNormalClosure, "")
	slog.Info("client disconnected", "conn", c.id)
}

func (g *Gateway) readLoop(ctx context.Context, c *client) {
	for {
		var env envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			return
		}
		g.dispatch(ctx, c, env)
	}
}

// disconnect detaches the client from its room, if any, and fans the
// resulting membership events out.
func (g *Gateway) disconnect(ctx context.Context, c *client) {
	code := c.roomCode()
	if code == "" {
		return
	}
	mu := g.roomLock(code)
	mu.Lock()
	defer mu.Unlock()
	events, err := g.svc.Disconnect(ctx, c.id, code)
	if err != nil {
		slog.Warn("disconnect cleanup failed", "conn", c.id, "room", code, "err", err)
		return
	}
	g.hub.Deliver(code, events)
}

// dispatch routes one inbound envelope to the engine, delivers the resulting
// events and answers with an ack when the client asked for one.
func (g *Gateway) dispatch(ctx context.Context, c *client, env envelope) {
	observe.DefaultMetrics().RecordEvent(ctx, env.Event)

	switch env.Event {
	case "createRoom":
		code, err := g.svc.CreateRoom(ctx, c.id)
		g.ack(c, env.ID, createRoomResp{Code: code, Conn: c.id}, err)

	case "joinRoom":
		var req joinRoomReq
		if !g.decode(c, env, &req) {
			return
		}
		mu := g.roomLock(req.Code)
		mu.Lock()
		events, err := g.svc.JoinRoom(ctx, c.id, req.Code, req.Name, req.Token)
		if err == nil {
			c.setRoom(req.Code)
			g.hub.Deliver(req.Code, events)
		}
		mu.Unlock()
		g.ack(c, env.ID, joinRoomResp{Code: req.Code, Conn: c.id}, err)

	case "setName":
		var req setNameReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.SetName(ctx, c.id, req.Code, req.Name)
		})

	case "startGame":
		var req startGameReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.StartGame(ctx, c.id, req.Code, req.Mode, req.GameType, req.Tracks)
		})

	case "nextRound":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.NextRound(ctx, c.id, req.Code)
		})

	case "guess":
		var req guessReq
		if !g.decode(c, env, &req) {
			return
		}
		mu := g.roomLock(req.Code)
		mu.Lock()
		outcome, err := g.svc.Guess(ctx, c.id, req.Code, req.GuessText)
		if err == nil {
			g.hub.Deliver(req.Code, outcome.Events)
		}
		mu.Unlock()
		g.ack(c, env.ID, guessResp{Correct: outcome.Points > 0, Points: outcome.Points}, err)

	case "chat":
		var req chatReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.Chat(ctx, c.id, req.Code, req.Text)
		})

	case "voteSkip":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.VoteSkip(ctx, c.id, req.Code)
		})

	case "buzz":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.Buzz(ctx, c.id, req.Code)
		})

	case "passBuzzer":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.PassBuzzer(ctx, c.id, req.Code)
		})

	case "awardPoints":
		var req pointsReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.AwardPoints(ctx, c.id, req.Code, req.PlayerName, req.Points)
		})

	case "deductPoints":
		var req pointsReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.DeductPoints(ctx, c.id, req.Code, req.PlayerName, req.Points)
		})

	case "endRoundManual":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.EndRoundManual(ctx, c.id, req.Code)
		})

	case "hostVerifyGuess":
		var req verifyReq
		if !g.decode(c, env, &req) {
			return
		}
		res, err := g.svc.HostVerifyGuess(ctx, c.id, req.Code, req.Artist, req.Title)
		g.ack(c, env.ID, verifyResp{
			ArtistCorrect: res.ArtistCorrect,
			TitleCorrect:  res.TitleCorrect,
		}, err)

	case "pauseRound":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.PauseRound(ctx, c.id, req.Code)
		})

	case "resumeRound":
		var req codeReq
		if !g.decode(c, env, &req) {
			return
		}
		g.roomOp(ctx, c, env.ID, req.Code, func() ([]room.Event, error) {
			return g.svc.ResumeRound(ctx, c.id, req.Code)
		})

	case "kickPlayer":
		var req kickReq
		if !g.decode(c, env, &req) {
			return
		}
		mu := g.roomLock(req.Code)
		mu.Lock()
		events, err := g.svc.KickPlayer(ctx, c.id, req.Code, req.TargetConnHandle)
		if err == nil {
			g.hub.Deliver(req.Code, events)
			if target := g.hub.get(req.TargetConnHandle); target != nil {
				target.setRoom("")
			}
		}
		mu.Unlock()
		g.ack(c, env.ID, nil, err)

	default:
		slog.Debug("unknown event", "conn", c.id, "event", env.Event)
		g.ackError(c, env.ID, "unknown-event")
	}
}

// roomOp runs a plain event-producing operation, delivers its events and
// acks. The room lock is held from the engine call through delivery so the
// wire order matches commit order across connections.
func (g *Gateway) roomOp(ctx context.Context, c *client, ackID int64, code string, op func() ([]room.Event, error)) {
	mu := g.roomLock(code)
	mu.Lock()
	events, err := op()
	if err == nil {
		g.hub.Deliver(code, events)
	}
	mu.Unlock()
	g.ack(c, ackID, nil, err)
}

// decode unmarshals the envelope payload, acking a bad-request on failure.
func (g *Gateway) decode(c *client, env envelope, into any) bool {
	if err := json.Unmarshal(env.Data, into); err != nil {
		slog.Debug("malformed payload", "conn", c.id, "event", env.Event, "err", err)
		g.ackError(c, env.ID, "bad-request")
		return false
	}
	return true
}

func (g *Gateway) ack(c *client, id int64, data any, err error) {
	if id == 0 {
		return
	}
	if err != nil {
		g.ackError(c, id, errorTag(err))
		return
	}
	c.enqueue(outbound{Event: "ack", Data: ackPayload{ID: id, OK: true, Data: data}})
}

func (g *Gateway) ackError(c *client, id int64, tag string) {
	if id == 0 {
		return
	}
	c.enqueue(outbound{Event: "ack", Data: ackPayload{ID: id, Error: tag}})
}
