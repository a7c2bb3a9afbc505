package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pshemk/tunehunt/internal/room"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// client is one accepted websocket connection. All writes go through the send
// channel so a single writer goroutine keeps delivery ordered per connection.
type client struct {
	id   string
	conn *websocket.Conn

	send chan outbound
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	room string
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue hands a message to the writer. A full buffer means the consumer
// stopped draining; the connection is closed rather than blocking the room.
func (c *client) enqueue(msg outbound) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		slog.Warn("client send buffer full, dropping connection", "conn", c.id)
		c.close(websocket.StatusPolicyViolation, "send buffer overflow")
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(code, reason)
	})
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			c.close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

func (c *client) setRoom(code string) {
	c.mu.Lock()
	c.room = code
	c.mu.Unlock()
}

func (c *client) roomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Hub tracks live connections and fans engine events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

func (h *Hub) get(id string) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Deliver routes engine events: a targeted event goes to its single handle,
// everything else is broadcast to the members of the room.
func (h *Hub) Deliver(code string, events []room.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ev := range events {
		msg := outbound{Event: ev.Name, Data: ev.Payload}
		if ev.To != "" {
			if c, ok := h.clients[ev.To]; ok {
				c.enqueue(msg)
			}
			continue
		}
		for _, c := range h.clients {
			if c.roomCode() == code {
				c.enqueue(msg)
			}
		}
	}
}
