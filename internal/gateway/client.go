package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/roomcast/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
)

// Client is one WebSocket connection. Frames are written only by the write
// pump; SendEvent and SendResponse enqueue onto a buffered channel and drop
// with a warning when the client cannot keep up.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	send chan interface{}

	mu            sync.Mutex
	authenticated bool
	closed        bool
	rooms         map[string]bool

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.Must(uuid.NewV7()).String(),
		conn:   conn,
		server: server,
		send:   make(chan interface{}, sendBuffer),
		rooms:  make(map[string]bool),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Authenticated reports whether connect succeeded with a valid token.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *Client) setAuthenticated() {
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
}

// JoinRoom records room membership for event filtering.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()
}

// LeaveRoom drops room membership. Returns false if the client was not in
// the room.
func (c *Client) LeaveRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rooms[roomID] {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

// InRoom reports whether the client has joined the room.
func (c *Client) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

// Rooms returns the rooms the client has joined.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// SendEvent enqueues a room-scoped event frame. Frames for rooms the client
// has not joined are filtered out; unscoped frames go to everyone.
func (c *Client) SendEvent(frame protocol.EventFrame) {
	if frame.RoomID != "" && !c.InRoom(frame.RoomID) {
		return
	}
	c.enqueue(frame)
}

// SendResponse enqueues an RPC response.
func (c *Client) SendResponse(resp protocol.Response) {
	c.enqueue(resp)
}

func (c *Client) enqueue(v interface{}) {
	// A broadcast may race with Close; the closed flag and the channel
	// close are flipped under the same lock so we never send on a closed
	// channel.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- v:
	default:
		slog.Warn("client.send_dropped", "client", c.id)
	}
}

// Close tears down the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		c.conn.Close()
	})
}

// Run drives the connection: a write pump goroutine plus the read loop on
// the caller's goroutine. Returns when the connection closes or ctx ends.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("client.read_failed", "client", c.id, "error", err)
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.SendResponse(protocol.Response{OK: false, Error: "malformed request frame"})
			continue
		}

		resp := c.server.router.Handle(ctx, c, req)
		c.SendResponse(resp)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(v); err != nil {
				slog.Warn("client.write_failed", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
