package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ticketgate/onsale/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// MessageHandler reacts to a decoded client frame. It runs on the
// client's read goroutine, so implementations must not block for long.
type MessageHandler func(ctx context.Context, c *Client, msg ClientMessage)

// Client is one authenticated websocket connection. The user identity
// is fixed at handshake; rooms are tracked both here (for local
// delivery and detach) and in the session store (for reconnects).
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte

	mu    sync.Mutex
	rooms map[string]struct{}
}

// NewClient wraps an upgraded connection for the given user.
func NewClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
}

// UserID returns the JWT subject bound at handshake.
func (c *Client) UserID() string { return c.userID }

// Run services the connection until it drops or ctx ends, dispatching
// inbound frames to handle. It blocks; the caller owns the goroutine.
func (c *Client) Run(ctx context.Context, handle MessageHandler) {
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx, handle)
}

// Send queues a frame for this client only (direct message, not a room
// broadcast). Frames to slow clients are dropped rather than blocking
// the hub; the client reconciles via the status endpoints.
func (c *Client) Send(event string, data any) {
	raw, err := json.Marshal(ServerMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("realtime: encode %s for %s: %v", event, c.userID, err)
		return
	}
	c.enqueue(raw)
}

func (c *Client) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Client) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *Client) readPump(ctx context.Context, handle MessageHandler) {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: connection for %s closed unexpectedly: %v", c.userID, err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send(EventError, map[string]string{"error": "malformed message"})
			continue
		}
		if handle != nil {
			handle(ctx, c, msg)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
