package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ticketgate/onsale/internal/store"
)

// backplaneChannel carries every room broadcast between instances.
const backplaneChannel = "fanout"

// Hub owns this instance's websocket clients and their room
// memberships. Broadcasts always go through the backplane, never
// directly to local clients, so local and remote producers follow one
// code path and every instance (including the publisher) delivers from
// its own subscription.
type Hub struct {
	backplane store.Backplane
	sessions  *SessionStore

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub builds a hub. Run must be started before broadcasts reach
// local clients.
func NewHub(backplane store.Backplane, sessions *SessionStore) *Hub {
	if backplane == nil || sessions == nil {
		panic("nil dependency passed to realtime.NewHub")
	}
	return &Hub{
		backplane: backplane,
		sessions:  sessions,
		rooms:     make(map[string]map[*Client]struct{}),
	}
}

// Sessions exposes the session store for the websocket handler.
func (h *Hub) Sessions() *SessionStore { return h.sessions }

// Run subscribes to the backplane and delivers incoming broadcasts to
// local room members until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.backplane.Subscribe(ctx, backplaneChannel)
	if err != nil {
		return fmt.Errorf("subscribe backplane: %w", err)
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-sub.Messages():
			if !ok {
				return store.ErrClosed
			}
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				log.Printf("realtime: dropping malformed backplane message: %v", err)
				continue
			}
			h.deliver(env)
		}
	}
}

// Broadcast publishes a room-scoped event to all instances.
func (h *Hub) Broadcast(ctx context.Context, room, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	payload, err := json.Marshal(envelope{Room: room, Event: event, Data: raw})
	if err != nil {
		return err
	}
	return h.backplane.Publish(ctx, backplaneChannel, payload)
}

func (h *Hub) deliver(env envelope) {
	msg := ServerMessage{Event: env.Event, Room: env.Room, Data: json.RawMessage(env.Data)}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[env.Room] {
		client.enqueue(raw)
	}
}

// Join adds the client to a room and records the membership in its
// session so a reconnect can restore it.
func (h *Hub) Join(ctx context.Context, c *Client, room string) error {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()

	c.addRoom(room)
	return h.sessions.AddRoom(ctx, c.UserID(), room)
}

// Leave removes the client from a room and from its session record.
func (h *Hub) Leave(ctx context.Context, c *Client, room string) error {
	h.removeLocal(c, room)
	c.removeRoom(room)
	return h.sessions.RemoveRoom(ctx, c.UserID(), room)
}

// Detach removes a disconnecting client from all local rooms. The
// session record is intentionally left behind: it is what lets the
// next connection restore its memberships.
func (h *Hub) Detach(c *Client) {
	for _, room := range c.roomList() {
		h.removeLocal(c, room)
	}
}

func (h *Hub) removeLocal(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize reports the number of local members of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
