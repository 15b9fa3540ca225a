// Package realtime fans room-scoped state changes out to websocket
// clients across all server instances. Each instance holds its local
// connections; every broadcast travels over the shared pub/sub
// backplane and is delivered locally by each instance's subscriber, so
// a change produced anywhere reaches clients connected everywhere.
// Delivery is at-most-once: clients tolerate missed pushes and
// reconcile through the status endpoints.
package realtime

import (
	"encoding/json"
	"strconv"
)

// Server-to-client event names.
const (
	EventQueueUpdated      = "queue-updated"
	EventQueueEntryAllowed = "queue-entry-allowed"
	EventSeatLocked        = "seat-locked"
	EventSeatReleased      = "seat-released"
	EventTicketUpdated     = "ticket-updated"
	EventSessionRestored   = "session-restored"
	EventRoomInfo          = "room-info"
	EventError             = "error"
)

// Client-to-server message types.
const (
	MsgJoinEvent         = "join-event"
	MsgJoinQueue         = "join-queue"
	MsgJoinSeatSelection = "join-seat-selection"
	MsgHeartbeat         = "heartbeat"
	MsgSelectSeats       = "select-seats"
	MsgLeaveRoom         = "leave-room"
)

// EventRoom names the room carrying event-level changes (sale status).
func EventRoom(eventID uint64) string { return "event:" + strconv.FormatUint(eventID, 10) }

// QueueRoom names the room carrying queue size and admission changes.
func QueueRoom(eventID uint64) string { return "queue:" + strconv.FormatUint(eventID, 10) }

// SeatsRoom names the room carrying seat and ticket inventory changes.
func SeatsRoom(eventID uint64) string { return "seats:" + strconv.FormatUint(eventID, 10) }

// ServerMessage is the frame written to websocket clients.
type ServerMessage struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ClientMessage is the frame read from websocket clients.
type ClientMessage struct {
	Type    string   `json:"type"`
	EventID uint64   `json:"event_id,omitempty"`
	Room    string   `json:"room,omitempty"`
	SeatIDs []uint64 `json:"seat_ids,omitempty"`
}

// envelope is the backplane wire format.
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
