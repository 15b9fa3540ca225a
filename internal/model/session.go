package model

import "time"

// ConnectionSession records what a user's realtime connection was
// doing, keyed by user id rather than by transient connection id so a
// network blip never costs a queue position. It survives socket
// disconnects for a multi-hour TTL; on reconnect the server replays the
// recorded room joins and emits a session-restored event.
type ConnectionSession struct {
	UserID        string    `json:"user_id"`
	Rooms         []string  `json:"rooms"`
	SelectedSeats []uint64  `json:"selected_seats,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
