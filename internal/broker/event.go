// Package broker publishes reservation lifecycle events to RabbitMQ
// and hosts the background consumer that turns them into an audit log.
// Downstream consumers (notifications, analytics) get enough payload
// to act without querying the primary database.
package broker

// Queue names. Durable, declared idempotently by both ends.
const (
	QueueReservationConfirmed = "reservation.confirmed"
	QueueReservationExpired   = "reservation.expired"
)

// ReservationEvent is published when a reservation reaches a terminal
// state worth telling the rest of the platform about.
type ReservationEvent struct {
	ReservationID    uint64   `json:"reservation_id"`
	UserID           string   `json:"user_id"`
	EventID          uint64   `json:"event_id"`
	Status           string   `json:"status"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	SeatIDs          []uint64 `json:"seat_ids,omitempty"`
	TicketTypeIDs    []uint64 `json:"ticket_type_ids,omitempty"`
	OccurredAt       string   `json:"occurred_at"`
}
