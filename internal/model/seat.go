package model

import "time"

// Seat statuses. A seat moves FREE -> HELD when a pending reservation
// references it, HELD -> RESERVED when the reservation is confirmed,
// and back to FREE when the hold is cancelled or reaped.
const (
	SeatStatusFree     = "FREE"
	SeatStatusHeld     = "HELD"
	SeatStatusReserved = "RESERVED"
)

// Seat describes one physical seat of an event. Seats carry per-unit
// identity; at most one non-terminal reservation may reference a seat
// at any instant.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – event to which this seat belongs.
//  Section    – venue section label.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  PriceCents – authoritative price in cents.
//  Status     – availability status (FREE, HELD, RESERVED).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	EventID    uint64    // seats.event_id
	Section    string    // seats.section
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	PriceCents uint32    // seats.price_cents
	Status     string    // seats.status
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}
