package model

import "time"

// Event statuses form a simple state machine owned by the external
// event-management service: UPCOMING -> ON_SALE -> ENDED, or any
// non-terminal state -> CANCELLED. This core only reads events.
const (
	EventStatusUpcoming  = "UPCOMING"
	EventStatusOnSale    = "ON_SALE"
	EventStatusEnded     = "ENDED"
	EventStatusCancelled = "CANCELLED"
)

// Event describes a sellable event. The capacity threshold bounds how
// many users may be in the active set (permitted to attempt booking)
// at once; it is not the number of tickets.
//
// Fields:
//  ID                – primary key identifier.
//  Name              – display name.
//  Status            – sale state (UPCOMING, ON_SALE, ENDED, CANCELLED).
//  CapacityThreshold – max concurrent active buyers admitted.
//  SaleStartsAt      – beginning of the sale window.
//  SaleEndsAt        – end of the sale window.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Event struct {
	ID                uint64    // events.id
	Name              string    // events.name
	Status            string    // events.status
	CapacityThreshold int64     // events.capacity_threshold
	SaleStartsAt      time.Time // events.sale_starts_at
	SaleEndsAt        time.Time // events.sale_ends_at
	CreatedAt         time.Time // events.created_at
	UpdatedAt         time.Time // events.updated_at
}

// OnSale reports whether buyers may currently join the queue or
// reserve for this event.
func (e *Event) OnSale(now time.Time) bool {
	if e.Status != EventStatusOnSale {
		return false
	}
	return !now.Before(e.SaleStartsAt) && now.Before(e.SaleEndsAt)
}
