package model

import "time"

// TicketType describes fungible inventory for an event: general
// admission tiers with a quantity but no per-unit identity. The
// conservation invariant is
//
//	available_quantity = total_quantity - sum(quantity of items in
//	reservations not in {CANCELLED, EXPIRED})
//
// and is maintained exclusively inside row-locked transactions.
//
// Fields:
//  ID                – primary key identifier.
//  EventID           – event to which this tier belongs.
//  Name              – tier name (e.g. GA, VIP).
//  PriceCents        – authoritative unit price in cents.
//  TotalQuantity     – total units ever sellable.
//  AvailableQuantity – units not referenced by a non-terminal reservation.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type TicketType struct {
	ID                uint64    // ticket_types.id
	EventID           uint64    // ticket_types.event_id
	Name              string    // ticket_types.name
	PriceCents        uint32    // ticket_types.price_cents
	TotalQuantity     uint32    // ticket_types.total_quantity
	AvailableQuantity uint32    // ticket_types.available_quantity
	CreatedAt         time.Time // ticket_types.created_at
	UpdatedAt         time.Time // ticket_types.updated_at
}
