package model

import "time"

// Reservation statuses. PENDING is the only non-terminal-ish state; a
// reservation eventually becomes CONFIRMED, CANCELLED or EXPIRED and is
// never deleted (retained as history).
const (
	ReservationStatusPending   = "PENDING"
	ReservationStatusConfirmed = "CONFIRMED"
	ReservationStatusCancelled = "CANCELLED"
	ReservationStatusExpired   = "EXPIRED"
)

// Payment statuses tracked alongside the reservation. Payment capture
// itself is an external collaborator; this core only records the
// outcome it is told about.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
)

// Reservation records one hold attempt: a time-boxed, unconfirmed
// claim on inventory. While status is PENDING the referenced seats are
// HELD and ticket-type quantity is decremented; the reaper returns
// both once expires_at passes without payment.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – user who made the reservation (JWT subject).
//  EventID          – event being reserved.
//  Status           – PENDING, CONFIRMED, CANCELLED or EXPIRED.
//  PaymentStatus    – PENDING or PAID.
//  TotalAmountCents – total price in cents, computed server-side.
//  ExpiresAt        – end of the hold window.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Reservation struct {
	ID               uint64    // reservations.id
	UserID           string    // reservations.user_id
	EventID          uint64    // reservations.event_id
	Status           string    // reservations.status
	PaymentStatus    string    // reservations.payment_status
	TotalAmountCents uint32    // reservations.total_amount_cents
	ExpiresAt        time.Time // reservations.expires_at
	CreatedAt        time.Time // reservations.created_at
	UpdatedAt        time.Time // reservations.updated_at
}

// Terminal reports whether the reservation can no longer change state.
func (r *Reservation) Terminal() bool {
	switch r.Status {
	case ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	}
	return false
}

// ReservationItem links a reservation to the inventory it holds.
// Exactly one of SeatID or TicketTypeID is set: seat-based items have
// quantity 1, ticket-type items carry the requested quantity.
//
// Fields:
//  ID             – primary key identifier.
//  ReservationID  – reference to the reservation.
//  SeatID         – held seat, when seat-based (nullable).
//  TicketTypeID   – held tier, when ticket-type based (nullable).
//  Quantity       – number of units held.
//  UnitPriceCents – authoritative unit price at hold time.
//  CreatedAt      – creation timestamp.
type ReservationItem struct {
	ID             uint64    // reservation_items.id
	ReservationID  uint64    // reservation_items.reservation_id
	SeatID         *uint64   // reservation_items.seat_id (nullable)
	TicketTypeID   *uint64   // reservation_items.ticket_type_id (nullable)
	Quantity       uint32    // reservation_items.quantity
	UnitPriceCents uint32    // reservation_items.unit_price_cents
	CreatedAt      time.Time // reservation_items.created_at
}
