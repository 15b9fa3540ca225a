// Package model defines the domain entities shared by the admission,
// booking and realtime components, plus the sentinel errors that make
// up the error taxonomy of the service. Higher layers compare against
// these sentinels with errors.Is and translate them into HTTP statuses.
package model

import "errors"

// ErrValidation indicates malformed or out-of-range input. Handlers
// translate it into an HTTP 400 response. Requests failing validation
// are never retried automatically.
var ErrValidation = errors.New("validation error")

// ErrContention is returned when a distributed lock or a database row
// could not be obtained because another buyer holds it. It is safe for
// the caller to retry with backoff. Handlers translate it into 409
// with a Retry-After header.
var ErrContention = errors.New("resource contention, try again shortly")

// ErrNotFound is returned when an event, seat, ticket type or
// reservation does not exist. Handlers translate it into 404.
var ErrNotFound = errors.New("not found")

// ErrAlreadyReserved is returned when a targeted seat is no longer in
// the available state inside the row-locked transaction. Handlers
// translate it into 409.
var ErrAlreadyReserved = errors.New("seat already reserved")

// ErrInsufficientQuantity is returned when a ticket type does not have
// enough remaining quantity for the requested hold.
var ErrInsufficientQuantity = errors.New("insufficient ticket quantity")

// ErrExpired indicates that a hold or session has passed its TTL. The
// user must restart selection. Handlers translate it into 410.
var ErrExpired = errors.New("hold expired")

// ErrNotAdmitted is returned when a user attempts to reserve without
// being in the active set for the event. Handlers translate it into 403.
var ErrNotAdmitted = errors.New("user not admitted for this event")

// ErrInternal wraps store unavailability and other unexpected
// conditions. Handlers translate it into 500 with a generic message.
var ErrInternal = errors.New("internal error")
