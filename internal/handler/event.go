package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/repository"
)

// EventHandler exposes unauthenticated browse endpoints: event
// details, the seat map with live availability, and ticket tiers.
// These routes apply no JWT middleware so guests can preview an event
// before joining the queue.
type EventHandler struct {
	Events  *repository.EventRepo
	Seats   *repository.SeatRepo
	Tickets *repository.TicketTypeRepo
}

// NewEventHandler constructs an EventHandler. All dependencies must be non-nil.
func NewEventHandler(events *repository.EventRepo, seats *repository.SeatRepo, tickets *repository.TicketTypeRepo) *EventHandler {
	if events == nil || seats == nil || tickets == nil {
		panic("nil repository passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Seats: seats, Tickets: tickets}
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	event, err := h.Events.GetByID(c.Request().Context(), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":             event.ID,
		"name":           event.Name,
		"status":         event.Status,
		"on_sale":        event.OnSale(time.Now()),
		"sale_starts_at": event.SaleStartsAt.UTC().Format(time.RFC3339),
		"sale_ends_at":   event.SaleEndsAt.UTC().Format(time.RFC3339),
	})
}

// ListSeats handles GET /v1/events/:id/seats. Status values can be FREE,
// HELD or RESERVED. The snapshot is point-in-time; clients subscribe
// to the seats room over the websocket for live updates.
func (h *EventHandler) ListSeats(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return respondError(c, err)
	}
	seats, err := h.Seats.ListByEvent(ctx, eventID)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]echo.Map, 0, len(seats))
	for _, s := range seats {
		items = append(items, echo.Map{
			"id":          s.ID,
			"section":     s.Section,
			"row_label":   s.RowLabel,
			"seat_number": s.SeatNumber,
			"price_cents": s.PriceCents,
			"status":      s.Status,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// TicketTypes handles GET /v1/events/:id/ticket-types.
func (h *EventHandler) TicketTypes(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return respondError(c, err)
	}
	tiers, err := h.Tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]echo.Map, 0, len(tiers))
	for _, t := range tiers {
		items = append(items, echo.Map{
			"id":                 t.ID,
			"name":               t.Name,
			"price_cents":        t.PriceCents,
			"total_quantity":     t.TotalQuantity,
			"available_quantity": t.AvailableQuantity,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
