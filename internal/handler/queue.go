package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/admission"
	"github.com/ticketgate/onsale/internal/metrics"
	"github.com/ticketgate/onsale/internal/repository"
)

// QueueHandler exposes the admission waiting room over HTTP. The same
// operations are reachable over the websocket; HTTP exists for clients
// that poll.
type QueueHandler struct {
	Queue  *admission.Queue
	Events *repository.EventRepo
}

// NewQueueHandler constructs a QueueHandler. All dependencies must be non-nil.
func NewQueueHandler(queue *admission.Queue, events *repository.EventRepo) *QueueHandler {
	if queue == nil || events == nil {
		panic("nil dependency passed to NewQueueHandler")
	}
	return &QueueHandler{Queue: queue, Events: events}
}

// CheckEntry handles POST /v1/events/:id/queue. It either admits the
// user directly (queued=false) or enrols them in FIFO order and
// returns their position. Re-posting is idempotent: an active user
// gets their heartbeat refreshed, a queued user keeps their original
// position.
func (h *QueueHandler) CheckEntry(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, eventID); err != nil {
		return respondError(c, err)
	}
	status, joined, err := h.Queue.CheckEntry(ctx, eventID, userID)
	if err != nil {
		return respondError(c, err)
	}
	if joined {
		metrics.QueueJoins.Inc()
	}
	return c.JSON(http.StatusOK, status)
}

// Status handles GET /v1/events/:id/queue. Read-only: it never enrols
// or refreshes anything.
func (h *QueueHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	status, err := h.Queue.Status(c.Request().Context(), eventID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// Leave handles DELETE /v1/events/:id/queue. It removes the user from
// both the waiting line and the active set and is idempotent.
func (h *QueueHandler) Leave(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	if err := h.Queue.Leave(c.Request().Context(), eventID, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Heartbeat handles POST /v1/events/:id/queue/heartbeat. Clients that
// cannot hold a websocket open call this to keep their place.
func (h *QueueHandler) Heartbeat(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	if err := h.Queue.Heartbeat(c.Request().Context(), eventID, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
