package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/booking"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/repository"
)

// ReservationHandler exposes the reservation lifecycle: create a hold,
// confirm payment, cancel, and read back history.
type ReservationHandler struct {
	Manager *booking.Manager
	Repo    *repository.ReservationRepo
}

// NewReservationHandler constructs a ReservationHandler. All
// dependencies must be non-nil.
func NewReservationHandler(manager *booking.Manager, repo *repository.ReservationRepo) *ReservationHandler {
	if manager == nil || repo == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Manager: manager, Repo: repo}
}

type reserveRequest struct {
	EventID uint64                    `json:"event_id"`
	SeatIDs []uint64                  `json:"seat_ids"`
	Tickets []booking.TicketSelection `json:"tickets"`
}

type reservationView struct {
	ID               uint64 `json:"id"`
	EventID          uint64 `json:"event_id"`
	Status           string `json:"status"`
	PaymentStatus    string `json:"payment_status"`
	TotalAmountCents uint32 `json:"total_amount_cents"`
	ExpiresAt        string `json:"expires_at"`
	CreatedAt        string `json:"created_at,omitempty"`
}

func viewOf(res *model.Reservation) reservationView {
	v := reservationView{
		ID:               res.ID,
		EventID:          res.EventID,
		Status:           res.Status,
		PaymentStatus:    res.PaymentStatus,
		TotalAmountCents: res.TotalAmountCents,
		ExpiresAt:        res.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if !res.CreatedAt.IsZero() {
		v.CreatedAt = res.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// Reserve handles POST /v1/reservations. It places a time-boxed hold
// on the selected seats or ticket quantities and returns 201 with the
// hold's expiry. 409 with Retry-After means another buyer holds a
// lock on a selected resource; 403 means the user is not admitted.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body reserveRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Manager.Reserve(c.Request().Context(), userID, booking.ReserveRequest{
		EventID: body.EventID,
		SeatIDs: body.SeatIDs,
		Tickets: body.Tickets,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, viewOf(res))
}

// Confirm handles POST /v1/reservations/:id/confirm. Payment capture
// is external; this endpoint records the outcome. Confirming twice
// returns the confirmed reservation again; confirming after expiry
// returns 410.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Manager.Confirm(c.Request().Context(), resID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(res))
}

// Cancel handles DELETE /v1/reservations/:id. Cancelling a hold that
// already reached a terminal state is a no-op 204.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.Manager.Cancel(c.Request().Context(), resID, userID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /v1/reservations/:id. Foreign reservations read as
// 404 so the endpoint does not leak existence.
func (h *ReservationHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Repo.GetByIDForUser(c.Request().Context(), resID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": viewOf(res)})
}

// List handles GET /v1/my-reservations, newest first. An empty history
// is an empty array, not an error.
func (h *ReservationHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ress, err := h.Repo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	items := make([]reservationView, 0, len(ress))
	for i := range ress {
		items = append(items, viewOf(&ress[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
