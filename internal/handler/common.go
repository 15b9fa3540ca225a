// Package handler contains the HTTP handlers of the on-sale API. All
// methods assume JWT authentication has already been performed by
// middleware where required; handlers read the authenticated user via
// c.Get("user_id").
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/model"
)

// getUserID extracts the authenticated user's identifier (the JWT
// subject) from the Echo context. It returns an error when the request
// reached the handler without passing auth middleware.
func getUserID(c echo.Context) (string, error) {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	return "", errors.New("no user in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, model.ErrValidation
	}
	return id, nil
}

// respondError maps domain sentinel errors to HTTP responses. The
// mapping is the API contract: contention and lost races are 409 with
// a Retry-After hint, expired holds are 410, missing admission is 403.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrContention):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusConflict, echo.Map{"error": "resource busy, retry shortly"})
	case errors.Is(err, model.ErrAlreadyReserved), errors.Is(err, model.ErrInsufficientQuantity):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, model.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "reservation expired"})
	case errors.Is(err, model.ErrNotAdmitted):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "join the queue before reserving"})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// Health is a simple health-check endpoint used by load balancers and
// monitoring systems to verify that the service is running.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
