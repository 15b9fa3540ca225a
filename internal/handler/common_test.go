package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketgate/onsale/internal/model"
)

func newEchoContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRespondError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{model.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", model.ErrValidation), http.StatusBadRequest},
		{model.ErrContention, http.StatusConflict},
		{model.ErrAlreadyReserved, http.StatusConflict},
		{model.ErrInsufficientQuantity, http.StatusConflict},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrExpired, http.StatusGone},
		{model.ErrNotAdmitted, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := newEchoContext(t)
		require.NoError(t, respondError(c, tc.err))
		assert.Equal(t, tc.status, rec.Code, "error %v", tc.err)
	}
}

func TestRespondError_ContentionSetsRetryAfter(t *testing.T) {
	c, rec := newEchoContext(t)
	require.NoError(t, respondError(c, model.ErrContention))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestGetUserID(t *testing.T) {
	c, _ := newEchoContext(t)
	_, err := getUserID(c)
	assert.Error(t, err, "no auth middleware ran")

	c.Set("user_id", "u1")
	id, err := getUserID(c)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestPathID(t *testing.T) {
	c, _ := newEchoContext(t)
	c.SetParamNames("id")
	c.SetParamValues("42")
	id, err := pathID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		c, _ := newEchoContext(t)
		c.SetParamNames("id")
		c.SetParamValues(bad)
		_, err := pathID(c, "id")
		assert.ErrorIs(t, err, model.ErrValidation, "value %q", bad)
	}
}

func TestHealth(t *testing.T) {
	c, rec := newEchoContext(t)
	require.NoError(t, Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
