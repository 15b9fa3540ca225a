package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/admission"
	"github.com/ticketgate/onsale/internal/metrics"
	"github.com/ticketgate/onsale/internal/realtime"
)

// WSHandler upgrades GET /v1/ws to a websocket. The route is not
// behind the JWT middleware because browsers cannot set headers on
// websocket handshakes; the token is accepted from either the
// Authorization header or a ?token= query parameter and verified here.
type WSHandler struct {
	Hub       *realtime.Hub
	Queue     *admission.Queue
	JWTSecret string
	upgrader  websocket.Upgrader
}

// NewWSHandler constructs a WSHandler. All dependencies must be non-nil.
func NewWSHandler(hub *realtime.Hub, queue *admission.Queue, jwtSecret string) *WSHandler {
	if hub == nil || queue == nil || jwtSecret == "" {
		panic("nil dependency passed to NewWSHandler")
	}
	return &WSHandler{
		Hub:       hub,
		Queue:     queue,
		JWTSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced at the edge proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles the websocket handshake and runs the connection until
// it drops. On connect, the user's stored session (room memberships
// and pending seat selection) is restored and echoed back so a
// reconnecting client resumes where it left off.
func (h *WSHandler) Serve(c echo.Context) error {
	userID, err := h.authenticate(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}

	client := realtime.NewClient(conn, userID)
	ctx := c.Request().Context()
	h.restoreSession(ctx, client)

	defer h.Hub.Detach(client)
	client.Run(ctx, h.dispatch)
	return nil
}

// authenticate verifies the bearer token and returns its subject.
func (h *WSHandler) authenticate(c echo.Context) (string, error) {
	raw := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == c.Request().Header.Get("Authorization") {
		raw = c.QueryParam("token")
	}
	if raw == "" {
		return "", echo.ErrUnauthorized
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(h.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return "", echo.ErrUnauthorized
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.ErrUnauthorized
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", echo.ErrUnauthorized
	}
	return sub, nil
}

// restoreSession re-joins the rooms recorded in the user's session and
// tells the client what was restored.
func (h *WSHandler) restoreSession(ctx context.Context, client *realtime.Client) {
	sess, err := h.Hub.Sessions().Get(ctx, client.UserID())
	if err != nil || sess == nil {
		return
	}
	for _, room := range sess.Rooms {
		if err := h.Hub.Join(ctx, client, room); err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "failed to restore room " + room})
		}
	}
	client.Send(realtime.EventSessionRestored, map[string]any{
		"rooms":          sess.Rooms,
		"selected_seats": sess.SelectedSeats,
	})
}

// dispatch routes one decoded client frame.
func (h *WSHandler) dispatch(ctx context.Context, client *realtime.Client, msg realtime.ClientMessage) {
	switch msg.Type {
	case realtime.MsgJoinEvent:
		h.join(ctx, client, msg.EventID, realtime.EventRoom)

	case realtime.MsgJoinQueue:
		if msg.EventID == 0 {
			client.Send(realtime.EventError, map[string]string{"error": "event_id required"})
			return
		}
		status, joined, err := h.Queue.CheckEntry(ctx, msg.EventID, client.UserID())
		if err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "queue entry failed"})
			return
		}
		if joined {
			metrics.QueueJoins.Inc()
		}
		if err := h.Hub.Join(ctx, client, realtime.QueueRoom(msg.EventID)); err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "failed to join room"})
			return
		}
		client.Send(realtime.EventQueueUpdated, status)

	case realtime.MsgJoinSeatSelection:
		h.join(ctx, client, msg.EventID, realtime.SeatsRoom)

	case realtime.MsgHeartbeat:
		if msg.EventID == 0 {
			return
		}
		if err := h.Queue.Heartbeat(ctx, msg.EventID, client.UserID()); err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "heartbeat failed"})
		}

	case realtime.MsgSelectSeats:
		if err := h.Hub.Sessions().SetSelection(ctx, client.UserID(), msg.SeatIDs); err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "failed to store selection"})
		}

	case realtime.MsgLeaveRoom:
		if msg.Room == "" {
			client.Send(realtime.EventError, map[string]string{"error": "room required"})
			return
		}
		if err := h.Hub.Leave(ctx, client, msg.Room); err != nil {
			client.Send(realtime.EventError, map[string]string{"error": "failed to leave room"})
		}

	default:
		client.Send(realtime.EventError, map[string]string{"error": "unknown message type"})
	}
}

func (h *WSHandler) join(ctx context.Context, client *realtime.Client, eventID uint64, roomOf func(uint64) string) {
	if eventID == 0 {
		client.Send(realtime.EventError, map[string]string{"error": "event_id required"})
		return
	}
	room := roomOf(eventID)
	if err := h.Hub.Join(ctx, client, room); err != nil {
		client.Send(realtime.EventError, map[string]string{"error": "failed to join room"})
		return
	}
	client.Send(realtime.EventRoomInfo, map[string]any{
		"room":    room,
		"members": h.Hub.RoomSize(room),
	})
}
