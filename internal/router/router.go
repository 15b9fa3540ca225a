// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/handler"
	"github.com/ticketgate/onsale/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Events       *handler.EventHandler
	Queue        *handler.QueueHandler
	Reservations *handler.ReservationHandler
	WS           *handler.WSHandler
}

// Register mounts all routes on the provided Echo instance.
//
// Unauthenticated: health, Prometheus metrics, public event browsing
// and the websocket endpoint (which verifies its own token, since
// browsers cannot set headers on websocket handshakes).
// Everything else requires a valid bearer token and shares the Redis
// token-bucket rate limiter.
func Register(e *echo.Echo, h Handlers, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/v1/events/:id", h.Events.Get)
	e.GET("/v1/events/:id/seats", h.Events.ListSeats)
	e.GET("/v1/events/:id/ticket-types", h.Events.TicketTypes)

	e.GET("/v1/ws", h.WS.Serve)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.NewTokenBucket(rlCfg, rdb))

	auth.POST("/events/:id/queue", h.Queue.CheckEntry)
	auth.GET("/events/:id/queue", h.Queue.Status)
	auth.DELETE("/events/:id/queue", h.Queue.Leave)
	auth.POST("/events/:id/queue/heartbeat", h.Queue.Heartbeat)

	auth.POST("/reservations", h.Reservations.Reserve)
	auth.GET("/reservations/:id", h.Reservations.Get)
	auth.DELETE("/reservations/:id", h.Reservations.Cancel)
	auth.POST("/reservations/:id/confirm", h.Reservations.Confirm)
	auth.GET("/my-reservations", h.Reservations.List)
}
