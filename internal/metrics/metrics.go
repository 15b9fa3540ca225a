// Package metrics registers the Prometheus collectors for the
// admission, booking and realtime components. Collectors are created
// with promauto against the default registry and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueJoins counts check-ins that inserted a user into the
	// waiting queue or the active set.
	QueueJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_queue_joins_total",
		Help: "Total number of users that entered a waiting queue or active set",
	})

	// QueuePromotions counts users promoted from the waiting queue
	// into the active set by the processor.
	QueuePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_queue_promotions_total",
		Help: "Total number of users promoted into the active set",
	})

	// QueueEvictions counts participants removed for heartbeat
	// staleness or active-TTL expiry.
	QueueEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admission_queue_evictions_total",
		Help: "Total number of stale queue or active participants evicted",
	})

	// ReservationsCreated counts successfully committed holds.
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of reservations created",
	})

	// ReservationsExpired counts holds reclaimed by the reaper.
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Total number of pending reservations expired by the reaper",
	})

	// ReservationsCancelled counts explicit cancellations.
	ReservationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_cancelled_total",
		Help: "Total number of reservations cancelled by their owner",
	})

	// LockContention counts reservation attempts rejected because an
	// advisory resource lock was held.
	LockContention = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_lock_contention_total",
		Help: "Total number of reservation attempts that lost an advisory lock race",
	})

	// WSConnections tracks currently open realtime connections on this
	// instance.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Number of open websocket connections on this instance",
	})
)
