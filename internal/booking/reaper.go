package booking

import (
	"context"
	"log"

	"github.com/ticketgate/onsale/internal/metrics"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/realtime"
)

// Reclaimer yields expired holds whose inventory was already returned
// to the pool. Satisfied by *Manager.
type Reclaimer interface {
	ReclaimExpired(ctx context.Context) ([]ReclaimedHold, error)
}

// Reaper drains expired holds on a schedule and performs the
// out-of-band follow-up the database transaction cannot: releasing the
// buyer's admission slot, notifying rooms, and publishing the expiry
// event. All follow-up is best-effort; the database already holds the
// truth.
type Reaper struct {
	reclaimer Reclaimer
	gate      AdmissionGate
	fanout    Broadcaster
	producer  EventPublisher
}

// NewReaper wires the reaper. gate, fanout and producer may be nil;
// the corresponding side effects are then skipped.
func NewReaper(reclaimer Reclaimer, gate AdmissionGate, fanout Broadcaster, producer EventPublisher) *Reaper {
	if reclaimer == nil {
		panic("nil reclaimer passed to booking.NewReaper")
	}
	return &Reaper{reclaimer: reclaimer, gate: gate, fanout: fanout, producer: producer}
}

// Tick runs one reap pass. It is the task body for a scheduled runner.
func (rp *Reaper) Tick(ctx context.Context) error {
	reclaimed, err := rp.reclaimer.ReclaimExpired(ctx)
	if err != nil {
		return err
	}
	for i := range reclaimed {
		rp.finish(ctx, &reclaimed[i])
	}
	return nil
}

func (rp *Reaper) finish(ctx context.Context, hold *ReclaimedHold) {
	res := &hold.Reservation
	metrics.ReservationsExpired.Inc()
	log.Printf("reaper: expired reservation %d (user %s, event %d)", res.ID, res.UserID, res.EventID)

	if rp.gate != nil {
		if err := rp.gate.Leave(ctx, res.EventID, res.UserID); err != nil {
			log.Printf("reaper: releasing admission slot for %s failed: %v", res.UserID, err)
		}
	}

	if rp.fanout != nil {
		room := realtime.SeatsRoom(res.EventID)
		if seatIDs := seatIDsOf(hold.Items); len(seatIDs) > 0 {
			payload := map[string]any{"event_id": res.EventID, "seat_ids": seatIDs, "status": model.SeatStatusFree}
			if err := rp.fanout.Broadcast(ctx, room, realtime.EventSeatReleased, payload); err != nil {
				log.Printf("reaper: broadcast seat-released failed: %v", err)
			}
		}
		for _, it := range hold.Items {
			if it.TicketTypeID == nil {
				continue
			}
			payload := map[string]any{"event_id": res.EventID, "ticket_type_id": *it.TicketTypeID}
			if err := rp.fanout.Broadcast(ctx, room, realtime.EventTicketUpdated, payload); err != nil {
				log.Printf("reaper: broadcast ticket-updated failed: %v", err)
			}
		}
	}

	if rp.producer != nil {
		if err := rp.producer.PublishReservationExpired(ctx, reservationEvent(res, hold.Items)); err != nil {
			log.Printf("reaper: publish reservation.expired failed: %v", err)
		}
	}
}
