// Package booking converts a user's seat or ticket selection into a
// time-boxed hold and manages the hold's lifecycle: cancellation,
// payment confirmation and expiry reclamation. The advisory lock thins
// contention; correctness comes from re-validating every row under
// SELECT ... FOR UPDATE inside one transaction.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ticketgate/onsale/internal/broker"
	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/lock"
	"github.com/ticketgate/onsale/internal/metrics"
	"github.com/ticketgate/onsale/internal/model"
	"github.com/ticketgate/onsale/internal/realtime"
)

// AdmissionGate is the slice of the admission queue the manager needs:
// whether a user may attempt booking, and slot release once they are
// done.
type AdmissionGate interface {
	IsActive(ctx context.Context, eventID uint64, userID string) (bool, error)
	Leave(ctx context.Context, eventID uint64, userID string) error
}

// Broadcaster fans post-commit state changes out to clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, data any) error
}

// EventPublisher sends reservation lifecycle events to the broker.
type EventPublisher interface {
	PublishReservationConfirmed(ctx context.Context, ev broker.ReservationEvent) error
	PublishReservationExpired(ctx context.Context, ev broker.ReservationEvent) error
}

// EventReader is the read-only slice of the event repository the
// manager needs.
type EventReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// SeatStore covers the seat-row operations the reservation protocol
// performs inside its transactions.
type SeatStore interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) ([]model.Seat, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, from, to string) (int64, error)
}

// TicketTypeStore covers the tier-quantity operations performed inside
// the manager's transactions.
type TicketTypeStore interface {
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, eventID uint64, ids []uint64) ([]model.TicketType, error)
	DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, quantity uint32) error
	IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, quantity uint32) error
}

// ReservationStore persists reservations and their guarded status
// transitions.
type ReservationStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, items []model.ReservationItem) error
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error)
	ItemsTx(ctx context.Context, tx *sql.Tx, reservationID uint64) ([]model.ReservationItem, error)
	TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, fromStatus, toStatus, paymentStatus string) (bool, error)
	SelectExpiredTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]model.Reservation, error)
}

// TicketSelection requests quantity units of one ticket type.
type TicketSelection struct {
	TicketTypeID uint64 `json:"ticket_type_id"`
	Quantity     uint32 `json:"quantity"`
}

// ReserveRequest selects the resources for one hold attempt: either a
// set of seats or a set of ticket-type quantities, never both.
type ReserveRequest struct {
	EventID uint64
	SeatIDs []uint64
	Tickets []TicketSelection
}

// Manager implements the reservation protocol. Its stores are
// interfaces so the transactional paths can be exercised without a
// database; the repository types satisfy them directly.
type Manager struct {
	db       *sql.DB
	events   EventReader
	seats    SeatStore
	tickets  TicketTypeStore
	ress     ReservationStore
	locker   *lock.Locker
	gate     AdmissionGate
	fanout   Broadcaster
	producer EventPublisher
	cfg      config.HoldConfig
	now      func() time.Time
}

// NewManager wires the manager. fanout and producer may be nil; the
// corresponding side effects are then skipped.
func NewManager(
	db *sql.DB,
	events EventReader,
	seats SeatStore,
	tickets TicketTypeStore,
	ress ReservationStore,
	locker *lock.Locker,
	gate AdmissionGate,
	fanout Broadcaster,
	producer EventPublisher,
	cfg config.HoldConfig,
) *Manager {
	if db == nil || events == nil || seats == nil || tickets == nil || ress == nil || locker == nil || gate == nil {
		panic("nil dependency passed to booking.NewManager")
	}
	return &Manager{
		db:       db,
		events:   events,
		seats:    seats,
		tickets:  tickets,
		ress:     ress,
		locker:   locker,
		gate:     gate,
		fanout:   fanout,
		producer: producer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Reserve creates a pending reservation holding the selected
// resources for the configured hold duration. It returns
// model.ErrContention when another buyer holds an advisory lock on any
// selected resource (retry with backoff), model.ErrAlreadyReserved or
// model.ErrInsufficientQuantity when the row re-check loses the race,
// and model.ErrNotAdmitted when the user has no active slot.
func (m *Manager) Reserve(ctx context.Context, userID string, req ReserveRequest) (*model.Reservation, error) {
	seatIDs, selections, err := normalizeSelection(req, m.cfg.MaxSeats, m.cfg.MaxTickets)
	if err != nil {
		return nil, err
	}

	event, err := m.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.OnSale(m.now()) {
		return nil, fmt.Errorf("event %d not on sale: %w", req.EventID, model.ErrValidation)
	}

	active, err := m.gate.IsActive(ctx, req.EventID, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, model.ErrNotAdmitted
	}

	// Advisory locks first: cheap rejection of doomed attempts before
	// anyone touches the database.
	locks, err := m.locker.AcquireAll(ctx, resourceLockKeys(req.EventID, seatIDs, selections))
	if err != nil {
		if errors.Is(err, model.ErrContention) {
			metrics.LockContention.Inc()
		}
		return nil, err
	}
	defer m.locker.ReleaseAll(ctx, locks)

	res, err := m.reserveTx(ctx, userID, event, seatIDs, selections)
	if err != nil {
		return nil, err
	}

	metrics.ReservationsCreated.Inc()
	// Broadcast only after commit so a rolled-back hold is never
	// announced.
	m.broadcastHeld(ctx, req.EventID, seatIDs, selections)
	return res, nil
}

func (m *Manager) reserveTx(ctx context.Context, userID string, event *model.Event, seatIDs []uint64, selections []TicketSelection) (*model.Reservation, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var items []model.ReservationItem
	var total uint32

	if len(seatIDs) > 0 {
		rows, err := m.seats.GetForUpdateTx(ctx, tx, event.ID, seatIDs)
		if err != nil {
			return nil, err
		}
		if len(rows) != len(seatIDs) {
			return nil, fmt.Errorf("unknown seat in selection: %w", model.ErrNotFound)
		}
		for _, seat := range rows {
			if seat.Status != model.SeatStatusFree {
				return nil, fmt.Errorf("seat %d: %w", seat.ID, model.ErrAlreadyReserved)
			}
			seatID := seat.ID
			items = append(items, model.ReservationItem{SeatID: &seatID, Quantity: 1, UnitPriceCents: seat.PriceCents})
			total += seat.PriceCents
		}
		moved, err := m.seats.UpdateStatusTx(ctx, tx, seatIDs, model.SeatStatusFree, model.SeatStatusHeld)
		if err != nil {
			return nil, err
		}
		if moved != int64(len(seatIDs)) {
			return nil, fmt.Errorf("seat state changed underfoot: %w", model.ErrAlreadyReserved)
		}
	}

	if len(selections) > 0 {
		ids := make([]uint64, len(selections))
		for i, sel := range selections {
			ids[i] = sel.TicketTypeID
		}
		rows, err := m.tickets.GetForUpdateTx(ctx, tx, event.ID, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[uint64]model.TicketType, len(rows))
		for _, t := range rows {
			byID[t.ID] = t
		}
		for _, sel := range selections {
			tier, ok := byID[sel.TicketTypeID]
			if !ok {
				return nil, fmt.Errorf("ticket type %d: %w", sel.TicketTypeID, model.ErrNotFound)
			}
			if err := m.tickets.DecrementAvailableTx(ctx, tx, sel.TicketTypeID, sel.Quantity); err != nil {
				return nil, err
			}
			tierID := sel.TicketTypeID
			items = append(items, model.ReservationItem{TicketTypeID: &tierID, Quantity: sel.Quantity, UnitPriceCents: tier.PriceCents})
			total += tier.PriceCents * sel.Quantity
		}
	}

	res := &model.Reservation{
		UserID:           userID,
		EventID:          event.ID,
		Status:           model.ReservationStatusPending,
		PaymentStatus:    model.PaymentStatusPending,
		TotalAmountCents: total,
		ExpiresAt:        m.now().UTC().Add(m.cfg.HoldDuration),
	}
	if err := m.ress.CreateTx(ctx, tx, res, items); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	committed = true
	return res, nil
}

// Cancel releases a hold early. It is idempotent: cancelling a
// reservation that already reached a terminal state succeeds without
// effect. Only the owner may cancel; foreign reservations read as not
// found.
func (m *Manager) Cancel(ctx context.Context, reservationID uint64, userID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := m.ress.GetForUpdateTx(ctx, tx, reservationID)
	if err != nil {
		return err
	}
	if res.UserID != userID {
		return fmt.Errorf("reservation %d: %w", reservationID, model.ErrNotFound)
	}
	if res.Terminal() {
		return nil
	}

	items, err := m.ress.ItemsTx(ctx, tx, reservationID)
	if err != nil {
		return err
	}
	if err := m.releaseItemsTx(ctx, tx, items); err != nil {
		return err
	}
	changed, err := m.ress.TransitionTx(ctx, tx, reservationID,
		model.ReservationStatusPending, model.ReservationStatusCancelled, res.PaymentStatus)
	if err != nil {
		return err
	}
	if !changed {
		// Lost a race with confirmation or the reaper; the FOR UPDATE
		// above should prevent this, treat as already terminal.
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	committed = true

	metrics.ReservationsCancelled.Inc()
	m.broadcastReleased(ctx, res.EventID, items)
	return nil
}

// Confirm records the (mocked) payment outcome: the pending hold
// becomes a confirmed reservation, its seats move HELD -> RESERVED and
// the user's active slot is released. Confirming twice is a no-op;
// confirming an expired or reaped hold fails with model.ErrExpired.
func (m *Manager) Confirm(ctx context.Context, reservationID uint64, userID string) (*model.Reservation, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := m.ress.GetForUpdateTx(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, model.ErrNotFound)
	}
	if res.Status == model.ReservationStatusConfirmed {
		return res, nil
	}
	if res.Status != model.ReservationStatusPending || !res.ExpiresAt.After(m.now()) {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, model.ErrExpired)
	}

	items, err := m.ress.ItemsTx(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	seatIDs := seatIDsOf(items)
	if len(seatIDs) > 0 {
		moved, err := m.seats.UpdateStatusTx(ctx, tx, seatIDs, model.SeatStatusHeld, model.SeatStatusReserved)
		if err != nil {
			return nil, err
		}
		if moved != int64(len(seatIDs)) {
			return nil, fmt.Errorf("held seat missing on confirm: %w", model.ErrInternal)
		}
	}
	changed, err := m.ress.TransitionTx(ctx, tx, reservationID,
		model.ReservationStatusPending, model.ReservationStatusConfirmed, model.PaymentStatusPaid)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, model.ErrExpired)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit confirm tx: %w", err)
	}
	committed = true

	res.Status = model.ReservationStatusConfirmed
	res.PaymentStatus = model.PaymentStatusPaid

	// The buyer is done; free their admission slot for the queue.
	if err := m.gate.Leave(ctx, res.EventID, userID); err != nil {
		log.Printf("booking: releasing admission slot for %s failed: %v", userID, err)
	}
	if m.producer != nil {
		if err := m.producer.PublishReservationConfirmed(ctx, reservationEvent(res, items)); err != nil {
			log.Printf("booking: publish reservation.confirmed failed: %v", err)
		}
	}
	return res, nil
}

// ReclaimedHold describes one expired reservation whose inventory was
// returned. The reaper uses it to release admission slots and notify
// rooms.
type ReclaimedHold struct {
	Reservation model.Reservation
	Items       []model.ReservationItem
}

// reclaimBatchSize bounds one reaper pass; anything left over is
// picked up next interval.
const reclaimBatchSize = 100

// ReclaimExpired expires every due pending hold and returns what was
// freed. Selection uses SKIP LOCKED and the status flip re-checks
// PENDING, so a payment confirmation committing concurrently wins and
// the row is skipped.
func (m *Manager) ReclaimExpired(ctx context.Context) ([]ReclaimedHold, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reclaim tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	due, err := m.ress.SelectExpiredTx(ctx, tx, m.now(), reclaimBatchSize)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, tx.Commit()
	}

	reclaimed := make([]ReclaimedHold, 0, len(due))
	for _, res := range due {
		items, err := m.ress.ItemsTx(ctx, tx, res.ID)
		if err != nil {
			return nil, err
		}
		if err := m.releaseItemsTx(ctx, tx, items); err != nil {
			return nil, err
		}
		changed, err := m.ress.TransitionTx(ctx, tx, res.ID,
			model.ReservationStatusPending, model.ReservationStatusExpired, res.PaymentStatus)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		res.Status = model.ReservationStatusExpired
		reclaimed = append(reclaimed, ReclaimedHold{Reservation: res, Items: items})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reclaim tx: %w", err)
	}
	committed = true
	return reclaimed, nil
}

// releaseItemsTx is the inverse of the hold step: seats HELD -> FREE,
// ticket quantities restored.
func (m *Manager) releaseItemsTx(ctx context.Context, tx *sql.Tx, items []model.ReservationItem) error {
	seatIDs := seatIDsOf(items)
	if len(seatIDs) > 0 {
		if _, err := m.seats.UpdateStatusTx(ctx, tx, seatIDs, model.SeatStatusHeld, model.SeatStatusFree); err != nil {
			return err
		}
	}
	for _, it := range items {
		if it.TicketTypeID != nil {
			if err := m.tickets.IncrementAvailableTx(ctx, tx, *it.TicketTypeID, it.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) broadcastHeld(ctx context.Context, eventID uint64, seatIDs []uint64, selections []TicketSelection) {
	if m.fanout == nil {
		return
	}
	room := realtime.SeatsRoom(eventID)
	if len(seatIDs) > 0 {
		payload := map[string]any{"event_id": eventID, "seat_ids": seatIDs, "status": model.SeatStatusHeld}
		if err := m.fanout.Broadcast(ctx, room, realtime.EventSeatLocked, payload); err != nil {
			log.Printf("booking: broadcast seat-locked failed: %v", err)
		}
	}
	for _, sel := range selections {
		payload := map[string]any{"event_id": eventID, "ticket_type_id": sel.TicketTypeID}
		if err := m.fanout.Broadcast(ctx, room, realtime.EventTicketUpdated, payload); err != nil {
			log.Printf("booking: broadcast ticket-updated failed: %v", err)
		}
	}
}

func (m *Manager) broadcastReleased(ctx context.Context, eventID uint64, items []model.ReservationItem) {
	if m.fanout == nil {
		return
	}
	room := realtime.SeatsRoom(eventID)
	if seatIDs := seatIDsOf(items); len(seatIDs) > 0 {
		payload := map[string]any{"event_id": eventID, "seat_ids": seatIDs, "status": model.SeatStatusFree}
		if err := m.fanout.Broadcast(ctx, room, realtime.EventSeatReleased, payload); err != nil {
			log.Printf("booking: broadcast seat-released failed: %v", err)
		}
	}
	for _, it := range items {
		if it.TicketTypeID == nil {
			continue
		}
		payload := map[string]any{"event_id": eventID, "ticket_type_id": *it.TicketTypeID}
		if err := m.fanout.Broadcast(ctx, room, realtime.EventTicketUpdated, payload); err != nil {
			log.Printf("booking: broadcast ticket-updated failed: %v", err)
		}
	}
}

// normalizeSelection validates the resource selector: exactly one of
// seats or tickets, deduplicated, positive quantities, within the
// configured per-reservation bounds.
func normalizeSelection(req ReserveRequest, maxSeats, maxTickets int) ([]uint64, []TicketSelection, error) {
	if req.EventID == 0 {
		return nil, nil, fmt.Errorf("event id required: %w", model.ErrValidation)
	}
	if len(req.SeatIDs) > 0 && len(req.Tickets) > 0 {
		return nil, nil, fmt.Errorf("select either seats or tickets, not both: %w", model.ErrValidation)
	}
	if len(req.SeatIDs) == 0 && len(req.Tickets) == 0 {
		return nil, nil, fmt.Errorf("empty selection: %w", model.ErrValidation)
	}

	if len(req.SeatIDs) > 0 {
		seen := make(map[uint64]struct{}, len(req.SeatIDs))
		seats := make([]uint64, 0, len(req.SeatIDs))
		for _, id := range req.SeatIDs {
			if id == 0 {
				return nil, nil, fmt.Errorf("invalid seat id: %w", model.ErrValidation)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			seats = append(seats, id)
		}
		if len(seats) > maxSeats {
			return nil, nil, fmt.Errorf("at most %d seats per reservation: %w", maxSeats, model.ErrValidation)
		}
		sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
		return seats, nil, nil
	}

	merged := make(map[uint64]uint32, len(req.Tickets))
	order := make([]uint64, 0, len(req.Tickets))
	var totalUnits int
	for _, sel := range req.Tickets {
		if sel.TicketTypeID == 0 || sel.Quantity == 0 {
			return nil, nil, fmt.Errorf("invalid ticket selection: %w", model.ErrValidation)
		}
		if _, seen := merged[sel.TicketTypeID]; !seen {
			order = append(order, sel.TicketTypeID)
		}
		merged[sel.TicketTypeID] += sel.Quantity
		totalUnits += int(sel.Quantity)
	}
	if totalUnits > maxTickets {
		return nil, nil, fmt.Errorf("at most %d tickets per reservation: %w", maxTickets, model.ErrValidation)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	selections := make([]TicketSelection, 0, len(order))
	for _, id := range order {
		selections = append(selections, TicketSelection{TicketTypeID: id, Quantity: merged[id]})
	}
	return nil, selections, nil
}

// resourceLockKeys names the advisory lock for each selected resource.
func resourceLockKeys(eventID uint64, seatIDs []uint64, selections []TicketSelection) []string {
	keys := make([]string, 0, len(seatIDs)+len(selections))
	for _, id := range seatIDs {
		keys = append(keys, fmt.Sprintf("resource:seat:%d:%d", eventID, id))
	}
	for _, sel := range selections {
		keys = append(keys, fmt.Sprintf("resource:ticket:%d:%d", eventID, sel.TicketTypeID))
	}
	return keys
}

func seatIDsOf(items []model.ReservationItem) []uint64 {
	var ids []uint64
	for _, it := range items {
		if it.SeatID != nil {
			ids = append(ids, *it.SeatID)
		}
	}
	return ids
}

func reservationEvent(res *model.Reservation, items []model.ReservationItem) broker.ReservationEvent {
	ev := broker.ReservationEvent{
		ReservationID:    res.ID,
		UserID:           res.UserID,
		EventID:          res.EventID,
		Status:           res.Status,
		TotalAmountCents: res.TotalAmountCents,
		SeatIDs:          seatIDsOf(items),
		OccurredAt:       time.Now().UTC().Format(time.RFC3339),
	}
	for _, it := range items {
		if it.TicketTypeID != nil {
			ev.TicketTypeIDs = append(ev.TicketTypeIDs, *it.TicketTypeID)
		}
	}
	return ev
}
