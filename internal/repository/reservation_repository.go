package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ticketgate/onsale/internal/model"
)

// ReservationRepo provides data access to the reservations and
// reservation_items tables. Reservations are never deleted; they move
// through status transitions and stay as history.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the provided database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// CreateTx inserts the reservation and its items, filling in the
// generated reservation id.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation, items []model.ReservationItem) error {
	const q = `INSERT INTO reservations (user_id, event_id, status, payment_status, total_amount_cents, expires_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.UserID, res.EventID, res.Status, res.PaymentStatus,
		res.TotalAmountCents, res.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)

	if len(items) == 0 {
		return nil
	}
	iq := `INSERT INTO reservation_items (reservation_id, seat_id, ticket_type_id, quantity, unit_price_cents) VALUES `
	args := make([]interface{}, 0, len(items)*5)
	for i := range items {
		if i > 0 {
			iq += ","
		}
		iq += "(?, ?, ?, ?, ?)"
		args = append(args, res.ID, items[i].SeatID, items[i].TicketTypeID, items[i].Quantity, items[i].UnitPriceCents)
	}
	_, err = tx.ExecContext(ctx, iq, args...)
	return err
}

// GetByID returns one reservation or model.ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, selectReservation+` WHERE id = ?`, id), id)
}

// GetByIDForUser returns the reservation only when it belongs to the
// given user; a foreign reservation is reported as not found so the
// endpoint does not leak existence.
func (r *ReservationRepo) GetByIDForUser(ctx context.Context, id uint64, userID string) (*model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, selectReservation+` WHERE id = ? AND user_id = ?`, id, userID), id)
}

// GetForUpdateTx row-locks one reservation for a status transition.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, selectReservation+` WHERE id = ? FOR UPDATE`, id), id)
}

const selectReservation = `SELECT id, user_id, event_id, status, payment_status, total_amount_cents, expires_at, created_at, updated_at
                           FROM reservations`

func scanReservation(row *sql.Row, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(&res.ID, &res.UserID, &res.EventID, &res.Status, &res.PaymentStatus,
		&res.TotalAmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ItemsTx returns the items of a reservation inside a transaction.
func (r *ReservationRepo) ItemsTx(ctx context.Context, tx *sql.Tx, reservationID uint64) ([]model.ReservationItem, error) {
	const q = `SELECT id, reservation_id, seat_id, ticket_type_id, quantity, unit_price_cents, created_at
               FROM reservation_items WHERE reservation_id = ?`
	rows, err := tx.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// Items returns the items of a reservation.
func (r *ReservationRepo) Items(ctx context.Context, reservationID uint64) ([]model.ReservationItem, error) {
	const q = `SELECT id, reservation_id, seat_id, ticket_type_id, quantity, unit_price_cents, created_at
               FROM reservation_items WHERE reservation_id = ?`
	rows, err := r.db.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]model.ReservationItem, error) {
	defer rows.Close()
	var items []model.ReservationItem
	for rows.Next() {
		var it model.ReservationItem
		if err := rows.Scan(&it.ID, &it.ReservationID, &it.SeatID, &it.TicketTypeID,
			&it.Quantity, &it.UnitPriceCents, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListByUser returns the user's reservations, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, selectReservation+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.EventID, &res.Status, &res.PaymentStatus,
			&res.TotalAmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// TransitionTx performs a guarded status change and reports whether
// the row actually moved. The WHERE re-check on the current status
// defends against races with payment confirmation and double
// cancellation.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, fromStatus, toStatus, paymentStatus string) (bool, error) {
	const q = `UPDATE reservations
               SET status = ?, payment_status = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, toStatus, paymentStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SelectExpiredTx returns up to limit pending, unpaid reservations
// whose hold window has passed, row-locked with SKIP LOCKED so the
// reaper never contends with a concurrent payment-confirmation
// transaction touching the same rows.
func (r *ReservationRepo) SelectExpiredTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]model.Reservation, error) {
	q := selectReservation + `
          WHERE status = ? AND payment_status = ? AND expires_at < ?
          ORDER BY expires_at
          LIMIT ? FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, q,
		model.ReservationStatusPending, model.PaymentStatusPending,
		now.UTC().Format("2006-01-02 15:04:05"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.EventID, &res.Status, &res.PaymentStatus,
			&res.TotalAmountCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
