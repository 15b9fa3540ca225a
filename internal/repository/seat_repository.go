package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ticketgate/onsale/internal/model"
)

// SeatRepo provides data access to the seats table. Status transitions
// happen only through the guarded Tx methods so a seat can never be
// moved out of a state it is not in.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// ListByEvent returns all seats of an event ordered by section, row
// and number, for the public availability view.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	const q = `SELECT id, event_id, section, row_label, seat_number, price_cents, status, created_at, updated_at
               FROM seats WHERE event_id = ?
               ORDER BY section, row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Section, &s.RowLabel, &s.SeatNumber,
			&s.PriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// GetForUpdateTx re-selects the targeted seats with a row lock. The
// caller compares the returned rows against its expectations; missing
// or wrong-status rows mean the advisory lock lied (it may) and the
// attempt must roll back. Seat IDs are returned in the order the
// database yields them.
func (r *SeatRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, eventID uint64, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, event_id, section, row_label, seat_number, price_cents, status, created_at, updated_at
          FROM seats WHERE event_id = ? AND id IN (` + placeholders(len(seatIDs)) + `) FOR UPDATE`
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, eventID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Section, &s.RowLabel, &s.SeatNumber,
			&s.PriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// UpdateStatusTx transitions the given seats from one status to
// another and returns how many rows actually moved. The WHERE guard on
// the current status makes the transition a compare-and-set; callers
// treat a short count as a conflict.
func (r *SeatRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, from, to string) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = ?, updated_at = UTC_TIMESTAMP()
          WHERE status = ? AND id IN (` + placeholders(len(seatIDs)) + `)`
	args := make([]interface{}, 0, len(seatIDs)+2)
	args = append(args, to, from)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// placeholders renders "?, ?, ..." for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
