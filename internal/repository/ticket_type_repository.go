package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ticketgate/onsale/internal/model"
)

// TicketTypeRepo provides data access to the ticket_types table. The
// available_quantity column is the authoritative counter; it only
// moves through the guarded decrement/increment below, inside a
// transaction, which is what keeps the conservation invariant intact.
type TicketTypeRepo struct {
	db *sql.DB
}

// NewTicketTypeRepo returns a TicketTypeRepo bound to the provided database.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

// ListByEvent returns the event's ticket tiers for the public
// availability view.
func (r *TicketTypeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.TicketType, error) {
	const q = `SELECT id, event_id, name, price_cents, total_quantity, available_quantity, created_at, updated_at
               FROM ticket_types WHERE event_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiers []model.TicketType
	for rows.Next() {
		var t model.TicketType
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents,
			&t.TotalQuantity, &t.AvailableQuantity, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// GetForUpdateTx re-selects the targeted tiers with a row lock.
func (r *TicketTypeRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, eventID uint64, ids []uint64) ([]model.TicketType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT id, event_id, name, price_cents, total_quantity, available_quantity, created_at, updated_at
          FROM ticket_types WHERE event_id = ? AND id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, eventID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiers []model.TicketType
	for rows.Next() {
		var t model.TicketType
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents,
			&t.TotalQuantity, &t.AvailableQuantity, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// DecrementAvailableTx takes quantity units from a tier. The WHERE
// guard refuses to go below zero; zero rows affected means another
// buyer got there first and the caller sees ErrInsufficientQuantity.
func (r *TicketTypeRepo) DecrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, quantity uint32) error {
	const q = `UPDATE ticket_types
               SET available_quantity = available_quantity - ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ? AND available_quantity >= ?`
	res, err := tx.ExecContext(ctx, q, quantity, id, quantity)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ticket type %d: %w", id, model.ErrInsufficientQuantity)
	}
	return nil
}

// IncrementAvailableTx returns quantity units to a tier, capped at the
// total so a double release can never mint inventory.
func (r *TicketTypeRepo) IncrementAvailableTx(ctx context.Context, tx *sql.Tx, id uint64, quantity uint32) error {
	const q = `UPDATE ticket_types
               SET available_quantity = LEAST(total_quantity, available_quantity + ?), updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, quantity, id)
	return err
}
