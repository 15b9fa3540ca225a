// Package repository provides data access to the relational store. All
// writes that touch inventory run inside caller-supplied transactions;
// methods suffixed Tx expect the caller to commit or roll back. The
// rows here are the single source of truth that coordination state in
// Redis is always re-validated against.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ticketgate/onsale/internal/model"
)

// EventRepo reads events. Event rows are owned by the external
// event-management service; this core never writes them.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns an EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *EventRepo) DB() *sql.DB { return r.db }

// GetByID returns one event or model.ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT id, name, status, capacity_threshold, sale_starts_at, sale_ends_at, created_at, updated_at
               FROM events WHERE id = ?`
	var e model.Event
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.Name, &e.Status, &e.CapacityThreshold,
		&e.SaleStartsAt, &e.SaleEndsAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
