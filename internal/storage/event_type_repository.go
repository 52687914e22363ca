package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/libs/db"
)

const eventTypeColumns = `
	id, name, duration_minutes, location, active, max_bookings_per_day,
	buffer_before_minutes, buffer_after_minutes, min_lead_time_hours,
	max_advance_days, created_at, updated_at`

type EventTypeRepository struct {
	pool *db.Pool
}

func NewEventTypeRepository(pool *db.Pool) *EventTypeRepository {
	return &EventTypeRepository{pool: pool}
}

func (r *EventTypeRepository) Get(ctx context.Context, id int64) (model.EventType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE id = $1`, id)
	return scanEventType(row)
}

// getForUpdate locks the event type row inside tx, serializing all booking
// mutations for one event type behind this lock.
func getForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.EventType, error) {
	row := tx.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE id = $1 FOR UPDATE`, id)
	return scanEventType(row)
}

func (r *EventTypeRepository) List(ctx context.Context, includeInactive bool) ([]model.EventType, error) {
	query := `SELECT ` + eventTypeColumns + ` FROM event_types`
	if !includeInactive {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	defer rows.Close()

	var out []model.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (r *EventTypeRepository) Create(ctx context.Context, et *model.EventType) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO event_types
			(name, duration_minutes, location, active, max_bookings_per_day,
			 buffer_before_minutes, buffer_after_minutes, min_lead_time_hours, max_advance_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, et.Name, et.DurationMinutes, et.Location, et.Active, et.MaxBookingsPerDay,
		et.BufferBeforeMinutes, et.BufferAfterMinutes, et.MinLeadTimeHours, et.MaxAdvanceDays,
	).Scan(&et.ID, &et.CreatedAt, &et.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create event type: %w", err)
	}
	return nil
}

func (r *EventTypeRepository) Update(ctx context.Context, et model.EventType) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE event_types
		SET name = $2, duration_minutes = $3, location = $4, active = $5,
			max_bookings_per_day = $6, buffer_before_minutes = $7,
			buffer_after_minutes = $8, min_lead_time_hours = $9,
			max_advance_days = $10, updated_at = now()
		WHERE id = $1
	`, et.ID, et.Name, et.DurationMinutes, et.Location, et.Active, et.MaxBookingsPerDay,
		et.BufferBeforeMinutes, et.BufferAfterMinutes, et.MinLeadTimeHours, et.MaxAdvanceDays)
	if err != nil {
		return fmt.Errorf("update event type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-disables an event type. Event types are never hard-deleted;
// existing bookings keep a valid reference.
func (r *EventTypeRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE event_types SET active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate event type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEventType(row pgx.Row) (model.EventType, error) {
	var et model.EventType
	err := row.Scan(
		&et.ID,
		&et.Name,
		&et.DurationMinutes,
		&et.Location,
		&et.Active,
		&et.MaxBookingsPerDay,
		&et.BufferBeforeMinutes,
		&et.BufferAfterMinutes,
		&et.MinLeadTimeHours,
		&et.MaxAdvanceDays,
		&et.CreatedAt,
		&et.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return model.EventType{}, ErrNotFound
		}
		return model.EventType{}, fmt.Errorf("scan event type: %w", err)
	}
	return et, nil
}
