package storage

import (
	"context"
	"fmt"

	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/libs/db"
)

// ScheduleRepository is the read/write side of the recurring rules and
// date-specific exceptions that feed slot generation.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) ListRules(ctx context.Context, eventTypeID int64) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type_id, weekday, start_time, end_time, timezone, active
		FROM availability_rules
		WHERE event_type_id = $1
		ORDER BY weekday, start_time
	`, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.ID, &rule.EventTypeID, &rule.Weekday, &rule.StartTime, &rule.EndTime, &rule.Timezone, &rule.Active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) ListExceptions(ctx context.Context, eventTypeID int64, fromDate, toDate string) ([]model.AvailabilityException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type_id, to_char(date, 'YYYY-MM-DD'),
			kind, COALESCE(start_time, ''), COALESCE(end_time, ''),
			COALESCE(timezone, ''), COALESCE(reason, '')
		FROM availability_exceptions
		WHERE event_type_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date
	`, eventTypeID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	defer rows.Close()

	var out []model.AvailabilityException
	for rows.Next() {
		var ex model.AvailabilityException
		if err := rows.Scan(&ex.ID, &ex.EventTypeID, &ex.Date, &ex.Kind, &ex.StartTime, &ex.EndTime, &ex.Timezone, &ex.Reason); err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) CreateRule(ctx context.Context, rule *model.AvailabilityRule) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (event_type_id, weekday, start_time, end_time, timezone, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, rule.EventTypeID, rule.Weekday, rule.StartTime, rule.EndTime, rule.Timezone, rule.Active).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) DeleteRule(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertException writes the single meaningful exception for a date. The
// unique index on (event_type_id, date) makes a second write replace the
// first rather than accumulate.
func (r *ScheduleRepository) UpsertException(ctx context.Context, ex *model.AvailabilityException) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO availability_exceptions (event_type_id, date, kind, start_time, end_time, timezone, reason)
		VALUES ($1, $2::date, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (event_type_id, date) DO UPDATE
		SET kind = EXCLUDED.kind,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			timezone = EXCLUDED.timezone,
			reason = EXCLUDED.reason
		RETURNING id
	`, ex.EventTypeID, ex.Date, ex.Kind, ex.StartTime, ex.EndTime, ex.Timezone, ex.Reason).Scan(&ex.ID)
	if err != nil {
		return fmt.Errorf("upsert exception: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) DeleteException(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
