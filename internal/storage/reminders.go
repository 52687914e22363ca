package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwell/bookwell/internal/model"
)

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// FetchDueReminders returns live bookings starting within the lead window
// whose reminder has not gone out yet. Rows are locked with SKIP LOCKED so
// overlapping sweeps never double-send.
func (r *BookingRepository) FetchDueReminders(ctx context.Context, tx pgx.Tx, lead time.Duration, limit int) ([]model.Booking, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		LEFT JOIN invitees i ON i.booking_id = b.id
		WHERE b.status IN ('confirmed', 'rescheduled')
			AND b.reminder_sent_at IS NULL
			AND b.start_time > now()
			AND b.start_time <= now() + $1
		ORDER BY b.start_time
		LIMIT $2
		FOR UPDATE OF b SKIP LOCKED
	`, lead, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due reminders: %w", err)
	}
	return collectBookings(rows)
}

func (r *BookingRepository) MarkReminded(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE bookings SET reminder_sent_at = now() WHERE id = ANY($1)
	`, ids)
	return err
}
