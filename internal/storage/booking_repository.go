package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwell/bookwell/internal/availability"
	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/outbox"
	"github.com/bookwell/bookwell/libs/db"
)

const bookingColumns = `
	b.id, b.uuid, b.event_type_id, b.start_time, b.end_time, b.status,
	b.token_version, COALESCE(b.cancellation_reason, ''), b.cancelled_at,
	b.created_at, b.updated_at,
	COALESCE(i.name, ''), COALESCE(i.email, ''), COALESCE(i.timezone, ''), COALESCE(i.notes, '')`

// BookingRepository owns every mutation of the bookings table. Each mutating
// method runs one transaction that locks the event type row first, so
// concurrent requests against the same event type serialize; the exclusion
// constraint on (event_type_id, time range) backstops any path that slips
// past the in-transaction overlap check.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

func (r *BookingRepository) GetByUUID(ctx context.Context, uuid string) (model.Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		LEFT JOIN invitees i ON i.booking_id = b.id
		WHERE b.uuid = $1
	`, uuid)
	return scanBooking(row)
}

// ListLive returns confirmed and rescheduled bookings intersecting
// [from, to) for one event type. Cancelled bookings never block.
func (r *BookingRepository) ListLive(ctx context.Context, eventTypeID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		LEFT JOIN invitees i ON i.booking_id = b.id
		WHERE b.event_type_id = $1
			AND b.status IN ('confirmed', 'rescheduled')
			AND b.start_time < $3
			AND b.end_time > $2
		ORDER BY b.start_time
	`, eventTypeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list live bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *BookingRepository) List(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		LEFT JOIN invitees i ON i.booking_id = b.id
		ORDER BY b.start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}

// Create inserts the booking and its invitee atomically, re-running the
// buffer-overlap and quota checks against committed state under the event
// type lock. A lost race comes back as ErrConflict.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	et, err := getForUpdate(ctx, tx, b.EventTypeID)
	if err != nil {
		return err
	}

	if err := r.checkWindow(ctx, tx, et, b.StartTime, b.EndTime, ""); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (uuid, event_type_id, start_time, end_time, status, token_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, b.UUID, b.EventTypeID, b.StartTime, b.EndTime, b.Status, b.TokenVersion).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isPgConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO invitees (booking_id, name, email, timezone, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.Invitee.Name, b.Invitee.Email, b.Invitee.Timezone, b.Invitee.Notes)
	if err != nil {
		return fmt.Errorf("insert invitee: %w", err)
	}

	if err := r.insertEvent(ctx, tx, outbox.EventBookingCreated, *b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Reschedule moves a live booking to a new window in place: start/end are
// overwritten, status flips to rescheduled, and the token version bumps so
// previously issued action tokens stop verifying. expectVersion <= 0 skips
// the version check (admin path).
func (r *BookingRepository) Reschedule(ctx context.Context, uuid string, expectVersion int, newStart, newEnd time.Time) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := getBookingForUpdate(ctx, tx, uuid)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, ErrCancelled
	}
	if expectVersion > 0 && b.TokenVersion != expectVersion {
		return model.Booking{}, ErrStaleToken
	}

	et, err := getForUpdate(ctx, tx, b.EventTypeID)
	if err != nil {
		return model.Booking{}, err
	}
	if err := r.checkWindow(ctx, tx, et, newStart, newEnd, uuid); err != nil {
		return model.Booking{}, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET start_time = $2, end_time = $3, status = 'rescheduled',
			token_version = token_version + 1, updated_at = now()
		WHERE uuid = $1
		RETURNING start_time, end_time, status, token_version, updated_at
	`, uuid, newStart, newEnd).Scan(&b.StartTime, &b.EndTime, &b.Status, &b.TokenVersion, &b.UpdatedAt)
	if err != nil {
		if isPgConflict(err) {
			return model.Booking{}, ErrConflict
		}
		return model.Booking{}, fmt.Errorf("update booking: %w", err)
	}

	if err := r.insertEvent(ctx, tx, outbox.EventBookingRescheduled, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// Cancel is a soft transition into the terminal state. Cancelling twice is
// detected, not absorbed: the second call gets ErrAlreadyCancelled.
func (r *BookingRepository) Cancel(ctx context.Context, uuid string, expectVersion int, reason string) (model.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := getBookingForUpdate(ctx, tx, uuid)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, ErrAlreadyCancelled
	}
	if expectVersion > 0 && b.TokenVersion != expectVersion {
		return model.Booking{}, ErrStaleToken
	}

	err = tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = now(), cancellation_reason = $2,
			token_version = token_version + 1, updated_at = now()
		WHERE uuid = $1
		RETURNING status, token_version, cancelled_at, updated_at
	`, uuid, reason).Scan(&b.Status, &b.TokenVersion, &b.CancelledAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, fmt.Errorf("cancel booking: %w", err)
	}
	b.CancelReason = reason

	if err := r.insertEvent(ctx, tx, outbox.EventBookingCancelled, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// checkWindow re-runs the conflict filter against the latest committed state,
// inside the caller's transaction and behind the event type lock.
func (r *BookingRepository) checkWindow(ctx context.Context, tx pgx.Tx, et model.EventType, start, end time.Time, excludeUUID string) error {
	expandedStart := start.Add(-et.BufferBefore())
	expandedEnd := end.Add(et.BufferAfter())

	rows, err := tx.Query(ctx, `
		SELECT uuid, start_time, end_time, status
		FROM bookings
		WHERE event_type_id = $1
			AND status IN ('confirmed', 'rescheduled')
			AND start_time < $3
			AND end_time > $2
	`, et.ID, expandedStart, expandedEnd)
	if err != nil {
		return fmt.Errorf("query overlapping bookings: %w", err)
	}
	var live []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.UUID, &b.StartTime, &b.EndTime, &b.Status); err != nil {
			rows.Close()
			return fmt.Errorf("scan overlapping booking: %w", err)
		}
		live = append(live, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if availability.BufferOverlaps(et, start, end, live, excludeUUID) {
		return ErrConflict
	}

	if et.MaxBookingsPerDay > 0 {
		y, m, d := start.UTC().Date()
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		var count int
		err := tx.QueryRow(ctx, `
			SELECT count(*)
			FROM bookings
			WHERE event_type_id = $1
				AND status = 'confirmed'
				AND uuid::text <> $2
				AND start_time >= $3
				AND start_time < $4
		`, et.ID, excludeUUID, dayStart, dayStart.Add(24*time.Hour)).Scan(&count)
		if err != nil {
			return fmt.Errorf("count daily bookings: %w", err)
		}
		if count >= et.MaxBookingsPerDay {
			return ErrConflict
		}
	}
	return nil
}

func (r *BookingRepository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, b model.Booking) error {
	payload, err := json.Marshal(map[string]any{
		"booking_uuid":  b.UUID,
		"event_type_id": b.EventTypeID,
		"start_time":    b.StartTime.UTC().Format(time.RFC3339),
		"end_time":      b.EndTime.UTC().Format(time.RFC3339),
		"status":        b.Status,
		"invitee_email": b.Invitee.Email,
	})
	if err != nil {
		return fmt.Errorf("build event payload: %w", err)
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.UUID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func getBookingForUpdate(ctx context.Context, tx pgx.Tx, uuid string) (model.Booking, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		LEFT JOIN invitees i ON i.booking_id = b.id
		WHERE b.uuid = $1
		FOR UPDATE OF b
	`, uuid)
	return scanBooking(row)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.UUID,
		&b.EventTypeID,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.TokenVersion,
		&b.CancelReason,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.Invitee.Name,
		&b.Invitee.Email,
		&b.Invitee.Timezone,
		&b.Invitee.Notes,
	)
	if err != nil {
		if isNoRows(err) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, fmt.Errorf("scan booking: %w", err)
	}
	return b, nil
}
