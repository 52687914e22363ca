// Package reminder sweeps for upcoming bookings and enqueues reminder events
// on the outbox. Each sweep marks what it picked up inside the same
// transaction, so a booking is reminded at most once even with several
// instances running.
package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/outbox"
	"github.com/bookwell/bookwell/internal/storage"
)

type Worker struct {
	bookings  *storage.BookingRepository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	lead      time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	Lead      time.Duration
	BatchSize int
}

func NewWorker(bookings *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		bookings:  bookings,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		lead:      cfg.Lead,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error("reminder sweep failed", "err", err)
			}
		}
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	tx, err := w.bookings.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.bookings.FetchDueReminders(ctx, tx, w.lead, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var ids []int64
	for _, b := range due {
		payload, err := reminderPayload(b)
		if err != nil {
			w.logger.Error("reminder payload", "booking_uuid", b.UUID, "err", err)
			continue
		}
		if err := w.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "booking",
			AggregateID:   b.UUID,
			EventType:     outbox.EventReminderDue,
			Payload:       payload,
		}); err != nil {
			return err
		}
		ids = append(ids, b.ID)
	}

	if err := w.bookings.MarkReminded(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	w.logger.Info("reminders enqueued", "count", len(ids))
	return nil
}

func reminderPayload(b model.Booking) ([]byte, error) {
	return json.Marshal(map[string]any{
		"booking_uuid":  b.UUID,
		"event_type_id": b.EventTypeID,
		"start_time":    b.StartTime.UTC().Format(time.RFC3339),
		"end_time":      b.EndTime.UTC().Format(time.RFC3339),
		"invitee_email": b.Invitee.Email,
		"invitee_name":  b.Invitee.Name,
	})
}
