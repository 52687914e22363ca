// Package booking is the application core. It validates requests, computes
// availability, and drives the booking lifecycle against the stores, mapping
// every failure to a typed Error so the HTTP layer stays dumb.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/bookwell/internal/availability"
	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/storage"
	"github.com/bookwell/bookwell/internal/timezone"
	"github.com/bookwell/bookwell/internal/token"
)

type EventTypeStore interface {
	Get(ctx context.Context, id int64) (model.EventType, error)
}

type ScheduleStore interface {
	ListRules(ctx context.Context, eventTypeID int64) ([]model.AvailabilityRule, error)
	ListExceptions(ctx context.Context, eventTypeID int64, fromDate, toDate string) ([]model.AvailabilityException, error)
}

type BookingStore interface {
	GetByUUID(ctx context.Context, uuid string) (model.Booking, error)
	ListLive(ctx context.Context, eventTypeID int64, from, to time.Time) ([]model.Booking, error)
	Create(ctx context.Context, b *model.Booking) error
	Reschedule(ctx context.Context, uuid string, expectVersion int, newStart, newEnd time.Time) (model.Booking, error)
	Cancel(ctx context.Context, uuid string, expectVersion int, reason string) (model.Booking, error)
}

// Notifier receives lifecycle events after the database transaction has
// committed. Implementations must not block the caller.
type Notifier interface {
	BookingCreated(b model.Booking)
	BookingRescheduled(b model.Booking)
	BookingCancelled(b model.Booking)
}

type Service struct {
	eventTypes EventTypeStore
	schedules  ScheduleStore
	bookings   BookingStore
	tokens     *token.Minter
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(eventTypes EventTypeStore, schedules ScheduleStore, bookings BookingStore, tokens *token.Minter, logger *slog.Logger) *Service {
	return &Service{
		eventTypes: eventTypes,
		schedules:  schedules,
		bookings:   bookings,
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

// SetNotifier attaches an optional lifecycle notifier.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetNow overrides the clock. Tests only.
func (s *Service) SetNow(fn func() time.Time) { s.now = fn }

// AvailableSlots returns the open slots for an event type over the inclusive
// civil date range [startDate, endDate], rendered in tzName for display.
func (s *Service) AvailableSlots(ctx context.Context, eventTypeID int64, startDate, endDate, tzName string) ([]model.Slot, error) {
	first, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, errf(KindInvalidDateRange, "start_date %q is not a valid date", startDate)
	}
	last, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, errf(KindInvalidDateRange, "end_date %q is not a valid date", endDate)
	}
	if !first.Before(last) {
		return nil, errf(KindInvalidDateRange, "start_date must be before end_date")
	}

	displayLoc, err := timezone.Load(tzName)
	if err != nil {
		return nil, errf(KindInvalidTimezone, "unknown timezone %q", tzName)
	}

	et, err := s.activeEventType(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}

	slots, live, err := s.candidateSlots(ctx, et, startDate, endDate, displayLoc)
	if err != nil {
		return nil, err
	}

	open := make([]model.Slot, 0, len(slots))
	for _, sl := range slots {
		if availability.IsAvailable(et, sl.StartUTC, sl.EndUTC, live, "") {
			open = append(open, sl)
		}
	}
	return open, nil
}

type CreateRequest struct {
	EventTypeID int64
	StartUTC    time.Time
	EndUTC      time.Time
	Name        string
	Email       string
	Timezone    string
	Notes       string
}

type CreateResult struct {
	Booking         model.Booking
	RescheduleToken string
	CancelToken     string
}

// Create books a slot. The requested window must exactly match a currently
// open slot; concurrent takers of the same window lose with SlotUnavailable.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := validateInvitee(req.Name, req.Email); err != nil {
		return nil, err
	}
	if req.Timezone != "" {
		if _, err := timezone.Load(req.Timezone); err != nil {
			return nil, errf(KindInvalidTimezone, "unknown timezone %q", req.Timezone)
		}
	}
	if !req.StartUTC.Before(req.EndUTC) {
		return nil, errf(KindValidation, "start_time must be before end_time")
	}

	et, err := s.activeEventType(ctx, req.EventTypeID)
	if err != nil {
		return nil, err
	}
	if req.EndUTC.Sub(req.StartUTC) != et.Duration() {
		return nil, errf(KindDurationMismatch, "window must be exactly %d minutes", et.DurationMinutes)
	}

	start := req.StartUTC.UTC()
	end := req.EndUTC.UTC()
	if err := s.requireOpenSlot(ctx, et, start, end, ""); err != nil {
		return nil, err
	}

	b := model.Booking{
		UUID:         uuid.NewString(),
		EventTypeID:  et.ID,
		StartTime:    start,
		EndTime:      end,
		Status:       model.StatusConfirmed,
		TokenVersion: 1,
		Invitee: model.Invitee{
			Name:     strings.TrimSpace(req.Name),
			Email:    strings.TrimSpace(req.Email),
			Timezone: req.Timezone,
			Notes:    req.Notes,
		},
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		return nil, s.mapStoreErr(err)
	}

	res, err := s.withTokens(b)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "booking created",
		"booking_uuid", b.UUID, "event_type_id", et.ID, "start", start)
	if s.notifier != nil {
		s.notifier.BookingCreated(b)
	}
	return res, nil
}

// Reschedule moves a confirmed booking to a new window. The token must carry
// the reschedule action, match the booking, and carry its current token
// version; success bumps the version, retiring all previously issued tokens.
func (s *Service) Reschedule(ctx context.Context, bookingUUID, rawToken string, newStart, newEnd time.Time) (*CreateResult, error) {
	claims, err := s.tokens.Verify(rawToken, token.ActionReschedule)
	if err != nil {
		return nil, errf(KindInvalidToken, "token rejected")
	}
	if claims.BookingUUID != bookingUUID {
		return nil, errf(KindInvalidToken, "token does not match booking")
	}
	return s.reschedule(ctx, bookingUUID, claims.Version, newStart, newEnd)
}

// AdminReschedule moves a booking without an action token.
func (s *Service) AdminReschedule(ctx context.Context, bookingUUID string, newStart, newEnd time.Time) (*CreateResult, error) {
	return s.reschedule(ctx, bookingUUID, 0, newStart, newEnd)
}

func (s *Service) reschedule(ctx context.Context, bookingUUID string, expectVersion int, newStart, newEnd time.Time) (*CreateResult, error) {
	if !newStart.Before(newEnd) {
		return nil, errf(KindValidation, "start_time must be before end_time")
	}

	b, err := s.bookings.GetByUUID(ctx, bookingUUID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	if b.Status == model.StatusCancelled {
		return nil, errf(KindNotConfirmed, "booking %s is cancelled", bookingUUID)
	}
	if expectVersion > 0 && expectVersion != b.TokenVersion {
		return nil, errf(KindInvalidToken, "token superseded")
	}

	et, err := s.eventType(ctx, b.EventTypeID)
	if err != nil {
		return nil, err
	}
	if newEnd.Sub(newStart) != et.Duration() {
		return nil, errf(KindDurationMismatch, "window must be exactly %d minutes", et.DurationMinutes)
	}

	start := newStart.UTC()
	end := newEnd.UTC()
	if err := s.requireOpenSlot(ctx, et, start, end, b.UUID); err != nil {
		return nil, err
	}

	updated, err := s.bookings.Reschedule(ctx, bookingUUID, expectVersion, start, end)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	res, err := s.withTokens(updated)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "booking rescheduled",
		"booking_uuid", bookingUUID, "start", start)
	if s.notifier != nil {
		s.notifier.BookingRescheduled(updated)
	}
	return res, nil
}

// Cancel cancels a booking via its action token. Cancelling an already
// cancelled booking reports AlreadyCancelled regardless of token version, so
// a replayed cancel token is answered truthfully rather than rejected.
func (s *Service) Cancel(ctx context.Context, bookingUUID, rawToken, reason string) (model.Booking, error) {
	claims, err := s.tokens.Verify(rawToken, token.ActionCancel)
	if err != nil {
		return model.Booking{}, errf(KindInvalidToken, "token rejected")
	}
	if claims.BookingUUID != bookingUUID {
		return model.Booking{}, errf(KindInvalidToken, "token does not match booking")
	}
	return s.cancel(ctx, bookingUUID, claims.Version, reason)
}

// AdminCancel cancels a booking without an action token.
func (s *Service) AdminCancel(ctx context.Context, bookingUUID, reason string) (model.Booking, error) {
	return s.cancel(ctx, bookingUUID, 0, reason)
}

func (s *Service) cancel(ctx context.Context, bookingUUID string, expectVersion int, reason string) (model.Booking, error) {
	b, err := s.bookings.GetByUUID(ctx, bookingUUID)
	if err != nil {
		return model.Booking{}, s.mapStoreErr(err)
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, errf(KindAlreadyCancelled, "booking %s is already cancelled", bookingUUID)
	}
	if expectVersion > 0 && expectVersion != b.TokenVersion {
		return model.Booking{}, errf(KindInvalidToken, "token superseded")
	}

	cancelled, err := s.bookings.Cancel(ctx, bookingUUID, expectVersion, reason)
	if err != nil {
		return model.Booking{}, s.mapStoreErr(err)
	}
	s.logger.InfoContext(ctx, "booking cancelled", "booking_uuid", bookingUUID)
	if s.notifier != nil {
		s.notifier.BookingCancelled(cancelled)
	}
	return cancelled, nil
}

// Get returns a booking by public UUID.
func (s *Service) Get(ctx context.Context, bookingUUID string) (model.Booking, error) {
	b, err := s.bookings.GetByUUID(ctx, bookingUUID)
	if err != nil {
		return model.Booking{}, s.mapStoreErr(err)
	}
	return b, nil
}

// requireOpenSlot regenerates slots around the requested window and rejects
// the request unless it matches one of them and is free of conflicts. The
// store transaction re-checks conflicts under lock; this pass catches bad
// windows before a transaction is opened.
func (s *Service) requireOpenSlot(ctx context.Context, et model.EventType, start, end time.Time, excludeUUID string) error {
	// Rules in zones far from UTC place slots on neighbouring UTC dates, so
	// probe one civil day either side of the window's UTC date.
	day := start.UTC().Truncate(24 * time.Hour)
	startDate := day.AddDate(0, 0, -1).Format("2006-01-02")
	endDate := day.AddDate(0, 0, 1).Format("2006-01-02")

	slots, live, err := s.candidateSlots(ctx, et, startDate, endDate, time.UTC)
	if err != nil {
		return err
	}
	for _, sl := range slots {
		if !sl.StartUTC.Equal(start) || !sl.EndUTC.Equal(end) {
			continue
		}
		if !availability.IsAvailable(et, start, end, live, excludeUUID) {
			return errf(KindSlotUnavailable, "slot %s is taken", start.Format(time.RFC3339))
		}
		return nil
	}
	return errf(KindSlotUnavailable, "window %s is not an offered slot", start.Format(time.RFC3339))
}

// candidateSlots generates the raw slots for a date range together with the
// live bookings needed to conflict-filter them.
func (s *Service) candidateSlots(ctx context.Context, et model.EventType, startDate, endDate string, displayLoc *time.Location) ([]model.Slot, []model.Booking, error) {
	rules, err := s.schedules.ListRules(ctx, et.ID)
	if err != nil {
		return nil, nil, s.mapStoreErr(err)
	}
	exceptions, err := s.schedules.ListExceptions(ctx, et.ID, startDate, endDate)
	if err != nil {
		return nil, nil, s.mapStoreErr(err)
	}

	slots, err := availability.GenerateSlots(et, rules, exceptions, startDate, endDate, displayLoc, s.now())
	if err != nil {
		if errors.Is(err, timezone.ErrUnknownZone) {
			return nil, nil, errf(KindInvalidTimezone, "availability rule has an unknown timezone")
		}
		return nil, nil, err
	}

	// Pad the lookup window so bookings whose buffers reach into the range
	// are seen.
	first, _ := time.Parse("2006-01-02", startDate)
	last, _ := time.Parse("2006-01-02", endDate)
	from := first.Add(-48 * time.Hour)
	to := last.Add(72 * time.Hour)
	live, err := s.bookings.ListLive(ctx, et.ID, from, to)
	if err != nil {
		return nil, nil, s.mapStoreErr(err)
	}
	return slots, live, nil
}

func (s *Service) withTokens(b model.Booking) (*CreateResult, error) {
	rt, err := s.tokens.Mint(b.UUID, token.ActionReschedule, b.TokenVersion)
	if err != nil {
		return nil, err
	}
	ct, err := s.tokens.Mint(b.UUID, token.ActionCancel, b.TokenVersion)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Booking: b, RescheduleToken: rt, CancelToken: ct}, nil
}

func (s *Service) activeEventType(ctx context.Context, id int64) (model.EventType, error) {
	et, err := s.eventType(ctx, id)
	if err != nil {
		return model.EventType{}, err
	}
	if !et.Active {
		return model.EventType{}, errf(KindEventTypeNotFound, "event type %d not found", id)
	}
	return et, nil
}

func (s *Service) eventType(ctx context.Context, id int64) (model.EventType, error) {
	et, err := s.eventTypes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.EventType{}, errf(KindEventTypeNotFound, "event type %d not found", id)
		}
		return model.EventType{}, err
	}
	return et, nil
}

func (s *Service) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errf(KindBookingNotFound, "booking not found")
	case errors.Is(err, storage.ErrConflict):
		return errf(KindSlotUnavailable, "slot is taken")
	case errors.Is(err, storage.ErrAlreadyCancelled):
		return errf(KindAlreadyCancelled, "booking is already cancelled")
	case errors.Is(err, storage.ErrCancelled):
		return errf(KindNotConfirmed, "booking is cancelled")
	case errors.Is(err, storage.ErrStaleToken):
		return errf(KindInvalidToken, "token superseded")
	}
	return err
}

func validateInvitee(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return errf(KindValidation, "name is required")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return errf(KindValidation, "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errf(KindValidation, "email %q is not valid", email)
	}
	return nil
}
