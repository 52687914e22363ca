package booking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/storage"
	"github.com/bookwell/bookwell/internal/token"
)

type fakeEventTypes struct {
	et model.EventType
}

func (f *fakeEventTypes) Get(_ context.Context, id int64) (model.EventType, error) {
	if id != f.et.ID {
		return model.EventType{}, storage.ErrNotFound
	}
	return f.et, nil
}

type fakeSchedules struct {
	rules      []model.AvailabilityRule
	exceptions []model.AvailabilityException
}

func (f *fakeSchedules) ListRules(context.Context, int64) ([]model.AvailabilityRule, error) {
	return f.rules, nil
}

func (f *fakeSchedules) ListExceptions(context.Context, int64, string, string) ([]model.AvailabilityException, error) {
	return f.exceptions, nil
}

type fakeBookings struct {
	byUUID    map[string]model.Booking
	nextID    int64
	createErr error
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{byUUID: make(map[string]model.Booking)}
}

func (f *fakeBookings) GetByUUID(_ context.Context, uuid string) (model.Booking, error) {
	b, ok := f.byUUID[uuid]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) ListLive(_ context.Context, eventTypeID int64, from, to time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.byUUID {
		if b.EventTypeID != eventTypeID || !b.Status.Blocks() {
			continue
		}
		if b.StartTime.Before(to) && from.Before(b.EndTime) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	b.ID = f.nextID
	b.CreatedAt = time.Now().UTC()
	f.byUUID[b.UUID] = *b
	return nil
}

func (f *fakeBookings) Reschedule(_ context.Context, uuid string, expectVersion int, newStart, newEnd time.Time) (model.Booking, error) {
	b, ok := f.byUUID[uuid]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, storage.ErrCancelled
	}
	if expectVersion > 0 && expectVersion != b.TokenVersion {
		return model.Booking{}, storage.ErrStaleToken
	}
	b.StartTime = newStart
	b.EndTime = newEnd
	b.Status = model.StatusRescheduled
	b.TokenVersion++
	f.byUUID[uuid] = b
	return b, nil
}

func (f *fakeBookings) Cancel(_ context.Context, uuid string, expectVersion int, reason string) (model.Booking, error) {
	b, ok := f.byUUID[uuid]
	if !ok {
		return model.Booking{}, storage.ErrNotFound
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, storage.ErrAlreadyCancelled
	}
	if expectVersion > 0 && expectVersion != b.TokenVersion {
		return model.Booking{}, storage.ErrStaleToken
	}
	now := time.Now().UTC()
	b.Status = model.StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	b.TokenVersion++
	f.byUUID[uuid] = b
	return b, nil
}

// Fixture: a 30 minute event type open 09:00-17:00 UTC on Mondays.
// 2025-06-02 is a Monday; "now" is the Sunday before.
func newTestService(t *testing.T) (*Service, *fakeBookings) {
	t.Helper()
	eventTypes := &fakeEventTypes{et: model.EventType{
		ID: 1, Name: "Intro call", DurationMinutes: 30, Active: true,
	}}
	schedules := &fakeSchedules{rules: []model.AvailabilityRule{
		{ID: 1, EventTypeID: 1, Weekday: 1, StartTime: "09:00", EndTime: "17:00", Timezone: "UTC", Active: true},
	}}
	bookings := newFakeBookings()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(eventTypes, schedules, bookings, token.NewMinter("test-secret", time.Hour), logger)
	svc.SetNow(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, bookings
}

func validCreate() CreateRequest {
	return CreateRequest{
		EventTypeID: 1,
		StartUTC:    time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndUTC:      time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Timezone:    "Europe/London",
	}
}

func TestCreate_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", res.Booking.Status)
	}
	if res.Booking.TokenVersion != 1 {
		t.Fatalf("expected token version 1, got %d", res.Booking.TokenVersion)
	}
	if res.Booking.UUID == "" {
		t.Fatal("expected a booking uuid")
	}
	if res.RescheduleToken == "" || res.CancelToken == "" {
		t.Fatal("expected action tokens")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
		want   Kind
	}{
		{"missing name", func(r *CreateRequest) { r.Name = " " }, KindValidation},
		{"missing email", func(r *CreateRequest) { r.Email = "" }, KindValidation},
		{"malformed email", func(r *CreateRequest) { r.Email = "not-an-email" }, KindValidation},
		{"inverted window", func(r *CreateRequest) { r.StartUTC, r.EndUTC = r.EndUTC, r.StartUTC }, KindValidation},
		{"bad timezone", func(r *CreateRequest) { r.Timezone = "Nowhere/Nope" }, KindInvalidTimezone},
	}
	for _, tc := range cases {
		req := validCreate()
		tc.mutate(&req)
		_, err := svc.Create(context.Background(), req)
		if KindOf(err) != tc.want {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreate_UnknownEventType(t *testing.T) {
	svc, _ := newTestService(t)
	req := validCreate()
	req.EventTypeID = 99

	_, err := svc.Create(context.Background(), req)
	if KindOf(err) != KindEventTypeNotFound {
		t.Fatalf("expected event_type_not_found, got %v", err)
	}
}

func TestCreate_InactiveEventType(t *testing.T) {
	svc, _ := newTestService(t)
	svc.eventTypes.(*fakeEventTypes).et.Active = false

	_, err := svc.Create(context.Background(), validCreate())
	if KindOf(err) != KindEventTypeNotFound {
		t.Fatalf("expected event_type_not_found for inactive type, got %v", err)
	}
}

func TestCreate_DurationMismatch(t *testing.T) {
	svc, _ := newTestService(t)
	req := validCreate()
	req.EndUTC = req.StartUTC.Add(45 * time.Minute)

	_, err := svc.Create(context.Background(), req)
	if KindOf(err) != KindDurationMismatch {
		t.Fatalf("expected duration_mismatch, got %v", err)
	}
}

func TestCreate_OffGridWindowRejected(t *testing.T) {
	svc, _ := newTestService(t)
	req := validCreate()
	req.StartUTC = req.StartUTC.Add(5 * time.Minute)
	req.EndUTC = req.EndUTC.Add(5 * time.Minute)

	_, err := svc.Create(context.Background(), req)
	if KindOf(err) != KindSlotUnavailable {
		t.Fatalf("expected slot_unavailable for off-grid window, got %v", err)
	}
}

func TestCreate_DoubleBooking(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), validCreate()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), validCreate())
	if KindOf(err) != KindSlotUnavailable {
		t.Fatalf("expected slot_unavailable on second create, got %v", err)
	}
}

func TestCreate_StoreConflictMapped(t *testing.T) {
	// Simulates losing the race: the pre-check passed but the transactional
	// insert hit the overlap constraint.
	svc, bookings := newTestService(t)
	bookings.createErr = storage.ErrConflict

	_, err := svc.Create(context.Background(), validCreate())
	if KindOf(err) != KindSlotUnavailable {
		t.Fatalf("expected slot_unavailable, got %v", err)
	}
}

func TestReschedule_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStart := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	res, err := svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, newStart, newStart.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if res.Booking.Status != model.StatusRescheduled {
		t.Fatalf("expected rescheduled, got %s", res.Booking.Status)
	}
	if res.Booking.TokenVersion != 2 {
		t.Fatalf("expected token version bump to 2, got %d", res.Booking.TokenVersion)
	}
	if !res.Booking.StartTime.Equal(newStart) {
		t.Fatalf("expected start %s, got %s", newStart, res.Booking.StartTime)
	}
	if res.RescheduleToken == created.RescheduleToken {
		t.Fatal("expected fresh tokens after reschedule")
	}
}

func TestReschedule_ReplayedTokenRejected(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, first, first.Add(30*time.Minute)); err != nil {
		t.Fatalf("first reschedule: %v", err)
	}

	second := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	_, err = svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, second, second.Add(30*time.Minute))
	if KindOf(err) != KindInvalidToken {
		t.Fatalf("expected invalid_token for replayed token, got %v", err)
	}
}

func TestReschedule_TokenBoundToBooking(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStart := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	_, err = svc.Reschedule(context.Background(), "other-uuid", created.RescheduleToken, newStart, newStart.Add(30*time.Minute))
	if KindOf(err) != KindInvalidToken {
		t.Fatalf("expected invalid_token for mismatched uuid, got %v", err)
	}
}

func TestReschedule_CancelledBooking(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), created.Booking.UUID, created.CancelToken, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	newStart := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	_, err = svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, newStart, newStart.Add(30*time.Minute))
	if KindOf(err) != KindNotConfirmed {
		t.Fatalf("expected not_confirmed, got %v", err)
	}
}

func TestReschedule_TargetSlotTaken(t *testing.T) {
	svc, _ := newTestService(t)
	first, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	other := validCreate()
	other.StartUTC = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	other.EndUTC = other.StartUTC.Add(30 * time.Minute)
	if _, err := svc.Create(context.Background(), other); err != nil {
		t.Fatalf("second create: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), first.Booking.UUID, first.RescheduleToken, other.StartUTC, other.EndUTC)
	if KindOf(err) != KindSlotUnavailable {
		t.Fatalf("expected slot_unavailable, got %v", err)
	}
}

func TestReschedule_OwnWindowNotAConflict(t *testing.T) {
	// Moving a booking within its own window must not collide with itself.
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sameStart := created.Booking.StartTime
	if _, err := svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, sameStart, sameStart.Add(30*time.Minute)); err != nil {
		t.Fatalf("reschedule onto own window: %v", err)
	}
}

func TestCancel_HappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := svc.Cancel(context.Background(), created.Booking.UUID, created.CancelToken, "conflict came up")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if b.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", b.Status)
	}
	if b.CancelReason != "conflict came up" {
		t.Fatalf("expected reason recorded, got %q", b.CancelReason)
	}
}

func TestCancel_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), created.Booking.UUID, created.CancelToken, ""); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	// The replayed token carries a stale version, but an already cancelled
	// booking reports its true state instead.
	_, err = svc.Cancel(context.Background(), created.Booking.UUID, created.CancelToken, "")
	if KindOf(err) != KindAlreadyCancelled {
		t.Fatalf("expected already_cancelled, got %v", err)
	}
}

func TestCancel_WrongActionToken(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.Cancel(context.Background(), created.Booking.UUID, created.RescheduleToken, "")
	if KindOf(err) != KindInvalidToken {
		t.Fatalf("expected invalid_token for reschedule token, got %v", err)
	}
}

func TestCancel_StaleTokenAfterReschedule(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	newStart := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Reschedule(context.Background(), created.Booking.UUID, created.RescheduleToken, newStart, newStart.Add(30*time.Minute)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	_, err = svc.Cancel(context.Background(), created.Booking.UUID, created.CancelToken, "")
	if KindOf(err) != KindInvalidToken {
		t.Fatalf("expected invalid_token for pre-reschedule cancel token, got %v", err)
	}
}

func TestAdminCancel_NoToken(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := svc.AdminCancel(context.Background(), created.Booking.UUID, "host unavailable")
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if b.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", b.Status)
	}
}

func TestAvailableSlots_FiltersBooked(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Create(context.Background(), validCreate()); err != nil {
		t.Fatalf("create: %v", err)
	}

	slots, err := svc.AvailableSlots(context.Background(), 1, "2025-06-02", "2025-06-03", "UTC")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	nineOClock := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for _, s := range slots {
		if s.StartUTC.Before(nineOClock.Add(30 * time.Minute)) {
			t.Fatalf("slot %s overlaps the booked window", s.StartUTC)
		}
	}
	if len(slots) == 0 {
		t.Fatal("expected remaining slots for the day")
	}
}

func TestAvailableSlots_BadInput(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.AvailableSlots(context.Background(), 1, "2025-06-02", "2025-06-02", "UTC"); KindOf(err) != KindInvalidDateRange {
		t.Fatalf("expected invalid_date_range for equal dates, got %v", err)
	}
	if _, err := svc.AvailableSlots(context.Background(), 1, "junk", "2025-06-03", "UTC"); KindOf(err) != KindInvalidDateRange {
		t.Fatalf("expected invalid_date_range for malformed date, got %v", err)
	}
	if _, err := svc.AvailableSlots(context.Background(), 1, "2025-06-02", "2025-06-03", "Nowhere/Nope"); KindOf(err) != KindInvalidTimezone {
		t.Fatalf("expected invalid_timezone, got %v", err)
	}
	if _, err := svc.AvailableSlots(context.Background(), 42, "2025-06-02", "2025-06-03", "UTC"); KindOf(err) != KindEventTypeNotFound {
		t.Fatalf("expected event_type_not_found, got %v", err)
	}
}
