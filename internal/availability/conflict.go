package availability

import (
	"time"

	"github.com/bookwell/bookwell/internal/model"
)

// IsAvailable reports whether a candidate [start,end) window passes both the
// buffer-overlap check and the daily quota check against the given bookings.
// The booking identified by excludeUUID is ignored, which lets a reschedule
// re-check its target window without colliding with itself.
func IsAvailable(et model.EventType, start, end time.Time, existing []model.Booking, excludeUUID string) bool {
	return !BufferOverlaps(et, start, end, existing, excludeUUID) &&
		UnderDailyQuota(et, start, existing)
}

// BufferOverlaps expands the candidate window by the event type's pre/post
// buffers and tests it against every live booking's raw [start,end).
// Intervals are half-open: touching endpoints do not conflict.
func BufferOverlaps(et model.EventType, start, end time.Time, existing []model.Booking, excludeUUID string) bool {
	expandedStart := start.Add(-et.BufferBefore())
	expandedEnd := end.Add(et.BufferAfter())
	for _, b := range existing {
		if b.UUID == excludeUUID || !b.Status.Blocks() {
			continue
		}
		if expandedStart.Before(b.EndTime) && b.StartTime.Before(expandedEnd) {
			return true
		}
	}
	return false
}

// UnderDailyQuota checks MaxBookingsPerDay against confirmed bookings whose
// start falls on the candidate's UTC calendar day. A zero quota means
// unlimited.
func UnderDailyQuota(et model.EventType, start time.Time, existing []model.Booking) bool {
	if et.MaxBookingsPerDay <= 0 {
		return true
	}
	y, m, d := start.UTC().Date()
	count := 0
	for _, b := range existing {
		if b.Status != model.StatusConfirmed {
			continue
		}
		by, bm, bd := b.StartTime.UTC().Date()
		if by == y && bm == m && bd == d {
			count++
		}
	}
	return count < et.MaxBookingsPerDay
}
