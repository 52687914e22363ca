package model

import "time"

type LocationKind string

const (
	LocationVideo    LocationKind = "video"
	LocationInPerson LocationKind = "in_person"
	LocationPhone    LocationKind = "phone"
)

type BookingStatus string

const (
	StatusConfirmed   BookingStatus = "confirmed"
	StatusCancelled   BookingStatus = "cancelled"
	StatusRescheduled BookingStatus = "rescheduled"
)

// Blocks reports whether a booking in this status occupies its time window.
// Cancelled bookings never block new ones.
func (s BookingStatus) Blocks() bool {
	return s == StatusConfirmed || s == StatusRescheduled
}

// EventType is a bookable meeting kind. Event types are never hard-deleted;
// deactivation hides them from booking while keeping existing references valid.
type EventType struct {
	ID                  int64
	Name                string
	DurationMinutes     int
	Location            LocationKind
	Active              bool
	MaxBookingsPerDay   int // 0 means unlimited
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	MinLeadTimeHours    int
	MaxAdvanceDays      int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (et EventType) Duration() time.Duration {
	return time.Duration(et.DurationMinutes) * time.Minute
}

func (et EventType) BufferBefore() time.Duration {
	return time.Duration(et.BufferBeforeMinutes) * time.Minute
}

func (et EventType) BufferAfter() time.Duration {
	return time.Duration(et.BufferAfterMinutes) * time.Minute
}

// AvailabilityRule is a recurring weekly window. Each rule carries its own
// IANA zone; a single event type may mix rules in different zones.
type AvailabilityRule struct {
	ID          int64
	EventTypeID int64
	Weekday     int    // 0 = Sunday .. 6 = Saturday
	StartTime   string // local wall clock, "15:04"
	EndTime     string
	Timezone    string
	Active      bool
}

type ExceptionKind string

const (
	ExceptionUnavailable ExceptionKind = "unavailable"
	ExceptionCustomHours ExceptionKind = "custom_hours"
)

// AvailabilityException overrides the weekly rules on one calendar date.
// An "unavailable" exception voids the whole date; "custom_hours" replaces
// the date's rule-derived windows entirely.
type AvailabilityException struct {
	ID          int64
	EventTypeID int64
	Date        string // "2006-01-02"
	Kind        ExceptionKind
	StartTime   string // set when Kind is custom_hours
	EndTime     string
	Timezone    string
	Reason      string
}

// Booking is the unit of commitment. StartTime/EndTime are UTC instants.
// TokenVersion increments on every successful state transition; action tokens
// embed the version at mint time, so tokens from before a transition no
// longer verify.
type Booking struct {
	ID           int64
	UUID         string
	EventTypeID  int64
	StartTime    time.Time
	EndTime      time.Time
	Status       BookingStatus
	TokenVersion int
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Invitee Invitee
}

// Invitee holds the contact details tied 1:1 to a booking. Timezone is for
// display only and never participates in conflict math.
type Invitee struct {
	Name     string
	Email    string
	Timezone string
	Notes    string
}

// Slot is a candidate bookable window of exact event-type duration.
// Local renderings are in the caller's requested display zone.
type Slot struct {
	StartUTC   time.Time
	EndUTC     time.Time
	StartLocal string
	EndLocal   string
}
