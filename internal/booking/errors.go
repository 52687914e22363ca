package booking

import (
	"errors"
	"fmt"
)

// Kind classifies every error this package reports. Handlers map kinds onto
// HTTP statuses; callers never see raw store errors.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindEventTypeNotFound Kind = "event_type_not_found"
	KindInvalidTimezone   Kind = "invalid_timezone"
	KindInvalidDateRange  Kind = "invalid_date_range"
	KindDurationMismatch  Kind = "duration_mismatch"
	KindSlotUnavailable   Kind = "slot_unavailable"
	KindInvalidToken      Kind = "invalid_token"
	KindBookingNotFound   Kind = "booking_not_found"
	KindAlreadyCancelled  Kind = "already_cancelled"
	KindNotConfirmed      Kind = "not_confirmed"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain; unclassified errors are
// internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
