package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bookwell/bookwell/internal/booking"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)
	msg := "internal error"
	if kind != booking.KindInternal {
		msg = err.Error()
	}
	writeJSON(w, statusForKind(kind), errorResponse{Error: msg, Kind: string(kind)})
}

func statusForKind(kind booking.Kind) int {
	switch kind {
	case booking.KindValidation, booking.KindInvalidTimezone, booking.KindInvalidDateRange:
		return http.StatusBadRequest
	case booking.KindInvalidToken:
		return http.StatusUnauthorized
	case booking.KindEventTypeNotFound, booking.KindBookingNotFound:
		return http.StatusNotFound
	case booking.KindSlotUnavailable, booking.KindAlreadyCancelled, booking.KindNotConfirmed:
		return http.StatusConflict
	case booking.KindDurationMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
