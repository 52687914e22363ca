// Package handlers exposes the HTTP API. Handlers decode and trim input,
// delegate to the booking service, and translate typed errors to statuses;
// no scheduling logic lives here.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookwell/bookwell/internal/booking"
	"github.com/bookwell/bookwell/internal/model"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/bookings", h.bookings)
	mux.HandleFunc("/api/v1/bookings/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/bookings/cancel", h.Cancel)
}

type slotItem struct {
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
}

type bookingResponse struct {
	BookingUUID     string `json:"booking_uuid"`
	EventTypeID     int64  `json:"event_type_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	InviteeName     string `json:"invitee_name"`
	InviteeEmail    string `json:"invitee_email"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	RescheduleToken string `json:"reschedule_token,omitempty"`
	CancelToken     string `json:"cancel_token,omitempty"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	eventTypeID, err := strconv.ParseInt(strings.TrimSpace(q.Get("event_type_id")), 10, 64)
	if err != nil || eventTypeID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "event_type_id required", Kind: string(booking.KindValidation)})
		return
	}
	startDate := strings.TrimSpace(q.Get("start_date"))
	endDate := strings.TrimSpace(q.Get("end_date"))
	tz := strings.TrimSpace(q.Get("timezone"))
	if tz == "" {
		tz = "UTC"
	}

	slots, err := h.svc.AvailableSlots(r.Context(), eventTypeID, startDate, endDate, tz)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime:  s.StartUTC.UTC().Format(time.RFC3339),
			EndTime:    s.EndUTC.UTC().Format(time.RFC3339),
			StartLocal: s.StartLocal,
			EndLocal:   s.EndLocal,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type createBookingRequest struct {
	EventTypeID int64  `json:"event_type_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Timezone    string `json:"timezone"`
	Notes       string `json:"notes"`
}

func (h *BookingHandler) bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.Get(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Kind: string(booking.KindValidation)})
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_time", Kind: string(booking.KindValidation)})
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_time", Kind: string(booking.KindValidation)})
		return
	}

	res, err := h.svc.Create(r.Context(), booking.CreateRequest{
		EventTypeID: req.EventTypeID,
		StartUTC:    start,
		EndUTC:      end,
		Name:        req.Name,
		Email:       req.Email,
		Timezone:    strings.TrimSpace(req.Timezone),
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderBooking(res.Booking, res.RescheduleToken, res.CancelToken))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	uuid := strings.TrimSpace(r.URL.Query().Get("uuid"))
	if uuid == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "uuid required", Kind: string(booking.KindValidation)})
		return
	}
	b, err := h.svc.Get(r.Context(), uuid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderBooking(b, "", ""))
}

type rescheduleRequest struct {
	BookingUUID string `json:"booking_uuid"`
	Token       string `json:"token"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Kind: string(booking.KindValidation)})
		return
	}
	req.BookingUUID = strings.TrimSpace(req.BookingUUID)
	req.Token = strings.TrimSpace(req.Token)
	if req.BookingUUID == "" || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "booking_uuid and token required", Kind: string(booking.KindValidation)})
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_time", Kind: string(booking.KindValidation)})
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_time", Kind: string(booking.KindValidation)})
		return
	}

	res, err := h.svc.Reschedule(r.Context(), req.BookingUUID, req.Token, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderBooking(res.Booking, res.RescheduleToken, res.CancelToken))
}

type cancelRequest struct {
	BookingUUID string `json:"booking_uuid"`
	Token       string `json:"token"`
	Reason      string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body", Kind: string(booking.KindValidation)})
		return
	}
	req.BookingUUID = strings.TrimSpace(req.BookingUUID)
	req.Token = strings.TrimSpace(req.Token)
	if req.BookingUUID == "" || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "booking_uuid and token required", Kind: string(booking.KindValidation)})
		return
	}

	b, err := h.svc.Cancel(r.Context(), req.BookingUUID, req.Token, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderBooking(b, "", ""))
}

func renderBooking(b model.Booking, rescheduleToken, cancelToken string) bookingResponse {
	resp := bookingResponse{
		BookingUUID:     b.UUID,
		EventTypeID:     b.EventTypeID,
		StartTime:       b.StartTime.UTC().Format(time.RFC3339),
		EndTime:         b.EndTime.UTC().Format(time.RFC3339),
		Status:          string(b.Status),
		InviteeName:     b.Invitee.Name,
		InviteeEmail:    b.Invitee.Email,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		RescheduleToken: rescheduleToken,
		CancelToken:     cancelToken,
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}
