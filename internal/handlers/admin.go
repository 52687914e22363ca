package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookwell/bookwell/internal/booking"
	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/storage"
	"github.com/bookwell/bookwell/internal/timezone"
)

// AdminHandler exposes the owner-facing API behind a bearer key. The key is
// compared against a bcrypt hash from config, so the plaintext never sits in
// the environment of a running process.
type AdminHandler struct {
	svc        *booking.Service
	eventTypes *storage.EventTypeRepository
	schedules  *storage.ScheduleRepository
	bookings   *storage.BookingRepository
	keyHash    string
	logger     *slog.Logger
}

func NewAdminHandler(
	svc *booking.Service,
	eventTypes *storage.EventTypeRepository,
	schedules *storage.ScheduleRepository,
	bookings *storage.BookingRepository,
	keyHash string,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		svc:        svc,
		eventTypes: eventTypes,
		schedules:  schedules,
		bookings:   bookings,
		keyHash:    keyHash,
		logger:     logger,
	}
}

func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/admin/event-types", h.auth(h.eventTypesRoot))
	mux.HandleFunc("/api/v1/admin/event-types/update", h.auth(h.UpdateEventType))
	mux.HandleFunc("/api/v1/admin/event-types/deactivate", h.auth(h.DeactivateEventType))
	mux.HandleFunc("/api/v1/admin/rules", h.auth(h.rulesRoot))
	mux.HandleFunc("/api/v1/admin/rules/delete", h.auth(h.DeleteRule))
	mux.HandleFunc("/api/v1/admin/exceptions", h.auth(h.exceptionsRoot))
	mux.HandleFunc("/api/v1/admin/exceptions/delete", h.auth(h.DeleteException))
	mux.HandleFunc("/api/v1/admin/bookings", h.auth(h.ListBookings))
	mux.HandleFunc("/api/v1/admin/bookings/reschedule", h.auth(h.RescheduleBooking))
	mux.HandleFunc("/api/v1/admin/bookings/cancel", h.auth(h.CancelBooking))
}

func (h *AdminHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.keyHash == "" {
			http.Error(w, "admin api disabled", http.StatusForbidden)
			return
		}
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		key, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || key == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(h.keyHash), []byte(key)) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type eventTypeRequest struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	DurationMinutes     int    `json:"duration_minutes"`
	Location            string `json:"location"`
	Active              *bool  `json:"active"`
	MaxBookingsPerDay   int    `json:"max_bookings_per_day"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes"`
	BufferAfterMinutes  int    `json:"buffer_after_minutes"`
	MinLeadTimeHours    int    `json:"min_lead_time_hours"`
	MaxAdvanceDays      int    `json:"max_advance_days"`
}

type eventTypeResponse struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	DurationMinutes     int    `json:"duration_minutes"`
	Location            string `json:"location"`
	Active              bool   `json:"active"`
	MaxBookingsPerDay   int    `json:"max_bookings_per_day"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes"`
	BufferAfterMinutes  int    `json:"buffer_after_minutes"`
	MinLeadTimeHours    int    `json:"min_lead_time_hours"`
	MaxAdvanceDays      int    `json:"max_advance_days"`
	CreatedAt           string `json:"created_at"`
}

func (h *AdminHandler) eventTypesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListEventTypes(w, r)
	case http.MethodPost:
		h.CreateEventType(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	ets, err := h.eventTypes.List(r.Context(), true)
	if err != nil {
		h.logger.Error("list event types", "err", err)
		http.Error(w, "failed to list event types", http.StatusInternalServerError)
		return
	}
	items := make([]eventTypeResponse, 0, len(ets))
	for _, et := range ets {
		items = append(items, renderEventType(et))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AdminHandler) CreateEventType(w http.ResponseWriter, r *http.Request) {
	et, ok := h.decodeEventType(w, r)
	if !ok {
		return
	}
	if err := h.eventTypes.Create(r.Context(), &et); err != nil {
		h.logger.Error("create event type", "err", err)
		http.Error(w, "failed to create event type", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, renderEventType(et))
}

func (h *AdminHandler) UpdateEventType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	et, ok := h.decodeEventType(w, r)
	if !ok {
		return
	}
	if et.ID <= 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.eventTypes.Update(r.Context(), et); err != nil {
		writeError(w, mapAdminStoreErr(err))
		return
	}
	writeJSON(w, http.StatusOK, renderEventType(et))
}

func (h *AdminHandler) DeactivateEventType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.eventTypes.Deactivate(r.Context(), req.ID); err != nil {
		writeError(w, mapAdminStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) decodeEventType(w http.ResponseWriter, r *http.Request) (model.EventType, bool) {
	var req eventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return model.EventType{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return model.EventType{}, false
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > 24*60 {
		http.Error(w, "duration_minutes out of range", http.StatusBadRequest)
		return model.EventType{}, false
	}
	loc := model.LocationKind(strings.TrimSpace(req.Location))
	switch loc {
	case model.LocationVideo, model.LocationInPerson, model.LocationPhone:
	case "":
		loc = model.LocationVideo
	default:
		http.Error(w, "unknown location kind", http.StatusBadRequest)
		return model.EventType{}, false
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return model.EventType{
		ID:                  req.ID,
		Name:                req.Name,
		DurationMinutes:     req.DurationMinutes,
		Location:            loc,
		Active:              active,
		MaxBookingsPerDay:   req.MaxBookingsPerDay,
		BufferBeforeMinutes: req.BufferBeforeMinutes,
		BufferAfterMinutes:  req.BufferAfterMinutes,
		MinLeadTimeHours:    req.MinLeadTimeHours,
		MaxAdvanceDays:      req.MaxAdvanceDays,
	}, true
}

type ruleRequest struct {
	EventTypeID int64  `json:"event_type_id"`
	Weekday     int    `json:"weekday"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
}

func (h *AdminHandler) rulesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListRules(w, r)
	case http.MethodPost:
		h.CreateRule(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	eventTypeID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("event_type_id")), 10, 64)
	if err != nil || eventTypeID <= 0 {
		http.Error(w, "event_type_id required", http.StatusBadRequest)
		return
	}
	rules, err := h.schedules.ListRules(r.Context(), eventTypeID)
	if err != nil {
		h.logger.Error("list rules", "err", err)
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *AdminHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.EventTypeID <= 0 {
		http.Error(w, "event_type_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0..6", http.StatusBadRequest)
		return
	}
	if !validClockRange(req.StartTime, req.EndTime) {
		http.Error(w, "start_time must be before end_time (15:04)", http.StatusBadRequest)
		return
	}
	if _, err := timezone.Load(req.Timezone); err != nil {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}

	rule := model.AvailabilityRule{
		EventTypeID: req.EventTypeID,
		Weekday:     req.Weekday,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    req.Timezone,
		Active:      true,
	}
	if err := h.schedules.CreateRule(r.Context(), &rule); err != nil {
		h.logger.Error("create rule", "err", err)
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *AdminHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.DeleteRule(r.Context(), req.ID); err != nil {
		writeError(w, mapAdminStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type exceptionRequest struct {
	EventTypeID int64  `json:"event_type_id"`
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Timezone    string `json:"timezone"`
	Reason      string `json:"reason"`
}

func (h *AdminHandler) exceptionsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListExceptions(w, r)
	case http.MethodPost:
		h.UpsertException(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventTypeID, err := strconv.ParseInt(strings.TrimSpace(q.Get("event_type_id")), 10, 64)
	if err != nil || eventTypeID <= 0 {
		http.Error(w, "event_type_id required", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if !validDate(from) || !validDate(to) {
		http.Error(w, "from and to dates required (2006-01-02)", http.StatusBadRequest)
		return
	}
	exceptions, err := h.schedules.ListExceptions(r.Context(), eventTypeID, from, to)
	if err != nil {
		h.logger.Error("list exceptions", "err", err)
		http.Error(w, "failed to list exceptions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, exceptions)
}

func (h *AdminHandler) UpsertException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.EventTypeID <= 0 || !validDate(req.Date) {
		http.Error(w, "event_type_id and date required", http.StatusBadRequest)
		return
	}
	kind := model.ExceptionKind(strings.TrimSpace(req.Kind))
	switch kind {
	case model.ExceptionUnavailable:
	case model.ExceptionCustomHours:
		if !validClockRange(req.StartTime, req.EndTime) {
			http.Error(w, "custom_hours needs start_time before end_time", http.StatusBadRequest)
			return
		}
		if _, err := timezone.Load(req.Timezone); err != nil {
			http.Error(w, "unknown timezone", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "kind must be unavailable or custom_hours", http.StatusBadRequest)
		return
	}

	ex := model.AvailabilityException{
		EventTypeID: req.EventTypeID,
		Date:        req.Date,
		Kind:        kind,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    req.Timezone,
		Reason:      strings.TrimSpace(req.Reason),
	}
	if kind == model.ExceptionUnavailable {
		ex.StartTime, ex.EndTime, ex.Timezone = "", "", ""
	}
	if err := h.schedules.UpsertException(r.Context(), &ex); err != nil {
		h.logger.Error("upsert exception", "err", err)
		http.Error(w, "failed to save exception", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *AdminHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.schedules.DeleteException(r.Context(), req.ID); err != nil {
		writeError(w, mapAdminStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	bookings, err := h.bookings.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list bookings", "err", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	items := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, renderBooking(b, "", ""))
	}
	writeJSON(w, http.StatusOK, items)
}

type adminRescheduleRequest struct {
	BookingUUID string `json:"booking_uuid"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

func (h *AdminHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req adminRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingUUID = strings.TrimSpace(req.BookingUUID)
	if req.BookingUUID == "" {
		http.Error(w, "booking_uuid required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	res, err := h.svc.AdminReschedule(r.Context(), req.BookingUUID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderBooking(res.Booking, res.RescheduleToken, res.CancelToken))
}

func (h *AdminHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		BookingUUID string `json:"booking_uuid"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingUUID = strings.TrimSpace(req.BookingUUID)
	if req.BookingUUID == "" {
		http.Error(w, "booking_uuid required", http.StatusBadRequest)
		return
	}
	b, err := h.svc.AdminCancel(r.Context(), req.BookingUUID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderBooking(b, "", ""))
}

func mapAdminStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &booking.Error{Kind: booking.KindEventTypeNotFound, Message: "not found"}
	}
	return err
}

func renderEventType(et model.EventType) eventTypeResponse {
	return eventTypeResponse{
		ID:                  et.ID,
		Name:                et.Name,
		DurationMinutes:     et.DurationMinutes,
		Location:            string(et.Location),
		Active:              et.Active,
		MaxBookingsPerDay:   et.MaxBookingsPerDay,
		BufferBeforeMinutes: et.BufferBeforeMinutes,
		BufferAfterMinutes:  et.BufferAfterMinutes,
		MinLeadTimeHours:    et.MinLeadTimeHours,
		MaxAdvanceDays:      et.MaxAdvanceDays,
		CreatedAt:           et.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func validClockRange(start, end string) bool {
	s, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return false
	}
	e, err := time.Parse("15:04", strings.TrimSpace(end))
	if err != nil {
		return false
	}
	return e.After(s)
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
