package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/visitdesk/internal/domain"
	mw "github.com/meridianhq/visitdesk/internal/http/middleware"
	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/internal/service"
)

type VisitsHandler struct {
	svc service.VisitService
}

func NewVisitsHandler(svc service.VisitService) *VisitsHandler {
	return &VisitsHandler{svc: svc}
}

func (h *VisitsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.getByID)
	r.Post("/{id}/check-in", h.checkIn)
	r.Post("/{id}/check-out", h.checkOut)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/reactivate", h.reactivate)
	r.Post("/{id}/duplicate", h.duplicate)
	return r
}

func visitID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// writeVisitError maps service errors onto the response taxonomy: guard
// violations are conflicts carrying the blocking status, everything else is
// not-found or internal.
func writeVisitError(w http.ResponseWriter, err error) {
	var guard *domain.GuardError
	switch {
	case errors.As(err, &guard):
		response.GuardViolation(w, guard.Error())
	case errors.Is(err, service.ErrVisitNotFound):
		response.NotFound(w, "visit not found")
	case errors.Is(err, service.ErrVisitorNotFound):
		response.NotFound(w, "visitor not found")
	case errors.Is(err, service.ErrBadgeMismatch):
		response.WriteError(w, http.StatusUnauthorized, "badge verification failed", response.CodeBadgeMismatch)
	case errors.Is(err, service.ErrBadgeExpired):
		response.WriteError(w, http.StatusUnauthorized, "badge expired", response.CodeBadgeExpired)
	default:
		response.InternalError(w, "operation failed")
	}
}

func (h *VisitsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.VisitCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.VisitorID <= 0 || in.ScheduledDate.IsZero() || in.WindowStart.IsZero() {
		response.BadRequest(w, "visitor_id, scheduled_date and window_start are required")
		return
	}
	if in.HostUserID == nil && in.HostName == "" {
		response.BadRequest(w, "a host user or host name is required")
		return
	}

	v, err := h.svc.CreateVisit(r.Context(), &in)
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var status *domain.VisitStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := domain.ParseVisitStatus(s)
		if !ok {
			response.BadRequest(w, "unknown status")
			return
		}
		status = &parsed
	}

	vs, err := h.svc.ListVisits(r.Context(), status, limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list visits")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(vs)
}

func (h *VisitsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.svc.GetVisit(r.Context(), id)
	if err != nil {
		response.InternalError(w, "failed to get visit")
		return
	}
	if v == nil {
		response.NotFound(w, "visit not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitsHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.svc.CheckIn(r.Context(), id, mw.Actor(r), false)
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitsHandler) checkOut(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.svc.CheckOut(r.Context(), id, mw.Actor(r))
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.svc.Cancel(r.Context(), id, mw.Actor(r))
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitsHandler) reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.svc.Reactivate(r.Context(), id, mw.Actor(r))
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type duplicateReq struct {
	ScheduledDate time.Time `json:"scheduled_date"`
	WindowStart   time.Time `json:"window_start"`
}

func (h *VisitsHandler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := visitID(r)
	if !ok {
		response.BadRequest(w, "invalid id")
		return
	}
	var in duplicateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.ScheduledDate.IsZero() || in.WindowStart.IsZero() {
		response.BadRequest(w, "scheduled_date and window_start are required")
		return
	}
	v, err := h.svc.Duplicate(r.Context(), id, in.ScheduledDate, in.WindowStart, mw.Actor(r))
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}
