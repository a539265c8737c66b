package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/internal/ratelimit"
	"github.com/meridianhq/visitdesk/internal/service"
	"github.com/meridianhq/visitdesk/pkg/config"
	"github.com/meridianhq/visitdesk/pkg/logger"
)

// KioskHandler is the unauthenticated self-service front: PIN lookup and
// check-in, badge checkout. It drives the same visit service as the staff
// API; only the entry gate differs.
type KioskHandler struct {
	svc     service.VisitService
	limiter ratelimit.Limiter
	cfg     config.KioskConfig
}

func NewKioskHandler(svc service.VisitService, limiter ratelimit.Limiter, cfg config.KioskConfig) *KioskHandler {
	return &KioskHandler{svc: svc, limiter: limiter, cfg: cfg}
}

func (h *KioskHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verify-pin", h.verifyPin)
	r.Post("/check-in", h.checkIn)
	r.Post("/check-out", h.checkOut)
	return r
}

type pinReq struct {
	Pin string `json:"pin"`
}

type kioskCheckOutReq struct {
	VisitID   int64  `json:"visit_id"`
	BadgeCode string `json:"badge_code"`
}

func (h *KioskHandler) allowAttempt(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	ok, err := h.limiter.Allow(r.Context(), "kiosk:"+ip, h.cfg.PinAttempts, h.cfg.PinWindow)
	if err != nil {
		logger.WarnContext(r.Context(), "Kiosk rate limit check failed, allowing", "error", err)
		return true
	}
	if !ok {
		response.RateLimit(w, "too many attempts, wait a minute")
		return false
	}
	return true
}

func (h *KioskHandler) verifyPin(w http.ResponseWriter, r *http.Request) {
	if !h.allowAttempt(w, r) {
		return
	}
	var in pinReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Pin == "" {
		response.BadRequest(w, "pin is required")
		return
	}

	v, err := h.svc.VerifyPin(r.Context(), in.Pin)
	if err != nil {
		response.InternalError(w, "pin lookup failed")
		return
	}
	if v == nil {
		response.NotFound(w, "no scheduled visit for this pin today")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *KioskHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	if !h.allowAttempt(w, r) {
		return
	}
	var in pinReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Pin == "" {
		response.BadRequest(w, "pin is required")
		return
	}

	v, err := h.svc.CheckInWithPin(r.Context(), in.Pin)
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *KioskHandler) checkOut(w http.ResponseWriter, r *http.Request) {
	var in kioskCheckOutReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.VisitID <= 0 || in.BadgeCode == "" {
		response.BadRequest(w, "visit_id and badge_code are required")
		return
	}

	v, err := h.svc.CheckOutByBadge(r.Context(), in.VisitID, in.BadgeCode)
	if err != nil {
		writeVisitError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
