package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/internal/repo/postgres"
	"github.com/meridianhq/visitdesk/internal/utils"
)

type VisitorsHandler struct {
	repo postgres.VisitorsRepo
}

func NewVisitorsHandler(repo postgres.VisitorsRepo) *VisitorsHandler {
	return &VisitorsHandler{repo: repo}
}

func (h *VisitorsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.getByID)
	return r
}

func (h *VisitorsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.VisitorCreateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	in.Name = utils.NormalizeString(in.Name)
	in.Email = utils.NormalizeEmail(in.Email)
	in.Phone = utils.NormalizePhone(in.Phone)
	if in.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}
	if in.Email != "" && !utils.IsValidEmail(in.Email) {
		response.BadRequest(w, "invalid email")
		return
	}

	v, err := h.repo.Create(r.Context(), &in)
	if err != nil {
		response.InternalError(w, "failed to create visitor")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *VisitorsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	vs, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list visitors")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(vs)
}

func (h *VisitorsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}
	v, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		response.InternalError(w, "failed to get visitor")
		return
	}
	if v == nil {
		response.NotFound(w, "visitor not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
