package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/visitdesk/internal/http/response"
	"github.com/meridianhq/visitdesk/internal/repo/postgres"
)

// PrintJobsHandler exposes the operator view of the print queue: state
// counts, the pending backlog, explicit retry and cancel.
type PrintJobsHandler struct {
	jobs postgres.PrintJobsRepo
}

func NewPrintJobsHandler(jobs postgres.PrintJobsRepo) *PrintJobsHandler {
	return &PrintJobsHandler{jobs: jobs}
}

func (h *PrintJobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/queue/status", h.queueStatus)
	r.Get("/jobs", h.list)
	r.Patch("/jobs/{id}/retry", h.retry)
	r.Delete("/jobs/{id}", h.cancel)
	return r
}

func (h *PrintJobsHandler) queueStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobs.Counts(r.Context())
	if err != nil {
		response.InternalError(w, "failed to read queue status")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(counts)
}

func (h *PrintJobsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if r.URL.Query().Get("status") == "pending" {
		js, err := h.jobs.ListPending(r.Context(), limit)
		if err != nil {
			response.InternalError(w, "failed to list print jobs")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(js)
		return
	}

	js, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		response.InternalError(w, "failed to list print jobs")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(js)
}

func (h *PrintJobsHandler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}
	ok, err := h.jobs.Retry(r.Context(), id)
	if err != nil {
		response.InternalError(w, "failed to retry print job")
		return
	}
	if !ok {
		response.Conflict(w, "only failed jobs can be retried")
		return
	}
	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil || job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

func (h *PrintJobsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}
	ok, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		response.InternalError(w, "failed to cancel print job")
		return
	}
	if !ok {
		response.Conflict(w, "only pending jobs can be cancelled")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
