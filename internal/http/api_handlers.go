package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mailrun/mailrun/internal/domain/model"
	"github.com/mailrun/mailrun/internal/service"
)

// APIHandlers serves the JSON API consumed by dashboard polling and scripts.
type APIHandlers struct {
	Jobs *service.JobService
}

// jobView augments the job record with its derived display label.
type jobView struct {
	*model.Job
	StatusLabel string `json:"status_label"`
}

func toJobView(job *model.Job) jobView {
	return jobView{Job: job, StatusLabel: job.StatusLabel()}
}

// ListJobs returns jobs most-recent-first. Supports ?limit=N.
func (h *APIHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "validation",
				Err:     errors.New("limit must be a non-negative integer"),
			})
			return
		}
		limit = parsed
	}

	jobs, err := h.Jobs.List(r.Context(), limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, toJobView(job))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// GetJob returns one job.
func (h *APIHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toJobView(job))
}

// JobFailures returns a job's failure records plus the per-domain summary.
func (h *APIHandlers) JobFailures(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	failures, err := h.Jobs.Failures(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	summary, err := h.Jobs.FailureSummary(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if failures == nil {
		failures = []*model.FailureRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"failures": failures,
		"domains":  summary,
	})
}

// Stats returns aggregate job counts per status bucket.
func (h *APIHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Jobs.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
