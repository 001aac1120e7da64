package httpx

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/mailrun/mailrun/internal/domain/model"
	apperrors "github.com/mailrun/mailrun/internal/errors"
	"github.com/mailrun/mailrun/internal/service"
)

const dashboardJobLimit = 100

// DashboardHandlers renders the HTML dashboard views.
type DashboardHandlers struct {
	Jobs      *service.JobService
	Templates *template.Template
	Logger    *slog.Logger
}

type dashboardData struct {
	Jobs  []*model.Job
	Stats *model.JobStats
}

// Overview renders the job listing with aggregate stats.
func (h *DashboardHandlers) Overview(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Jobs.List(r.Context(), dashboardJobLimit)
	if err != nil {
		http.Error(w, "loading jobs failed", http.StatusInternalServerError)
		return
	}
	stats, err := h.Jobs.Stats(r.Context())
	if err != nil {
		http.Error(w, "loading stats failed", http.StatusInternalServerError)
		return
	}

	h.render(w, "dashboard.html", dashboardData{Jobs: jobs, Stats: stats})
}

type failuresData struct {
	Job      *model.Job
	Failures []*model.FailureRecord
	Summary  []service.DomainFailureCount
}

// Failures renders one job's failure records and per-domain summary.
func (h *DashboardHandlers) Failures(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.Jobs.Get(r.Context(), jobID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "loading job failed", http.StatusInternalServerError)
		return
	}

	failures, err := h.Jobs.Failures(r.Context(), jobID)
	if err != nil {
		http.Error(w, "loading failures failed", http.StatusInternalServerError)
		return
	}
	summary, err := h.Jobs.FailureSummary(r.Context(), jobID)
	if err != nil {
		http.Error(w, "loading failure summary failed", http.StatusInternalServerError)
		return
	}

	h.render(w, "failures.html", failuresData{Job: job, Failures: failures, Summary: summary})
}

func (h *DashboardHandlers) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.Templates.ExecuteTemplate(w, name, data); err != nil && h.Logger != nil {
		h.Logger.Error("render failed", "template", name, "error", err)
	}
}
