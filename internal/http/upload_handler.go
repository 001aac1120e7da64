package httpx

import (
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mailrun/mailrun/internal/domain/model"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/storage"
)

// UploadHandlers serves the upload form and accepts new send jobs.
type UploadHandlers struct {
	Jobs           *service.JobService
	Dispatcher     JobSubmitter
	Artifacts      *storage.Store
	MaxUploadBytes int64
	Templates      *template.Template
	Logger         *slog.Logger
}

// formData feeds the index template so a rejected submission keeps the
// user's text fields (never the password or files).
type formData struct {
	Error string
	Form  model.CreateJobRequest
}

// Form renders the upload form.
func (h *UploadHandlers) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, formData{})
}

// Create accepts a multipart submission, stores the artifacts, creates the
// job, and hands it to the dispatcher with the in-memory credential.
func (h *UploadHandlers) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		h.render(w, http.StatusBadRequest, formData{
			Error: "Upload too large or malformed: " + err.Error(),
		})
		return
	}

	req := model.CreateJobRequest{
		Subject:     strings.TrimSpace(r.FormValue("subject")),
		SenderEmail: strings.TrimSpace(r.FormValue("sender_email")),
		SMTPHost:    strings.TrimSpace(r.FormValue("smtp_server")),
		UseTLS:      formBool(r.FormValue("use_tls")),
		UseSSL:      formBool(r.FormValue("use_ssl")),
	}
	if portStr := strings.TrimSpace(r.FormValue("smtp_port")); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			h.render(w, http.StatusBadRequest, formData{
				Error: fmt.Sprintf("SMTP port %q is not a number", portStr), Form: req,
			})
			return
		}
		req.SMTPPort = port
	}

	password := r.FormValue("sender_password")
	if password == "" {
		h.render(w, http.StatusBadRequest, formData{Error: "Sender password is required", Form: req})
		return
	}

	csvName, err := h.saveUpload(r, "csv_file", ".csv")
	if err != nil {
		h.render(w, http.StatusBadRequest, formData{Error: err.Error(), Form: req})
		return
	}
	htmlName, err := h.saveUpload(r, "html_template", ".html", ".htm")
	if err != nil {
		h.render(w, http.StatusBadRequest, formData{Error: err.Error(), Form: req})
		return
	}
	req.CSVFilename = csvName
	req.HTMLFilename = htmlName

	if err := req.Validate(); err != nil {
		h.render(w, http.StatusBadRequest, formData{Error: err.Error(), Form: req})
		return
	}

	job, err := h.Jobs.Create(r.Context(), &req)
	if err != nil {
		h.render(w, http.StatusInternalServerError, formData{
			Error: "Could not create job: " + err.Error(), Form: req,
		})
		return
	}

	if err := h.Dispatcher.Submit(job.ID, password); err != nil {
		h.Logger.ErrorContext(r.Context(), "dispatch submit failed", "id", job.ID, "error", err)
		h.render(w, http.StatusServiceUnavailable, formData{
			Error: "Job created but the dispatcher is unavailable: " + err.Error(), Form: req,
		})
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// saveUpload pulls one file field out of the multipart form, checks its
// extension, and stores it.
func (h *UploadHandlers) saveUpload(r *http.Request, field string, allowedExts ...string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("file field %s is required", field)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := false
	for _, a := range allowedExts {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("%s must be one of %s, got %q",
			field, strings.Join(allowedExts, ", "), ext)
	}

	stored, err := h.Artifacts.Save(header.Filename, file)
	if err != nil {
		return "", fmt.Errorf("storing %s failed: %w", field, err)
	}
	return stored, nil
}

func (h *UploadHandlers) render(w http.ResponseWriter, code int, data formData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := h.Templates.ExecuteTemplate(w, "index.html", data); err != nil {
		h.Logger.Error("render index failed", "error", err)
	}
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
