package httpx

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mailrun "github.com/mailrun/mailrun"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/storage"
)

// JobSubmitter hands a created job and its credential to the dispatcher.
type JobSubmitter interface {
	Submit(jobID, smtpPassword string) error
}

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Jobs       *service.JobService // Required
	Dispatcher JobSubmitter        // Required
	Artifacts  *storage.Store      // Required

	MaxUploadBytes int64        // Multipart memory/body cap; defaults to 16 MiB
	Logger         *slog.Logger // Optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) (http.Handler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	maxUpload := services.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 16 << 20
	}

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	uploads := &UploadHandlers{
		Jobs:           services.Jobs,
		Dispatcher:     services.Dispatcher,
		Artifacts:      services.Artifacts,
		MaxUploadBytes: maxUpload,
		Templates:      tmpl,
		Logger:         logger,
	}
	dashboard := &DashboardHandlers{Jobs: services.Jobs, Templates: tmpl, Logger: logger}
	api := &APIHandlers{Jobs: services.Jobs}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", uploads.Form)
	mux.HandleFunc("POST /{$}", uploads.Create)
	mux.HandleFunc("GET /dashboard", dashboard.Overview)
	mux.HandleFunc("GET /dashboard/failures/{id}", dashboard.Failures)
	mux.HandleFunc("GET /api/jobs", api.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", api.GetJob)
	mux.HandleFunc("GET /api/jobs/{id}/failures", api.JobFailures)
	mux.HandleFunc("GET /api/stats", api.Stats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler, nil
}

func parseTemplates() (*template.Template, error) {
	sub, err := fs.Sub(mailrun.WebFS, "web/templates")
	if err != nil {
		return nil, fmt.Errorf("web templates: %w", err)
	}
	tmpl := template.New("").Funcs(template.FuncMap{
		"fmtTime": fmtTime,
	})
	tmpl, err = tmpl.ParseFS(sub, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse web templates: %w", err)
	}
	return tmpl, nil
}

// fmtTime renders both time.Time and *time.Time values, showing a dash for
// unset optional timestamps.
func fmtTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Local().Format("2006-01-02 15:04:05")
	case *time.Time:
		if t == nil {
			return "—"
		}
		return t.Local().Format("2006-01-02 15:04:05")
	}
	return "—"
}
