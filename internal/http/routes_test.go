package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/domain/model"
	apperrors "github.com/mailrun/mailrun/internal/errors"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/storage"
)

type memStore struct {
	jobs     map[string]*model.Job
	order    []string
	failures map[string][]*model.FailureRecord
	created  []*model.CreateJobRequest
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[string]*model.Job{},
		failures: map[string][]*model.FailureRecord{},
	}
}

func (s *memStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	s.created = append(s.created, req)
	job := &model.Job{
		ID:          "job-" + req.Subject,
		Subject:     req.Subject,
		SenderEmail: req.SenderEmail,
		Status:      model.JobStatusPending,
		CreatedAt:   time.Now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return job, nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return job, nil
}

func (s *memStore) List(_ context.Context, _ int) ([]*model.Job, error) {
	out := make([]*model.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out, nil
}

func (s *memStore) ListFailures(_ context.Context, jobID string) ([]*model.FailureRecord, error) {
	return s.failures[jobID], nil
}

func (s *memStore) Stats(_ context.Context) (*model.JobStats, error) {
	return &model.JobStats{Pending: len(s.jobs)}, nil
}

type memSubmitter struct {
	submitted []struct{ jobID, password string }
	err       error
}

func (m *memSubmitter) Submit(jobID, password string) error {
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, struct{ jobID, password string }{jobID, password})
	return nil
}

type harness struct {
	store     *memStore
	submitter *memSubmitter
	server    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	jobs, err := service.NewJobService(service.JobServiceOptions{Store: store})
	require.NoError(t, err)

	artifacts, err := storage.NewStore(storage.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	submitter := &memSubmitter{}
	router, err := NewRouter(RouterServices{
		Jobs:       jobs,
		Dispatcher: submitter,
		Artifacts:  artifacts,
	})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &harness{store: store, submitter: submitter, server: server}
}

func buildUpload(t *testing.T, csvName, htmlName string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if csvName != "" {
		part, err := mw.CreateFormFile("csv_file", csvName)
		require.NoError(t, err)
		_, err = part.Write([]byte("FirstName,Email\nAlice,alice@example.com\n"))
		require.NoError(t, err)
	}
	if htmlName != "" {
		part, err := mw.CreateFormFile("html_template", htmlName)
		require.NoError(t, err)
		_, err = part.Write([]byte("<p>Hi {{.FirstName}}</p>"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func defaultFields() map[string]string {
	return map[string]string{
		"subject":         "Spring sale",
		"sender_email":    "sender@example.com",
		"sender_password": "hunter2",
		"smtp_server":     "smtp.example.com",
		"smtp_port":       "587",
		"use_tls":         "on",
	}
}

func TestUploadFormRenders(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), `name="csv_file"`)
	assert.Contains(t, string(page), `name="sender_password"`)
}

func TestUploadCreatesJobAndSubmits(t *testing.T) {
	h := newHarness(t)
	body, contentType := buildUpload(t, "contacts.csv", "body.html", defaultFields())

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Post(h.server.URL+"/", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	require.Len(t, h.store.created, 1)
	created := h.store.created[0]
	assert.Equal(t, "Spring sale", created.Subject)
	assert.True(t, created.UseTLS)
	assert.NotEqual(t, "contacts.csv", created.CSVFilename, "stored name must be unique")
	assert.Contains(t, created.CSVFilename, "contacts.csv")

	// The credential goes to the dispatcher and only there.
	require.Len(t, h.submitter.submitted, 1)
	assert.Equal(t, "hunter2", h.submitter.submitted[0].password)
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	h := newHarness(t)
	body, contentType := buildUpload(t, "contacts.exe", "body.html", defaultFields())

	resp, err := http.Post(h.server.URL+"/", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, h.store.created)
	assert.Empty(t, h.submitter.submitted)
}

func TestUploadRequiresPassword(t *testing.T) {
	h := newHarness(t)
	fields := defaultFields()
	delete(fields, "sender_password")
	body, contentType := buildUpload(t, "contacts.csv", "body.html", fields)

	resp, err := http.Post(h.server.URL+"/", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// The form re-renders with the user's fields, never the password.
	assert.Contains(t, string(page), "Spring sale")
	assert.Empty(t, h.store.created)
}

func TestUploadDispatcherUnavailable(t *testing.T) {
	h := newHarness(t)
	h.submitter.err = assert.AnError
	body, contentType := buildUpload(t, "contacts.csv", "body.html", defaultFields())

	resp, err := http.Post(h.server.URL+"/", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	// The job record exists even though dispatch was refused.
	require.Len(t, h.store.created, 1)
}

func TestDashboardListsJobs(t *testing.T) {
	h := newHarness(t)
	job := &model.Job{
		ID: "job-1", Subject: "Hello", Status: model.JobStatusPaused,
		StatusDetail: "Hourly Limit (300/hr). Resumes ~15:04:05",
		SentCount:    12,
	}
	h.store.jobs["job-1"] = job
	h.store.order = append(h.store.order, "job-1")

	resp, err := http.Get(h.server.URL + "/dashboard")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Hello")
	assert.Contains(t, string(page), "Paused - Hourly Limit (300/hr). Resumes ~15:04:05")
}

func TestFailuresPage(t *testing.T) {
	h := newHarness(t)
	h.store.jobs["job-1"] = &model.Job{ID: "job-1", Subject: "Hello", Status: model.JobStatusPartialFailure}
	h.store.failures["job-1"] = []*model.FailureRecord{
		{RecipientEmail: "bad@example.com", ErrorClass: "send_rejected", ErrorMessage: "550 no mailbox"},
	}

	resp, err := http.Get(h.server.URL + "/dashboard/failures/job-1")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "bad@example.com")
	assert.Contains(t, string(page), "example.com")
}

func TestFailuresPageUnknownJob(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/dashboard/failures/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIJobsIncludesStatusLabel(t *testing.T) {
	h := newHarness(t)
	h.store.jobs["job-1"] = &model.Job{
		ID: "job-1", Subject: "Hello",
		Status: model.JobStatusFailed, StatusDetail: "smtp authentication rejected",
	}
	h.store.order = append(h.store.order, "job-1")

	resp, err := http.Get(h.server.URL + "/api/jobs")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Jobs []struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			StatusLabel string `json:"status_label"`
		} `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Jobs, 1)
	assert.Equal(t, "failed", payload.Jobs[0].Status)
	assert.Equal(t, "Failed: smtp authentication rejected", payload.Jobs[0].StatusLabel)
}

func TestAPIJobNotFound(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/api/jobs/nope")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "not_found", payload["error"])
}

func TestAPIJobFailures(t *testing.T) {
	h := newHarness(t)
	h.store.jobs["job-1"] = &model.Job{ID: "job-1"}
	h.store.failures["job-1"] = []*model.FailureRecord{
		{RecipientEmail: "a@example.com", ErrorClass: "send_rejected"},
		{RecipientEmail: "b@example.com", ErrorClass: "render_error"},
	}

	resp, err := http.Get(h.server.URL + "/api/jobs/job-1/failures")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Failures []struct {
			RecipientEmail string `json:"recipient_email"`
		} `json:"failures"`
		Domains []struct {
			Domain string `json:"domain"`
			Count  int    `json:"count"`
		} `json:"domains"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Failures, 2)
	require.Len(t, payload.Domains, 1)
	assert.Equal(t, "example.com", payload.Domains[0].Domain)
	assert.Equal(t, 2, payload.Domains[0].Count)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIListLimitValidation(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/api/jobs?limit=potato")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
