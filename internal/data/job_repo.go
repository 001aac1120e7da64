// Package data provides PostgreSQL-backed repositories for jobs and
// per-recipient failure records, plus the optional Redis stats cache.
package data

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailrun/mailrun/internal/domain/model"
	apperrors "github.com/mailrun/mailrun/internal/errors"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for jobs and failure records.
//
// The dispatcher owning a job is the only writer of that job's counters and
// status; the repository enforces monotonic counters as a belt-and-braces
// guard so a dashboard reader never observes counts decrease.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo with the given database connection.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  csv_filename,
  html_filename,
  subject,
  sender_email,
  smtp_host,
  smtp_port,
  use_tls,
  use_ssl,
  status,
  status_detail,
  total_emails,
  sent_count,
  failed_count,
  start_time,
  end_time,
  created_at
`

func scanJob(row interface{ Scan(...any) error }) (*model.Job, error) {
	var j model.Job
	err := row.Scan(
		&j.ID,
		&j.CSVFilename,
		&j.HTMLFilename,
		&j.Subject,
		&j.SenderEmail,
		&j.SMTPHost,
		&j.SMTPPort,
		&j.UseTLS,
		&j.UseSSL,
		&j.Status,
		&j.StatusDetail,
		&j.TotalEmails,
		&j.SentCount,
		&j.FailedCount,
		&j.StartTime,
		&j.EndTime,
		&j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a new job in pending status and returns it.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
	}

	id := uuid.NewString()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO jobs (
			id, csv_filename, html_filename, subject, sender_email,
			smtp_host, smtp_port, use_tls, use_ssl, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+jobColumns,
		id,
		req.CSVFilename,
		req.HTMLFilename,
		req.Subject,
		req.SenderEmail,
		req.SMTPHost,
		req.SMTPPort,
		req.UseTLS,
		req.UseSSL,
		model.JobStatusPending,
		r.timeProvider.Now().UTC(),
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, apperrors.ClassifyDB(err, "job")
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "job created", "id", job.ID, "subject", job.Subject)
	}
	return job, nil
}

// GetByID returns a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, apperrors.ClassifyDB(err, "job")
	}
	return job, nil
}

// List returns jobs ordered most-recent-first (by start time, then
// creation time), matching the dashboard ordering.
func (r *JobRepo) List(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY start_time DESC NULLS LAST, created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.ClassifyDB(err, "jobs")
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, apperrors.ClassifyDB(scanErr, "jobs")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ClassifyDB(err, "jobs")
	}
	return jobs, nil
}

// MarkRunning transitions a pending job to running and stamps its start
// time. Returns false if the job was not in pending status, which keeps
// a job from being executed twice.
func (r *JobRepo) MarkRunning(ctx context.Context, id string, startTime time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, status_detail = '', start_time = $3
		WHERE id = $1 AND status = $4`,
		id, model.JobStatusRunning, startTime.UTC(), model.JobStatusPending)
	if err != nil {
		return false, apperrors.ClassifyDB(err, "job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.ClassifyDB(err, "job")
	}
	return n == 1, nil
}

// SetTotal records the number of valid recipients once parsing completes.
func (r *JobRepo) SetTotal(ctx context.Context, id string, total int) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE jobs SET total_emails = $2 WHERE id = $1`, id, total)
	if err != nil {
		return apperrors.ClassifyDB(err, "job")
	}
	return nil
}

// UpdateCounts persists progress counters. GREATEST guards keep the
// persisted counters monotonic even on a stray out-of-order write.
func (r *JobRepo) UpdateCounts(ctx context.Context, id string, sent, failed int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET sent_count = GREATEST(sent_count, $2),
		    failed_count = GREATEST(failed_count, $3)
		WHERE id = $1`,
		id, sent, failed)
	if err != nil {
		return apperrors.ClassifyDB(err, "job")
	}
	return nil
}

// UpdateStatus sets the job status and detail text (used for the transient
// rate-limit pause and the return to running).
func (r *JobRepo) UpdateStatus(ctx context.Context, id string, status model.JobStatus, detail string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, status_detail = $3 WHERE id = $1`,
		id, status, detail)
	if err != nil {
		return apperrors.ClassifyDB(err, "job")
	}
	return nil
}

// FinalizeParams carries the terminal state of a completed run.
type FinalizeParams struct {
	Status  model.JobStatus
	Detail  string
	Sent    int
	Failed  int
	EndTime time.Time
}

// Finalize persists the terminal status, final counts, and end timestamp in
// one statement so a job is never left mid-finalization.
func (r *JobRepo) Finalize(ctx context.Context, id string, p FinalizeParams) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2,
		    status_detail = $3,
		    sent_count = GREATEST(sent_count, $4),
		    failed_count = GREATEST(failed_count, $5),
		    end_time = $6
		WHERE id = $1`,
		id, p.Status, p.Detail, p.Sent, p.Failed, p.EndTime.UTC())
	if err != nil {
		return apperrors.ClassifyDB(err, "job")
	}
	if r.logger != nil {
		r.logger.DebugContext(ctx, "job finalized",
			"id", id, "status", p.Status, "sent", p.Sent, "failed", p.Failed)
	}
	return nil
}

// AppendFailureParams carries one failed send attempt.
type AppendFailureParams struct {
	JobID          string
	RecipientEmail string
	ErrorClass     string
	ErrorMessage   string
}

// AppendFailure records one failed send attempt. Rows are append-only.
func (r *JobRepo) AppendFailure(ctx context.Context, p AppendFailureParams) error {
	if p.ErrorClass == "" {
		p.ErrorClass = "unclassified"
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO failed_emails (job_id, recipient_email, error_class, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.JobID, p.RecipientEmail, p.ErrorClass, p.ErrorMessage, r.timeProvider.Now().UTC())
	if err != nil {
		return apperrors.ClassifyDB(err, "failure record")
	}
	return nil
}

// ListFailures returns the failure records for a job, newest first.
func (r *JobRepo) ListFailures(ctx context.Context, jobID string) ([]*model.FailureRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, job_id, recipient_email, error_class, error_message, created_at
		FROM failed_emails
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, apperrors.ClassifyDB(err, "failure records")
	}
	defer rows.Close()

	var records []*model.FailureRecord
	for rows.Next() {
		var rec model.FailureRecord
		if scanErr := rows.Scan(
			&rec.ID, &rec.JobID, &rec.RecipientEmail,
			&rec.ErrorClass, &rec.ErrorMessage, &rec.CreatedAt,
		); scanErr != nil {
			return nil, apperrors.ClassifyDB(scanErr, "failure records")
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ClassifyDB(err, "failure records")
	}
	return records, nil
}

// Stats returns job counts per status bucket for the dashboard.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.ClassifyDB(err, "job stats")
	}
	defer rows.Close()

	var stats model.JobStats
	for rows.Next() {
		var status model.JobStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, apperrors.ClassifyDB(scanErr, "job stats")
		}
		switch status {
		case model.JobStatusPending:
			stats.Pending = count
		case model.JobStatusRunning:
			stats.Running = count
		case model.JobStatusPaused:
			stats.Paused = count
		case model.JobStatusCompleted, model.JobStatusCompletedEmpty:
			stats.Completed += count
		case model.JobStatusPartialFailure:
			stats.PartialFailure = count
		case model.JobStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ClassifyDB(err, "job stats")
	}
	return &stats, nil
}
