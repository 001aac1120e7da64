// Package model defines the core data types used throughout the mailrun
// dispatch system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a send job.
//
// Status is a structured enum; the human-facing label (including free-text
// failure reasons and rate-limit resume estimates) is derived from the
// status plus the job's StatusDetail field, never parsed back.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting for the dispatcher.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the send pipeline is executing the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusPaused indicates the job is waiting out the hourly send
	// quota. Transient; the job returns to running once a slot is granted.
	JobStatusPaused JobStatus = "paused_rate_limit"
	// JobStatusCompleted indicates every recipient was sent successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCompletedEmpty indicates the recipient source yielded zero
	// valid recipients; nothing was sent and no SMTP session was opened.
	JobStatusCompletedEmpty JobStatus = "completed_no_recipients"
	// JobStatusPartialFailure indicates at least one send succeeded and at
	// least one failed.
	JobStatusPartialFailure JobStatus = "partial_failure"
	// JobStatusFailed indicates a setup failure or that every attempted
	// send failed. StatusDetail carries the reason.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusCompletedEmpty,
		JobStatusPartialFailure, JobStatusFailed:
		return true
	}
	return false
}

// Terminal returns true once a job can no longer change status or counts.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedEmpty,
		JobStatusPartialFailure, JobStatusFailed:
		return true
	}
	return false
}

// Job represents one user-submitted bulk-send request with its lifecycle
// status and progress counters. The SMTP credential is never part of the
// job record; it is held in memory only for the duration of the run.
type Job struct {
	ID           string     `json:"id"                      db:"id"`
	CSVFilename  string     `json:"csv_filename"            db:"csv_filename"`
	HTMLFilename string     `json:"html_filename"           db:"html_filename"`
	Subject      string     `json:"subject"                 db:"subject"`
	SenderEmail  string     `json:"sender_email"            db:"sender_email"`
	SMTPHost     string     `json:"smtp_host"               db:"smtp_host"`
	SMTPPort     int        `json:"smtp_port"               db:"smtp_port"`
	UseTLS       bool       `json:"use_tls"                 db:"use_tls"`
	UseSSL       bool       `json:"use_ssl"                 db:"use_ssl"`
	Status       JobStatus  `json:"status"                  db:"status"`
	StatusDetail string     `json:"status_detail,omitempty" db:"status_detail"`
	TotalEmails  *int       `json:"total_emails,omitempty"  db:"total_emails"`
	SentCount    int        `json:"sent_count"              db:"sent_count"`
	FailedCount  int        `json:"failed_count"            db:"failed_count"`
	StartTime    *time.Time `json:"start_time,omitempty"    db:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"      db:"end_time"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
}

// StatusLabel renders the human-facing status string shown on dashboards,
// e.g. "Paused - Hourly Limit (300/hr). Resumes ~15:04:05" or
// "Failed: SMTP authentication rejected".
func (j *Job) StatusLabel() string {
	switch j.Status {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusPaused:
		if j.StatusDetail != "" {
			return "Paused - " + j.StatusDetail
		}
		return "Paused"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusCompletedEmpty:
		return "Completed (no recipients)"
	case JobStatusPartialFailure:
		return "Partial Failure"
	case JobStatusFailed:
		if j.StatusDetail != "" {
			return "Failed: " + j.StatusDetail
		}
		return "Failed"
	}
	return string(j.Status)
}

// Recipient is one validated (name, email) pair targeted by a job. Derived
// from recipient source parsing; scoped to a single run, never persisted.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// FailureRecord is one failed send attempt. Append-only; never updated or
// deleted by the dispatch core.
type FailureRecord struct {
	ID             int64     `json:"id"              db:"id"`
	JobID          string    `json:"job_id"          db:"job_id"`
	RecipientEmail string    `json:"recipient_email" db:"recipient_email"`
	ErrorClass     string    `json:"error_class"     db:"error_class"`
	ErrorMessage   string    `json:"error_message"   db:"error_message"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
}

// CreateJobRequest represents a request to create a new send job.
type CreateJobRequest struct {
	CSVFilename  string `json:"csv_filename"`
	HTMLFilename string `json:"html_filename"`
	Subject      string `json:"subject"`
	SenderEmail  string `json:"sender_email"`
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	UseTLS       bool   `json:"use_tls"`
	UseSSL       bool   `json:"use_ssl"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.CSVFilename) == "" {
		return errors.New("csv filename is required")
	}
	if strings.TrimSpace(r.HTMLFilename) == "" {
		return errors.New("html template filename is required")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return errors.New("subject is required")
	}
	sender := strings.TrimSpace(r.SenderEmail)
	if sender == "" {
		return errors.New("sender email is required")
	}
	if !strings.Contains(sender, "@") {
		return fmt.Errorf("sender email %q is not an email address", sender)
	}
	if strings.TrimSpace(r.SMTPHost) == "" {
		return errors.New("smtp server is required")
	}
	if r.SMTPPort <= 0 || r.SMTPPort > 65535 {
		return fmt.Errorf("smtp port %d out of range", r.SMTPPort)
	}
	return nil
}

// JobStats represents counts of jobs per status bucket for the dashboard.
type JobStats struct {
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Paused         int `json:"paused"`
	Completed      int `json:"completed"`
	PartialFailure int `json:"partial_failure"`
	Failed         int `json:"failed"`
}
