package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	valid := []JobStatus{
		JobStatusPending, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusCompletedEmpty,
		JobStatusPartialFailure, JobStatusFailed,
	}
	for _, s := range valid {
		assert.True(t, s.Valid(), "expected %q to be valid", s)
	}
	assert.False(t, JobStatus("bogus").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.False(t, JobStatusPaused.Terminal())

	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusCompletedEmpty.Terminal())
	assert.True(t, JobStatusPartialFailure.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestJobStatusLabel(t *testing.T) {
	tests := []struct {
		name   string
		job    Job
		want   string
	}{
		{
			name: "pending",
			job:  Job{Status: JobStatusPending},
			want: "Pending",
		},
		{
			name: "paused with resume estimate",
			job: Job{
				Status:       JobStatusPaused,
				StatusDetail: "Hourly Limit (300/hr). Resumes ~15:04:05",
			},
			want: "Paused - Hourly Limit (300/hr). Resumes ~15:04:05",
		},
		{
			name: "completed no recipients",
			job:  Job{Status: JobStatusCompletedEmpty},
			want: "Completed (no recipients)",
		},
		{
			name: "failed with reason",
			job: Job{
				Status:       JobStatusFailed,
				StatusDetail: "SMTP authentication rejected",
			},
			want: "Failed: SMTP authentication rejected",
		},
		{
			name: "failed without reason",
			job:  Job{Status: JobStatusFailed},
			want: "Failed",
		},
		{
			name: "partial failure",
			job:  Job{Status: JobStatusPartialFailure},
			want: "Partial Failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.StatusLabel())
		})
	}
}

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		CSVFilename:  "list.csv",
		HTMLFilename: "body.html",
		Subject:      "Hello",
		SenderEmail:  "sender@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*CreateJobRequest)
	}{
		{"missing csv", func(r *CreateJobRequest) { r.CSVFilename = " " }},
		{"missing html", func(r *CreateJobRequest) { r.HTMLFilename = "" }},
		{"missing subject", func(r *CreateJobRequest) { r.Subject = "" }},
		{"missing sender", func(r *CreateJobRequest) { r.SenderEmail = "" }},
		{"sender not an address", func(r *CreateJobRequest) { r.SenderEmail = "not-an-email" }},
		{"missing host", func(r *CreateJobRequest) { r.SMTPHost = "" }},
		{"port zero", func(r *CreateJobRequest) { r.SMTPPort = 0 }},
		{"port out of range", func(r *CreateJobRequest) { r.SMTPPort = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}
