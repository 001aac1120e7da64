// Package service implements the send pipeline and the job-facing business
// logic on top of the store, transport, and renderer packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mailrun/mailrun/config"
	"github.com/mailrun/mailrun/internal/data"
	"github.com/mailrun/mailrun/internal/domain/model"
	"github.com/mailrun/mailrun/internal/observability/statsd"
	"github.com/mailrun/mailrun/internal/ratelimit"
	"github.com/mailrun/mailrun/internal/recipient"
	"github.com/mailrun/mailrun/internal/smtp"
	"github.com/mailrun/mailrun/internal/template"
)

// DispatchStore is the subset of the job store the pipeline writes through.
type DispatchStore interface {
	GetByID(ctx context.Context, id string) (*model.Job, error)
	MarkRunning(ctx context.Context, id string, startTime time.Time) (bool, error)
	SetTotal(ctx context.Context, id string, total int) error
	UpdateCounts(ctx context.Context, id string, sent, failed int) error
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, detail string) error
	Finalize(ctx context.Context, id string, p data.FinalizeParams) error
	AppendFailure(ctx context.Context, p data.AppendFailureParams) error
}

// ArtifactStore opens uploaded job artifacts by stored filename.
type ArtifactStore interface {
	Open(name string) (io.ReadCloser, error)
}

// RecipientSource parses a recipient stream into ordered recipients.
type RecipientSource interface {
	Parse(r io.Reader) ([]model.Recipient, error)
}

// RateLimiter grants send slots against the shared hourly window.
type RateLimiter interface {
	TryReserve() ratelimit.Decision
	Limit() int
}

// DispatcherOptions groups dependencies for DispatcherService.
type DispatcherOptions struct {
	Store     DispatchStore         // Required: job store
	Artifacts ArtifactStore         // Required: uploaded file access
	Source    RecipientSource       // Required: recipient parsing
	Renderer  *template.Renderer    // Required: message templating
	Dialer    smtp.Dialer           // Required: SMTP session factory
	Limiter   RateLimiter           // Required: shared hourly quota
	Config    config.DispatchConfig // Timing knobs; zero values sanitized
	Metrics   statsd.Sink           // Optional
	Logger    *slog.Logger          // Optional

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// DispatcherService runs one job's send pipeline end to end: parse, compile,
// dial, per-recipient loop, finalize. The SMTP password is held in memory
// only for the duration of RunJob.
type DispatcherService struct {
	store     DispatchStore
	artifacts ArtifactStore
	source    RecipientSource
	renderer  *template.Renderer
	dialer    smtp.Dialer
	limiter   RateLimiter
	cfg       config.DispatchConfig
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewDispatcherService constructs a DispatcherService.
func NewDispatcherService(opts DispatcherOptions) (*DispatcherService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("Store is required")
	case opts.Artifacts == nil:
		return nil, errors.New("Artifacts is required")
	case opts.Source == nil:
		return nil, errors.New("Source is required")
	case opts.Renderer == nil:
		return nil, errors.New("Renderer is required")
	case opts.Dialer == nil:
		return nil, errors.New("Dialer is required")
	case opts.Limiter == nil:
		return nil, errors.New("Limiter is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = ctxSleep
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatcher")
	}

	return &DispatcherService{
		store:     opts.Store,
		artifacts: opts.Artifacts,
		source:    opts.Source,
		renderer:  opts.Renderer,
		dialer:    opts.Dialer,
		limiter:   opts.Limiter,
		cfg:       cfg,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
		sleep:     sleep,
	}, nil
}

// ctxSleep sleeps for d or until ctx is done, whichever is first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJob executes the pipeline for one job. The credential is used for this
// run only and never persisted. Returns nil when the job reached a terminal
// state, including terminal failure states; an error means the job record
// itself could not be driven.
func (s *DispatcherService) RunJob(ctx context.Context, jobID, smtpPassword string) error {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	claimed, err := s.store.MarkRunning(ctx, jobID, s.now())
	if err != nil {
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !claimed {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "job not claimable, skipping", "id", jobID, "status", job.Status)
		}
		return nil
	}

	started := s.now()
	s.count("jobs.started", 1, nil)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job started", "id", jobID, "subject", job.Subject)
	}

	run := &jobRun{job: job}
	s.execute(ctx, run, smtpPassword)

	// Finalization must land even when the run stopped on ctx cancellation.
	finalizeCtx := context.WithoutCancel(ctx)
	status, detail := run.final()
	if err := s.store.Finalize(finalizeCtx, jobID, data.FinalizeParams{
		Status:  status,
		Detail:  detail,
		Sent:    run.sent,
		Failed:  run.failed,
		EndTime: s.now(),
	}); err != nil {
		return fmt.Errorf("finalize job %s: %w", jobID, err)
	}

	s.count("jobs.finalized", 1, map[string]string{"status": string(status)})
	if s.metrics != nil {
		s.metrics.Timing("job.duration", s.now().Sub(started), nil)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job finished",
			"id", jobID, "status", status, "sent", run.sent, "failed", run.failed)
	}
	return nil
}

// jobRun accumulates one run's outcome. The final status is derived from the
// counts unless a setup failure pinned it first.
type jobRun struct {
	job    *model.Job
	total  int
	sent   int
	failed int

	// pinned terminal state from a setup failure or empty source.
	pinnedStatus model.JobStatus
	pinnedDetail string
}

func (r *jobRun) pin(status model.JobStatus, detail string) {
	r.pinnedStatus = status
	r.pinnedDetail = detail
}

// final computes the terminal status. Count combinations no rule covers fall
// back to failed with an explanatory detail rather than guessing.
func (r *jobRun) final() (model.JobStatus, string) {
	if r.pinnedStatus != "" {
		return r.pinnedStatus, r.pinnedDetail
	}
	switch {
	case r.sent == r.total && r.failed == 0:
		return model.JobStatusCompleted, ""
	case r.sent > 0 && r.failed > 0 && r.sent+r.failed == r.total:
		return model.JobStatusPartialFailure, ""
	case r.sent == 0 && r.failed == r.total:
		return model.JobStatusFailed, "all sends failed"
	}
	return model.JobStatusFailed,
		fmt.Sprintf("incomplete run: %d sent, %d failed of %d", r.sent, r.failed, r.total)
}

// execute drives the pipeline up to (not including) finalization.
func (s *DispatcherService) execute(ctx context.Context, run *jobRun, smtpPassword string) {
	job := run.job

	recipients, err := s.parseRecipients(job)
	if err != nil {
		run.pin(model.JobStatusFailed, err.Error())
		s.count("jobs.setup_failed", 1, map[string]string{"class": FailureClass(err)})
		return
	}

	run.total = len(recipients)
	if err := s.store.SetTotal(ctx, job.ID, run.total); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "persisting total failed", "id", job.ID, "error", err)
	}

	// An empty source is a successful no-op: no template work, no dial.
	if run.total == 0 {
		run.pin(model.JobStatusCompletedEmpty, "")
		return
	}

	compiled, err := s.compileTemplate(job)
	if err != nil {
		run.pin(model.JobStatusFailed, err.Error())
		s.count("jobs.setup_failed", 1, map[string]string{"class": FailureClass(err)})
		return
	}

	transport, err := s.dialer.Dial(ctx, smtp.Config{
		Host:           job.SMTPHost,
		Port:           job.SMTPPort,
		Username:       job.SenderEmail,
		Password:       smtpPassword,
		UseSSL:         job.UseSSL,
		UseTLS:         job.UseTLS,
		ConnectTimeout: s.cfg.ConnectTimeout,
	})
	if err != nil {
		// Nothing was attempted, but the job promised total recipients.
		run.failed = run.total
		run.pin(model.JobStatusFailed, err.Error())
		s.count("jobs.setup_failed", 1, map[string]string{"class": FailureClass(err)})
		return
	}
	defer func() { _ = transport.Close() }()

	s.sendLoop(ctx, run, recipients, compiled, transport)
}

func (s *DispatcherService) parseRecipients(job *model.Job) ([]model.Recipient, error) {
	f, err := s.artifacts.Open(job.CSVFilename)
	if err != nil {
		return nil, &recipient.SourceError{Err: err}
	}
	defer func() { _ = f.Close() }()
	return s.source.Parse(f)
}

func (s *DispatcherService) compileTemplate(job *model.Job) (*template.Compiled, error) {
	f, err := s.artifacts.Open(job.HTMLFilename)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", job.HTMLFilename, err)
	}
	defer func() { _ = f.Close() }()

	body, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", job.HTMLFilename, err)
	}
	return s.renderer.Compile(job.Subject, string(body))
}

// sendLoop walks the recipients in source order, gating each send on the
// shared hourly quota.
func (s *DispatcherService) sendLoop(
	ctx context.Context,
	run *jobRun,
	recipients []model.Recipient,
	compiled *template.Compiled,
	transport smtp.Transport,
) {
	job := run.job
	paused := false

	recordFailure := func(email string, cause error) {
		run.failed++
		class := FailureClass(cause)
		if err := s.store.AppendFailure(ctx, data.AppendFailureParams{
			JobID:          job.ID,
			RecipientEmail: email,
			ErrorClass:     class,
			ErrorMessage:   cause.Error(),
		}); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "recording failure failed", "id", job.ID, "error", err)
		}
		s.count("emails.failed", 1, map[string]string{"class": class})
	}
	persistCounts := func() {
		if err := s.store.UpdateCounts(ctx, job.ID, run.sent, run.failed); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "persisting counts failed", "id", job.ID, "error", err)
		}
	}

	for i, rec := range recipients {
		if ctx.Err() != nil {
			return
		}

		if !s.waitForSlot(ctx, run, &paused) {
			return
		}

		msg, err := compiled.Render(rec)
		if err != nil {
			recordFailure(rec.Email, err)
			persistCounts()
			continue
		}

		err = transport.Send(job.SenderEmail, rec.Email, msg.Subject, msg.HTML)
		switch {
		case err == nil:
			run.sent++
			persistCounts()
			s.count("emails.sent", 1, nil)
		case errors.Is(err, smtp.ErrTransportClosed):
			recordFailure(rec.Email, err)
			// The session is dead; everyone left is failed too.
			for _, rest := range recipients[i+1:] {
				recordFailure(rest.Email,
					fmt.Errorf("%w: session lost before send", smtp.ErrTransportClosed))
			}
			persistCounts()
			return
		default:
			recordFailure(rec.Email, err)
			persistCounts()
			continue
		}

		if i < len(recipients)-1 {
			if sleepErr := s.sleep(ctx, s.cfg.SendDelay); sleepErr != nil {
				return
			}
		}
	}
}

// waitForSlot blocks until the hourly limiter grants a slot, persisting the
// paused status once per episode and restoring running when granted. Returns
// false when the context ended while waiting.
func (s *DispatcherService) waitForSlot(ctx context.Context, run *jobRun, paused *bool) bool {
	job := run.job
	for {
		decision := s.limiter.TryReserve()
		if decision.Granted {
			if *paused {
				*paused = false
				if err := s.store.UpdateStatus(ctx, job.ID, model.JobStatusRunning, ""); err != nil && s.logger != nil {
					s.logger.WarnContext(ctx, "resuming status failed", "id", job.ID, "error", err)
				}
			}
			return true
		}

		if !*paused {
			*paused = true
			detail := fmt.Sprintf("Hourly Limit (%d/hr). Resumes ~%s",
				s.limiter.Limit(), decision.ResetAt.Format("15:04:05"))
			if err := s.store.UpdateStatus(ctx, job.ID, model.JobStatusPaused, detail); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "pausing status failed", "id", job.ID, "error", err)
			}
			s.count("rate_limit.paused", 1, nil)
			if s.logger != nil {
				s.logger.InfoContext(ctx, "hourly limit reached, pausing",
					"id", job.ID, "resumes", decision.ResetAt)
			}
		}

		if err := s.sleep(ctx, s.cfg.RateLimitBackoff); err != nil {
			return false
		}
	}
}

func (s *DispatcherService) count(name string, value int64, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count("dispatch."+name, value, tags)
	}
}
