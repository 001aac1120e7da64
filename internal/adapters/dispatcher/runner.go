// Package dispatcher provides the adapter that runs submitted jobs in the
// background, one goroutine per job.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// JobRunner executes one job's send pipeline to a terminal state.
type JobRunner interface {
	RunJob(ctx context.Context, jobID, smtpPassword string) error
}

// submission pairs a job ID with its in-memory credential. The credential
// travels only through this channel, never through storage.
type submission struct {
	jobID        string
	smtpPassword string
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Runner JobRunner // Required

	// MaxConcurrentJobs caps simultaneously running jobs. 0 means unlimited.
	MaxConcurrentJobs int
	// QueueSize bounds submissions waiting for pickup. Defaults to 64.
	QueueSize int
	Logger    *slog.Logger // Optional
}

// Runner accepts job submissions from the HTTP layer and executes each in
// its own goroutine, optionally bounded by a concurrency cap.
type Runner struct {
	runner JobRunner
	queue  chan submission
	sem    chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// ErrRunnerStopped is returned by Submit after the runner has shut down.
var ErrRunnerStopped = errors.New("dispatcher runner stopped")

// ErrQueueFull is returned by Submit when the intake queue is saturated.
var ErrQueueFull = errors.New("dispatcher queue full")

// NewRunner creates a dispatcher runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Runner == nil {
		return nil, errors.New("Runner is required")
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	var sem chan struct{}
	if opts.MaxConcurrentJobs > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentJobs)
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatcher_runner")
	}

	return &Runner{
		runner: opts.Runner,
		queue:  make(chan submission, queueSize),
		sem:    sem,
		logger: logger,
	}, nil
}

// Submit hands a pending job and its credential to the runner. Non-blocking;
// a saturated queue is reported to the caller instead of stalling uploads.
func (r *Runner) Submit(jobID, smtpPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	select {
	case r.queue <- submission{jobID: jobID, smtpPassword: smtpPassword}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes submissions until ctx is canceled, then waits for in-flight
// jobs to finalize. Always returns nil; shutdown is not an error.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "dispatcher runner started",
			"max_concurrent", cap(r.sem), "queue_size", cap(r.queue))
	}

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			if r.logger != nil {
				r.logger.Info("dispatcher runner stopped")
			}
			return nil
		case sub := <-r.queue:
			if r.sem != nil {
				select {
				case r.sem <- struct{}{}:
				case <-ctx.Done():
					r.shutdown()
					return nil
				}
			}
			r.wg.Add(1)
			go r.runOne(ctx, sub)
		}
	}
}

func (r *Runner) runOne(ctx context.Context, sub submission) {
	defer r.wg.Done()
	if r.sem != nil {
		defer func() { <-r.sem }()
	}

	if err := r.runner.RunJob(ctx, sub.jobID, sub.smtpPassword); err != nil && r.logger != nil {
		r.logger.ErrorContext(ctx, "job run failed", "id", sub.jobID, "error", err)
	}
}

func (r *Runner) shutdown() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wg.Wait()
}
