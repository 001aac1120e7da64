package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/mailrun/mailrun/internal/data"
	"github.com/mailrun/mailrun/internal/domain/model"
)

// JobReadWriteStore is the store surface the job service needs.
type JobReadWriteStore interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, limit int) ([]*model.Job, error)
	ListFailures(ctx context.Context, jobID string) ([]*model.FailureRecord, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store  JobReadWriteStore // Required
	Cache  *data.StatsCache  // Optional: nil disables stats caching
	Logger *slog.Logger      // Optional
}

// JobService provides read and create operations for the HTTP surface.
type JobService struct {
	store  JobReadWriteStore
	cache  *data.StatsCache
	logger *slog.Logger
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("Store is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}
	return &JobService{store: opts.Store, cache: opts.Cache, logger: logger}, nil
}

// Create records a new pending job.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.cache.Invalidate(ctx)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job created", "id", job.ID, "subject", job.Subject)
	}
	return job, nil
}

// Get returns one job by ID.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.store.GetByID(ctx, id)
}

// List returns jobs for the dashboard, most recent first.
func (s *JobService) List(ctx context.Context, limit int) ([]*model.Job, error) {
	return s.store.List(ctx, limit)
}

// Failures returns a job's failure records, newest first.
func (s *JobService) Failures(ctx context.Context, jobID string) ([]*model.FailureRecord, error) {
	// Surface not-found for the job itself rather than an empty list.
	if _, err := s.store.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListFailures(ctx, jobID)
}

// DomainFailureCount is one row of the per-domain failure summary.
type DomainFailureCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// FailureSummary buckets a job's failures by the recipient's registrable
// domain (mail.example.co.uk -> example.co.uk), most-affected first.
func (s *JobService) FailureSummary(ctx context.Context, jobID string) ([]DomainFailureCount, error) {
	records, err := s.Failures(ctx, jobID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[registrableDomain(rec.RecipientEmail)]++
	}

	summary := make([]DomainFailureCount, 0, len(counts))
	for domain, count := range counts {
		summary = append(summary, DomainFailureCount{Domain: domain, Count: count})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Domain < summary[j].Domain
	})
	return summary, nil
}

func registrableDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "unknown"
	}
	host := strings.ToLower(email[at+1:])
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}

// Stats returns job counts per status bucket, served from the Redis cache
// when warm.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, stats)
	return stats, nil
}
