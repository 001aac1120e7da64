package data

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailrun/mailrun/internal/domain/model"
)

const statsCacheKey = "mailrun:job_stats"

// StatsCache caches aggregated job stats in Redis so dashboard refreshes do
// not hammer Postgres. All methods are safe on a nil receiver, which is how
// deployments without Redis run.
type StatsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewStatsCache creates a stats cache backed by the given Redis client.
// Returns nil (a disabled cache) when client is nil.
func NewStatsCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *StatsCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl, logger: logger}
}

// Get returns cached stats and true on a hit. Cache errors are logged and
// reported as misses; the caller falls back to the database.
func (c *StatsCache) Get(ctx context.Context) (*model.JobStats, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.WarnContext(ctx, "stats cache read failed", "error", err)
		}
		return nil, false
	}

	var stats model.JobStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "stats cache payload corrupt", "error", err)
		}
		return nil, false
	}
	return &stats, true
}

// Set stores stats with the configured TTL. Best-effort; errors are logged.
func (c *StatsCache) Set(ctx context.Context, stats *model.JobStats) {
	if c == nil || stats == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsCacheKey, payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "stats cache write failed", "error", err)
	}
}

// Invalidate drops the cached stats, called after job state transitions.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, statsCacheKey).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "stats cache invalidate failed", "error", err)
	}
}
