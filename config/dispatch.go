package config

import "time"

// DispatchConfig contains dispatcher, rate limit, and SMTP session tuning.
// SMTP server, credentials, and TLS mode arrive per job from the upload
// form; only cross-job knobs live here.
type DispatchConfig struct {
	// MaxConcurrentJobs caps simultaneously running jobs. 0 means unlimited.
	MaxConcurrentJobs int `env:"DISPATCH_MAX_CONCURRENT_JOBS" envDefault:"0"`

	// HourlyLimit is the process-wide send quota per rolling hour, shared
	// across all concurrently running jobs.
	HourlyLimit int `env:"DISPATCH_HOURLY_LIMIT" envDefault:"300"`

	// RateLimitBackoff is how long a paused job waits before re-checking
	// the quota.
	RateLimitBackoff time.Duration `env:"DISPATCH_RATE_LIMIT_BACKOFF" envDefault:"30s"`

	// SendDelay is the pause after each successful send, to respect
	// provider throughput limits.
	SendDelay time.Duration `env:"DISPATCH_SEND_DELAY" envDefault:"1.5s"`

	// ConnectTimeout bounds SMTP connect, TLS negotiation, and login.
	ConnectTimeout time.Duration `env:"DISPATCH_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (c *DispatchConfig) Sanitize() {
	if c.MaxConcurrentJobs < 0 {
		c.MaxConcurrentJobs = 0
	}
	if c.HourlyLimit <= 0 {
		c.HourlyLimit = 300
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 30 * time.Second
	}
	if c.SendDelay < 0 {
		c.SendDelay = 1500 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}
