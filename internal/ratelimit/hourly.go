// Package ratelimit implements the hourly send quota shared by every
// concurrently running job.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultHourlyLimit is the number of sends allowed per rolling window.
const DefaultHourlyLimit = 300

// Decision is the outcome of one reservation attempt.
type Decision struct {
	// Granted reports whether the caller may send now. A granted slot is
	// consumed immediately and is never returned, even if the send fails.
	Granted bool
	// ResetAt is when the current window ends and sending can resume.
	// Only meaningful when Granted is false.
	ResetAt time.Time
}

// HourlyLimiter enforces a process-wide cap of limit sends per hour. The
// window starts on the first reservation after a reset and ends exactly one
// hour later. Safe for concurrent use.
type HourlyLimiter struct {
	mu          sync.Mutex
	limit       int
	count       int
	windowStart time.Time
	now         func() time.Time
}

// NewHourlyLimiter creates a limiter allowing limit sends per hour. A
// non-positive limit falls back to DefaultHourlyLimit.
func NewHourlyLimiter(limit int) *HourlyLimiter {
	if limit <= 0 {
		limit = DefaultHourlyLimit
	}
	return &HourlyLimiter{limit: limit, now: time.Now}
}

// NewHourlyLimiterAt is NewHourlyLimiter with an injectable clock, for tests.
func NewHourlyLimiterAt(limit int, now func() time.Time) *HourlyLimiter {
	l := NewHourlyLimiter(limit)
	if now != nil {
		l.now = now
	}
	return l
}

// Limit returns the configured hourly cap.
func (l *HourlyLimiter) Limit() int {
	return l.limit
}

// TryReserve attempts to consume one send slot. Reservation and count
// increment are atomic under the lock, so concurrent jobs never oversubscribe
// the window.
func (l *HourlyLimiter) TryReserve() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= time.Hour {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.limit {
		return Decision{Granted: false, ResetAt: l.windowStart.Add(time.Hour)}
	}
	l.count++
	return Decision{Granted: true}
}
