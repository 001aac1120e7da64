package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourlyLimiterGrantsUpToLimit(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewHourlyLimiterAt(3, func() time.Time { return start })

	for i := 0; i < 3; i++ {
		d := l.TryReserve()
		assert.True(t, d.Granted, "reservation %d should be granted", i+1)
	}

	d := l.TryReserve()
	require.False(t, d.Granted)
	assert.Equal(t, start.Add(time.Hour), d.ResetAt)
}

func TestHourlyLimiterWindowReset(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewHourlyLimiterAt(1, func() time.Time { return now })

	require.True(t, l.TryReserve().Granted)
	require.False(t, l.TryReserve().Granted)

	// Just shy of the window boundary: still denied.
	now = now.Add(time.Hour - time.Second)
	require.False(t, l.TryReserve().Granted)

	// Past the boundary: fresh window.
	now = now.Add(2 * time.Second)
	require.True(t, l.TryReserve().Granted)
	require.False(t, l.TryReserve().Granted)
}

func TestHourlyLimiterSlotsNotReturned(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewHourlyLimiterAt(2, func() time.Time { return start })

	require.True(t, l.TryReserve().Granted)
	require.True(t, l.TryReserve().Granted)
	// The first two sends could have failed; the slots stay consumed.
	assert.False(t, l.TryReserve().Granted)
}

func TestHourlyLimiterDefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultHourlyLimit, NewHourlyLimiter(0).Limit())
	assert.Equal(t, DefaultHourlyLimit, NewHourlyLimiter(-5).Limit())
	assert.Equal(t, 10, NewHourlyLimiter(10).Limit())
}

func TestHourlyLimiterConcurrentReservations(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l := NewHourlyLimiterAt(50, func() time.Time { return start })

	var wg sync.WaitGroup
	granted := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryReserve().Granted {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.Equal(t, 50, count, "exactly the limit must be granted across goroutines")
}
