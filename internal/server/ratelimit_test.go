package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limiterWithClock(rl *RateLimiter, c *fakeClock) *RateLimiter {
	rl.now = c.now
	return rl
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 0)
	for range 100 {
		require.NoError(t, rl.CheckRateLimit("a", 1<<20))
	}
	usage := rl.Usage("a")
	assert.Equal(t, 100, usage.DayCount)
	assert.Equal(t, int64(100<<20), usage.DataToday)
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	clock := newFakeClock()
	rl := limiterWithClock(NewRateLimiter(2, 0, 0, 0), clock)

	require.NoError(t, rl.CheckRateLimit("a", 0))
	clock.advance(20 * time.Second)
	require.NoError(t, rl.CheckRateLimit("a", 0))

	err := rl.CheckRateLimit("a", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	require.NoError(t, rl.CheckRateLimit("b", 0), "clients are tracked separately")

	clock.advance(40 * time.Second)
	require.NoError(t, rl.CheckRateLimit("a", 0), "a new window starts after a minute")
}

func TestRateLimiter_RejectedRequestsAreNotCharged(t *testing.T) {
	clock := newFakeClock()
	rl := limiterWithClock(NewRateLimiter(1, 0, 0, 0), clock)
	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.Error(t, rl.CheckRateLimit("a", 0))
	require.Error(t, rl.CheckRateLimit("a", 0))
	assert.Equal(t, 1, rl.Usage("a").DayCount)
}

func TestRateLimiter_HourWindow(t *testing.T) {
	clock := newFakeClock()
	rl := limiterWithClock(NewRateLimiter(0, 3, 0, 0), clock)
	for range 3 {
		require.NoError(t, rl.CheckRateLimit("a", 0))
		clock.advance(time.Minute)
	}

	err := rl.CheckRateLimit("a", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 57*time.Minute, rle.RetryAfter)

	clock.advance(57 * time.Minute)
	require.NoError(t, rl.CheckRateLimit("a", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	clock := newFakeClock()
	rl := limiterWithClock(NewRateLimiter(0, 0, 2, 0), clock)
	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("a", 0))

	err := rl.CheckRateLimit("a", 0)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Limit)
	assert.Equal(t, int64(2), qe.Used)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), qe.Resets)

	clock.advance(14 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("a", 0), "quota resets at midnight")
}

func TestRateLimiter_DataQuota(t *testing.T) {
	rl := limiterWithClock(NewRateLimiter(0, 0, 0, 1000), newFakeClock())
	require.NoError(t, rl.CheckRateLimit("a", 600))

	err := rl.CheckRateLimit("a", 500)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(600), qe.Used)

	require.NoError(t, rl.CheckRateLimit("a", 400), "exactly at the limit is allowed")
}

func TestRateLimiter_Prune(t *testing.T) {
	clock := newFakeClock()
	rl := limiterWithClock(NewRateLimiter(10, 0, 0, 0), clock)
	require.NoError(t, rl.CheckRateLimit("old", 0))
	clock.advance(2 * time.Hour)
	require.NoError(t, rl.CheckRateLimit("new", 0))

	assert.Equal(t, 1, rl.Prune(time.Hour))
	assert.Zero(t, rl.Usage("old").DayCount)
	assert.Equal(t, 1, rl.Usage("new").DayCount)
}

func TestRateLimitErrors_Messages(t *testing.T) {
	rle := &RateLimitError{Type: "minute", Limit: 5, RetryAfter: 30 * time.Second}
	assert.Equal(t, "rate limit exceeded for minute (limit: 5, retry after: 30s)", rle.Error())

	qe := &QuotaExceededError{Type: "data", Limit: 10, Used: 9, Resets: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "quota exceeded for data (used: 9, limit: 10, resets: 2024-03-02T00:00:00Z)", qe.Error())
}
