package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces fixed-window request limits and daily quotas per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	now     func() time.Time
	clients map[string]*ClientUsage
}

// ClientUsage tracks the windows of one client.
type ClientUsage struct {
	MinuteStart time.Time
	MinuteCount int
	HourStart   time.Time
	HourCount   int
	Day         time.Time // local midnight of the current quota day
	DayCount    int
	DataToday   int64
	LastSeen    time.Time
}

// NewRateLimiter creates a rate limiter. A zero limit is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		now:               time.Now,
		clients:           make(map[string]*ClientUsage),
	}
}

// CheckRateLimit admits or rejects one request of dataSize bytes from clientID.
// Admitted requests are charged against every window.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clients[clientID]
	if u == nil {
		u = &ClientUsage{MinuteStart: now, HourStart: now, Day: midnight(now)}
		rl.clients[clientID] = u
	}
	roll(u, now)

	if rl.requestsPerMinute > 0 && u.MinuteCount >= rl.requestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: u.MinuteStart.Add(time.Minute).Sub(now)}
	}
	if rl.requestsPerHour > 0 && u.HourCount >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.HourStart.Add(time.Hour).Sub(now)}
	}
	resets := u.Day.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.DayCount >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.DayCount), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.DataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.DataToday, Resets: resets}
	}

	u.MinuteCount++
	u.HourCount++
	u.DayCount++
	u.DataToday += dataSize
	u.LastSeen = now
	return nil
}

// roll starts new windows for every period that has elapsed.
func roll(u *ClientUsage, now time.Time) {
	if now.Sub(u.MinuteStart) >= time.Minute {
		u.MinuteStart, u.MinuteCount = now, 0
	}
	if now.Sub(u.HourStart) >= time.Hour {
		u.HourStart, u.HourCount = now, 0
	}
	if day := midnight(now); !day.Equal(u.Day) {
		u.Day, u.DayCount, u.DataToday = day, 0, 0
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Usage returns a copy of the client's current usage.
func (rl *RateLimiter) Usage(clientID string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.clients[clientID]; ok {
		return *u
	}
	return ClientUsage{}
}

// Prune forgets clients not seen within idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	removed := 0
	for id, u := range rl.clients {
		if u.LastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
