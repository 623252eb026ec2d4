package queue

import (
	"time"

	"mcpq/internal/domain"
)

// windowLimiter is a fixed-window dispatch budget. Callers must hold the
// queue mutex; the limiter has no locking of its own.
type windowLimiter struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	if limit <= 0 {
		limit = domain.DefaultRateLimit
	}
	if window <= 0 {
		window = domain.DefaultRateLimitWindow
	}
	return &windowLimiter{
		limit:  limit,
		window: window,
	}
}

func (l *windowLimiter) roll(now time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
}

// allow consumes one unit of budget if the current window has any left.
func (l *windowLimiter) allow(now time.Time) bool {
	l.roll(now)
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

func (l *windowLimiter) usage(now time.Time) domain.RateLimitUsage {
	l.roll(now)
	return domain.RateLimitUsage{
		Current: l.count,
		Limit:   l.limit,
		ResetAt: l.windowStart.Add(l.window),
	}
}
