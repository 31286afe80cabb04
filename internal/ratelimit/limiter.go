package ratelimit

import (
	"context"
	"time"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
)

// Entry is the state of one fixed window for a key.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Store counts requests per key. Implementations must be safe for concurrent use.
type Store interface {
	// Incr records one request and returns the window state after the increment.
	// A missing or elapsed window starts over at count 1 with ResetAt = now + window.
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error)
	// Sweep evicts windows that ended before now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	if rounded := wait.Truncate(time.Second); rounded < wait {
		return rounded + time.Second
	}
	return wait
}

// Limiter admits at most limit requests per identity within a window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewLimiter(store Store, limit int, window time.Duration, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow counts one request for the identity. The (limit+1)th request inside a
// window is denied. If the store is unavailable the request is admitted.
func (l *Limiter) Allow(ctx context.Context, identity domain.Identity) (Decision, error) {
	if identity.IsZero() {
		return Decision{}, domain.ErrUnauthorized
	}

	now := l.now()
	entry, err := l.store.Incr(ctx, identity.RateLimitKey(), l.window, now)
	if err != nil {
		l.logger.WithError(err).WithField("user_id", identity.UserID).Warn("rate limit store unavailable, admitting request")
		return Decision{Allowed: true, Remaining: l.limit, ResetAt: now.Add(l.window)}, nil
	}

	remaining := l.limit - entry.Count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   entry.Count <= l.limit,
		Remaining: remaining,
		ResetAt:   entry.ResetAt,
	}, nil
}

// Limit returns the configured ceiling per window.
func (l *Limiter) Limit() int {
	return l.limit
}
