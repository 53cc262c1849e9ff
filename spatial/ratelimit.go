package spatial

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces out calls to the same external API
type RateLimiter struct {
	mu          sync.Mutex
	lastCall    map[string]time.Time
	minInterval time.Duration
}

// NewRateLimiter returns a limiter enforcing minInterval between calls per API.
// A zero interval disables limiting.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		lastCall:    make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Wait blocks until apiName may be called again or ctx is done.
// The slot is reserved before waiting so concurrent callers queue up.
func (l *RateLimiter) Wait(ctx context.Context, apiName string) error {
	if l == nil || l.minInterval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := now
	if last, ok := l.lastCall[apiName]; ok {
		if next := last.Add(l.minInterval); next.After(now) {
			slot = next
		}
	}
	l.lastCall[apiName] = slot
	l.mu.Unlock()

	return sleepCtx(ctx, time.Until(slot))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
