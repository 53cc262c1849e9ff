package spatial

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBackoffGrowsWithConsecutiveErrors(t *testing.T) {
	s := NewStats()

	if b := s.Backoff("directions"); b != 0 {
		t.Errorf("fresh API backoff = %v, want 0", b)
	}

	s.RecordError("directions", errors.New("boom"))
	first := s.Backoff("directions")
	if first <= 0 || first > time.Second {
		t.Errorf("backoff after one error = %v, want (0, 1s]", first)
	}

	s.RecordError("directions", errors.New("boom"))
	s.RecordError("directions", errors.New("boom"))
	third := s.Backoff("directions")
	if third <= 2*time.Second || third > 4*time.Second {
		t.Errorf("backoff after three errors = %v, want (2s, 4s]", third)
	}

	s.RecordSuccess("directions")
	if b := s.Backoff("directions"); b != 0 {
		t.Errorf("backoff after success = %v, want 0", b)
	}

	summary := s.Summary()
	if !strings.Contains(summary, "directions: 0 calls") {
		t.Errorf("summary missing api line:\n%s", summary)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	s := NewStats()
	for i := 0; i < 20; i++ {
		s.RecordRateLimit("directions")
	}
	if b := s.Backoff("directions"); b != maxBackoff {
		t.Errorf("backoff = %v, want cap %v", b, maxBackoff)
	}
}

func TestRateLimiterSpacesCalls(t *testing.T) {
	l := NewRateLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "directions"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("three calls took %v, want at least 60ms", elapsed)
	}

	// other APIs are not held up
	start = time.Now()
	if err := l.Wait(ctx, "geocode"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("independent API waited %v", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	l := NewRateLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx, "directions"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "directions"); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait after cancel = %v, want context.Canceled", err)
	}
}
