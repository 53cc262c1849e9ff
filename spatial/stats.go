package spatial

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxBackoff = 60 * time.Second

// APIStats tracks statistics for an external API
type APIStats struct {
	Name          string
	Calls         int64
	Successes     int64
	Errors        int64
	RateLimitHits int64
	LastCall      time.Time
	LastSuccess   time.Time
	LastError     time.Time
	LastErrorMsg  string
	ConsecErrors  int // consecutive errors (for backoff)
}

// Stats tracks per-API call statistics for an ExternalClient
type Stats struct {
	mu        sync.RWMutex
	apis      map[string]*APIStats
	startTime time.Time
}

// NewStats returns an empty stats table
func NewStats() *Stats {
	return &Stats{
		apis:      make(map[string]*APIStats),
		startTime: time.Now(),
	}
}

// getOrCreateAPI returns stats for an API, creating if needed (caller must hold lock)
func (s *Stats) getOrCreateAPI(name string) *APIStats {
	if api, ok := s.apis[name]; ok {
		return api
	}
	api := &APIStats{Name: name}
	s.apis[name] = api
	return api
}

// API returns a copy of the stats for an API
func (s *Stats) API(name string) APIStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if api, ok := s.apis[name]; ok {
		return *api
	}
	return APIStats{Name: name}
}

// RecordCall records an API call attempt
func (s *Stats) RecordCall(name string) {
	s.mu.Lock()
	api := s.getOrCreateAPI(name)
	api.Calls++
	api.LastCall = time.Now()
	s.mu.Unlock()
}

// RecordSuccess records a successful API call
func (s *Stats) RecordSuccess(name string) {
	s.mu.Lock()
	api := s.getOrCreateAPI(name)
	api.Successes++
	api.LastSuccess = time.Now()
	api.ConsecErrors = 0
	s.mu.Unlock()
}

// RecordError records an API error
func (s *Stats) RecordError(name string, err error) {
	s.mu.Lock()
	api := s.getOrCreateAPI(name)
	api.Errors++
	api.LastError = time.Now()
	api.LastErrorMsg = err.Error()
	api.ConsecErrors++
	s.mu.Unlock()
}

// RecordRateLimit records a rate limit hit
func (s *Stats) RecordRateLimit(name string) {
	s.mu.Lock()
	api := s.getOrCreateAPI(name)
	api.RateLimitHits++
	api.ConsecErrors++
	s.mu.Unlock()
}

// Backoff returns how long to wait before calling an API again, measured
// from its last error. Exponential: 1s, 2s, 4s ... capped at 60s.
func (s *Stats) Backoff(name string) time.Duration {
	s.mu.RLock()
	api := s.apis[name]
	var consecErrors int
	var lastError time.Time
	if api != nil {
		consecErrors = api.ConsecErrors
		lastError = api.LastError
	}
	s.mu.RUnlock()

	if consecErrors == 0 {
		return 0
	}

	backoff := maxBackoff
	if consecErrors <= 6 {
		backoff = time.Duration(1<<uint(consecErrors-1)) * time.Second
	}

	if lastError.IsZero() {
		return backoff
	}
	if remaining := backoff - time.Since(lastError); remaining > 0 {
		return remaining
	}
	return 0
}

// Summary returns a one-line-per-API summary
func (s *Stats) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.apis))
	for name := range s.apis {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{fmt.Sprintf("uptime %s", formatDuration(time.Since(s.startTime)))}
	for _, name := range names {
		api := s.apis[name]
		successRate := float64(0)
		if api.Calls > 0 {
			successRate = float64(api.Successes) / float64(api.Calls) * 100
		}
		line := fmt.Sprintf("%s: %d calls (%.1f%% success)", name, api.Calls, successRate)
		if api.ConsecErrors > 0 {
			line += fmt.Sprintf(", %d consecutive errors, last: %s", api.ConsecErrors, truncate(api.LastErrorMsg, 50))
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
