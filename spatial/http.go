package spatial

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const userAgent = "Dispatch/1.0"

// ExternalClient wraps http.Client with rate limiting, backoff, stats, and logging
type ExternalClient struct {
	client  *http.Client
	limiter *RateLimiter
	stats   *Stats
}

// NewExternalClient creates a client. minInterval spaces calls to the same API.
func NewExternalClient(client *http.Client, minInterval time.Duration) *ExternalClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ExternalClient{
		client:  client,
		limiter: NewRateLimiter(minInterval),
		stats:   NewStats(),
	}
}

// Stats returns the per-API statistics
func (c *ExternalClient) Stats() *Stats {
	return c.stats
}

// Get performs a GET against url, tracked under apiName
func (c *ExternalClient) Get(ctx context.Context, apiName, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return c.Do(apiName, req)
}

// Do executes the request with backoff, rate limiting and stats.
// HTTP error statuses are returned with the response so callers can read the body.
func (c *ExternalClient) Do(apiName string, req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// back off after consecutive errors
	if backoff := c.stats.Backoff(apiName); backoff > 0 {
		log.Printf("[http] %s: backing off %.1fs", apiName, backoff.Seconds())
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
	}

	if err := c.limiter.Wait(ctx, apiName); err != nil {
		return nil, err
	}

	c.stats.RecordCall(apiName)
	start := time.Now()

	resp, err := c.client.Do(req)
	duration := time.Since(start)

	status := "err"
	if resp != nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	log.Printf("[http] %s %s %s %s (%dms)", apiName, req.Method, redactURL(req), status, duration.Milliseconds())

	if err != nil {
		c.stats.RecordError(apiName, err)
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.stats.RecordRateLimit(apiName)
		return resp, fmt.Errorf("%s rate limited (429)", apiName)
	}

	if resp.StatusCode >= 400 {
		c.stats.RecordError(apiName, fmt.Errorf("HTTP %d", resp.StatusCode))
	} else {
		c.stats.RecordSuccess(apiName)
	}

	return resp, nil
}

// GetBody is a convenience method that returns body bytes for a 2xx response
func (c *ExternalClient) GetBody(ctx context.Context, apiName, url string) ([]byte, error) {
	resp, err := c.Get(ctx, apiName, url)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// redactURL drops the query string, which may carry API keys
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return truncate(u.String(), 80)
}
