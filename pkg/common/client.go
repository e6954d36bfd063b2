package common

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned once a collaborator call has exhausted its
// retry budget or its circuit breaker is open. The manager treats it as
// "no data this cycle" rather than a cycle failure.
var ErrUnavailable = errors.New("collaborator unavailable")

// RetryPolicy configures retry behavior for collaborator HTTP calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the standard policy for collaborator calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Client wraps an *http.Client with a circuit breaker and retries with
// exponential backoff and jitter. Every collaborator client (battery,
// thermostat, forecast, mail) goes through it so transport errors all
// degrade the same way.
type Client struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	retry   RetryPolicy
	sleep   func(time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSleepFunc overrides the sleep between retries. Tests use this to
// avoid real delays.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithHTTPClient overrides the underlying http client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a resilient HTTP client named for its collaborator.
// The name scopes the circuit breaker so one misbehaving collaborator
// never opens another's circuit.
func NewClient(name string, timeout time.Duration, retry RetryPolicy, opts ...ClientOption) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		client:  HTTPClient(timeout),
		breaker: cb,
		retry:   retry,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request, retrying on transport errors, 429s, and 5xx
// responses. The request body is snapshotted so it can be replayed on
// retries. When all attempts fail, the returned error wraps ErrUnavailable.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body.Close()
	}

	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				r.Body.Close()
				return nil, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// breaker is open, retrying now won't help
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		if attempt < c.retry.MaxAttempts-1 {
			wait := c.backoff(attempt)
			log.Ctx(ctx).DebugContext(ctx, "retrying collaborator call",
				slog.String("url", req.URL.String()),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
			c.sleep(wait)
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// backoff returns the delay before the next attempt: exponential from
// BaseDelay with up to 25% jitter, capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > c.retry.MaxDelay {
		d = c.retry.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.25 * float64(d))
	return d + jitter
}
