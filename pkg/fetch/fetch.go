// Package fetch implements C3: the throttled multi-source fetch layer —
// global concurrency cap, minimum interval spacing, retry with backoff and
// jitter, and a per-upstream-tag circuit breaker. Grounded on the teacher's
// core/pkg/util/resiliency.EnhancedClient and CircuitBreaker, generalized
// from a single default breaker to one per source tag.
package fetch

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/capazme/lexcore/pkg/legalerr"
)

// Response is what a successful Fetch returns.
type Response struct {
	Text    string
	Status  int
	Headers http.Header
}

// Client is the throttled fetch layer described by spec §4.3.
type Client struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	limiter    *rate.Limiter

	maxRetries     int
	backoffFactor  float64
	initialBackoff time.Duration
	jitter         time.Duration

	breakerFailureThreshold int
	breakerSuccessThreshold int
	breakerTimeout          time.Duration

	mu       sync.Mutex
	breakers map[string]*circuitBreaker

	log *slog.Logger
}

// Config carries the subset of pkg/config.Config the fetch layer needs —
// kept narrow so callers don't have to construct a full Config to test this
// package in isolation.
type Config struct {
	MaxConcurrency          int
	MinInterval             time.Duration
	MaxRetries              int
	BackoffFactor           float64
	InitialBackoff          time.Duration
	Jitter                  time.Duration
	Timeout                 time.Duration
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration
}

// New builds a Client. A zero-value field in cfg falls back to the spec's
// documented default.
func New(cfg Config) *Client {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 4
	}
	backoffFactor := cfg.BackoffFactor
	if backoffFactor <= 0 {
		backoffFactor = 2.0
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	jitter := cfg.Jitter
	if jitter <= 0 {
		jitter = 300 * time.Millisecond
	}
	failureThreshold := cfg.BreakerFailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	successThreshold := cfg.BreakerSuccessThreshold
	if successThreshold <= 0 {
		successThreshold = 2
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 60 * time.Second
	}

	// rate.Limiter enforces a minimum interval between request starts by
	// capping to one event per minInterval with a burst of 1.
	limit := rate.Every(minInterval)

	return &Client{
		httpClient:              &http.Client{Timeout: timeout},
		sem:                     semaphore.NewWeighted(int64(maxConcurrency)),
		limiter:                 rate.NewLimiter(limit, 1),
		maxRetries:              maxRetries,
		backoffFactor:           backoffFactor,
		initialBackoff:          initialBackoff,
		jitter:                  jitter,
		breakerFailureThreshold: failureThreshold,
		breakerSuccessThreshold: successThreshold,
		breakerTimeout:          breakerTimeout,
		breakers:                make(map[string]*circuitBreaker),
		log:                     slog.Default().With("component", "fetch"),
	}
}

func (c *Client) breakerFor(sourceTag string) *circuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[sourceTag]
	if !ok {
		b = newCircuitBreaker(sourceTag, c.breakerFailureThreshold, c.breakerSuccessThreshold, c.breakerTimeout)
		c.breakers[sourceTag] = b
	}
	return b
}

// Fetch retrieves url, tagged with sourceTag for circuit-breaker and
// logging purposes (e.g. "normattiva", "eurlex", "brocardi").
func (c *Client) Fetch(ctx context.Context, url, sourceTag string) (*Response, error) {
	breaker := c.breakerFor(sourceTag)
	if !breaker.Allow() {
		return nil, legalerr.RateLimitError("circuit breaker open for %s", sourceTag)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, legalerr.NetworkError(err, "acquiring fetch slot for %s", url)
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, legalerr.NetworkError(err, "waiting for min interval for %s", url)
	}

	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		breaker.Failure()
		return nil, err
	}
	breaker.Success()
	return resp, nil
}

func (c *Client) doWithRetry(ctx context.Context, url string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, retryAfter, err := c.attempt(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if k, ok := legalerr.KindOf(err); ok && (k == legalerr.ResourceNotFound || k == legalerr.Validation || k == legalerr.UpstreamRejected) {
			return nil, err
		}

		if attempt == c.maxRetries {
			break
		}

		delay := c.backoff(attempt)
		if retryAfter > delay {
			delay = retryAfter
		}
		c.log.Warn("retrying fetch", "url", url, "attempt", attempt, "delay", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, legalerr.NetworkError(ctx.Err(), "context cancelled during retry backoff")
		case <-timer.C:
		}
	}
	return nil, legalerr.NetworkError(lastErr, "retry budget exhausted for %s", url)
}

// attempt issues one HTTP GET. retryAfter is non-zero only for 429/503
// responses that carry a Retry-After header.
func (c *Client) attempt(ctx context.Context, url string) (resp *Response, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, legalerr.ValidationError("invalid url %q: %v", url, err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, legalerr.NetworkError(err, "request to %s failed", url)
	}
	defer httpResp.Body.Close()

	body, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return nil, 0, legalerr.NetworkError(readErr, "reading response body from %s", url)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, 0, legalerr.NotFound(url)
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode == http.StatusServiceUnavailable:
		ra := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return nil, ra, legalerr.RateLimitError("upstream returned %d for %s", httpResp.StatusCode, url)
	case httpResp.StatusCode >= 400 && httpResp.StatusCode < 500:
		// Spec §4.3: "On any 4xx other than 404/429, raise immediately" —
		// distinct from NetworkError so doWithRetry never retries it.
		return nil, 0, legalerr.UpstreamRejectedError("upstream returned %d for %s", httpResp.StatusCode, url)
	case httpResp.StatusCode >= 500:
		return nil, 0, legalerr.NetworkError(nil, "upstream returned %d for %s", httpResp.StatusCode, url)
	}

	return &Response{Text: string(body), Status: httpResp.StatusCode, Headers: httpResp.Header}, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}

// backoff computes initial * factor^attempt + Uniform(0, jitter), per
// spec §4.3, with crypto/rand-sourced jitter in the teacher's
// EnhancedClient.Do idiom.
func (c *Client) backoff(attempt int) time.Duration {
	base := float64(c.initialBackoff) * math.Pow(c.backoffFactor, float64(attempt))
	jitter := time.Duration(0)
	if c.jitter > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(c.jitter))); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return time.Duration(base) + jitter
}

// breakerState mirrors the three named states in spec §4.3.
type breakerState string

const (
	stateClosed   breakerState = "CLOSED"
	stateOpen     breakerState = "OPEN"
	stateHalfOpen breakerState = "HALF_OPEN"
)

// circuitBreaker is a per-source-tag instance of the state machine
// described in spec §4.3, generalized from the teacher's single
// process-wide CircuitBreaker.
type circuitBreaker struct {
	mu sync.Mutex

	name              string
	state             breakerState
	failureCount      int
	successCount      int
	failureThreshold  int
	successThreshold  int
	timeout           time.Duration
	lastFailure       time.Time
}

func newCircuitBreaker(name string, failureThreshold, successThreshold int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		name:             name,
		state:            stateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen {
		if time.Since(b.lastFailure) > b.timeout {
			b.state = stateHalfOpen
			b.successCount = 0
			return true
		}
		return false
	}
	return true
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = stateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case stateClosed:
		b.failureCount = 0
	}
}

func (b *circuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = time.Now()
	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
	case stateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = stateOpen
		}
	}
}

// State reports the breaker's current state for sourceTag, for tests and
// diagnostics.
func (c *Client) State(sourceTag string) string {
	return string(c.breakerFor(sourceTag).currentState())
}

func (b *circuitBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
