package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capazme/lexcore/pkg/legalerr"
)

func fastClient() *Client {
	return New(Config{
		MaxConcurrency:          4,
		MinInterval:             time.Millisecond,
		MaxRetries:              2,
		BackoffFactor:           1.0,
		InitialBackoff:          time.Millisecond,
		Jitter:                  time.Millisecond,
		Timeout:                 time.Second,
		BreakerFailureThreshold: 2,
		BreakerSuccessThreshold: 1,
		BreakerTimeout:          20 * time.Millisecond,
	})
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := fastClient()
	resp, err := c.Fetch(context.Background(), srv.URL, "test")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Fetch().Text = %q, want hello", resp.Text)
	}
}

func TestFetch404IsNotFoundNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := fastClient()
	_, err := c.Fetch(context.Background(), srv.URL, "test")
	if kind, ok := legalerr.KindOf(err); !ok || kind != legalerr.ResourceNotFound {
		t.Errorf("error kind = %v, %v, want ResourceNotFound, true", kind, ok)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want exactly 1 (no retry on 404)", got)
	}
}

func TestFetch403IsUpstreamRejectedNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := fastClient()
	_, err := c.Fetch(context.Background(), srv.URL, "test")
	if kind, ok := legalerr.KindOf(err); !ok || kind != legalerr.UpstreamRejected {
		t.Errorf("error kind = %v, %v, want UpstreamRejected, true", kind, ok)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want exactly 1 (no retry on non-404/429 4xx)", got)
	}
}

func TestFetch400IsUpstreamRejectedNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := fastClient()
	_, err := c.Fetch(context.Background(), srv.URL, "test")
	if kind, ok := legalerr.KindOf(err); !ok || kind != legalerr.UpstreamRejected {
		t.Errorf("error kind = %v, %v, want UpstreamRejected, true", kind, ok)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want exactly 1 (no retry on non-404/429 4xx)", got)
	}
}

func TestFetchRetriesOn500ThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := fastClient()
	resp, err := c.Fetch(context.Background(), srv.URL, "retry-tag")
	if err != nil {
		t.Fatalf("Fetch returned error after retries: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Fetch().Text = %q, want ok", resp.Text)
	}
}

func TestFetchCircuitBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fastClient()

	// Two independent Fetch calls exhaust their retry budgets and each
	// records one Failure; failureThreshold is 2, so the breaker should
	// open on the second.
	_, _ = c.Fetch(context.Background(), srv.URL, "breaker-tag")
	_, _ = c.Fetch(context.Background(), srv.URL, "breaker-tag")

	if got := c.State("breaker-tag"); got != string(stateOpen) {
		t.Errorf("breaker state = %q, want OPEN", got)
	}

	_, err := c.Fetch(context.Background(), srv.URL, "breaker-tag")
	if kind, ok := legalerr.KindOf(err); !ok || kind != legalerr.RateLimit {
		t.Errorf("error kind with open breaker = %v, %v, want RateLimit, true", kind, ok)
	}
}

func TestFetchCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := fastClient()
	_, _ = c.Fetch(context.Background(), srv.URL, "recovery-tag")
	_, _ = c.Fetch(context.Background(), srv.URL, "recovery-tag")
	if got := c.State("recovery-tag"); got != string(stateOpen) {
		t.Fatalf("breaker state = %q, want OPEN before recovery window", got)
	}

	fail.Store(false)
	time.Sleep(30 * time.Millisecond)

	resp, err := c.Fetch(context.Background(), srv.URL, "recovery-tag")
	if err != nil {
		t.Fatalf("Fetch after recovery window returned error: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Fetch().Text = %q, want recovered", resp.Text)
	}
	if got := c.State("recovery-tag"); got != string(stateClosed) {
		t.Errorf("breaker state after one success (successThreshold=1) = %q, want CLOSED", got)
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	d := parseRetryAfter("2")
	if d != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %v, want 2s", d)
	}
}

func TestParseRetryAfterEmpty(t *testing.T) {
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v, want 0", d)
	}
}
