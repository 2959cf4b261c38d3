// Package legalerr defines the typed error taxonomy carried through every
// component of the retrieval core, per spec §7. Callers (the out-of-scope
// HTTP router) switch on Kind to pick a status code; this package never
// writes an HTTP response itself.
package legalerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec §7 does.
type Kind string

const (
	Validation       Kind = "validation"
	ResourceNotFound Kind = "resource_not_found"
	Network          Kind = "network"
	RateLimit        Kind = "rate_limit"
	Parsing          Kind = "parsing"
	// UpstreamRejected is a 4xx other than 404/429 from an upstream host —
	// the request itself was rejected (bad syntax, forbidden, gone, ...),
	// so spec §4.3 says "raise immediately": non-retryable, distinct from
	// ResourceNotFound and from the caller's own Validation failures.
	UpstreamRejected Kind = "upstream_rejected"
)

// Error is the typed error carried through the core. Detail is always
// safe to show a caller; Diagnostic (HTML snippets, upstream bodies) is
// logged internally and never surfaced — see spec §7 "internal diagnostics
// ... never reach the caller".
type Error struct {
	Kind       Kind
	Detail     string
	Diagnostic string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &legalerr.Error{Kind: legalerr.Validation}) style
// checks by matching Kind against a sentinel constructed with that Kind and
// no other fields set.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind && te.Detail == "" && te.Cause == nil
	}
	return false
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// ValidationError reports malformed input: missing act_type/article,
// unparsable article spec, bad date format, non-boolean flag.
func ValidationError(format string, args ...any) *Error {
	return newf(Validation, nil, format, args...)
}

// NotFound reports a missing article, URN, or subsection upstream.
// Non-retryable.
func NotFound(urnOrDetail string) *Error {
	return &Error{Kind: ResourceNotFound, Detail: fmt.Sprintf("not found: %s", urnOrDetail)}
}

// NetworkError wraps a transport failure (timeout, DNS, reset, exhausted
// retry budget, non-503 5xx).
func NetworkError(cause error, format string, args ...any) *Error {
	return newf(Network, cause, format, args...)
}

// RateLimitError reports a 429/503 upstream response or an open circuit
// breaker failing fast.
func RateLimitError(format string, args ...any) *Error {
	return newf(RateLimit, nil, format, args...)
}

// UpstreamRejectedError reports a 4xx upstream response other than 404/429.
// Non-retryable.
func UpstreamRejectedError(format string, args ...any) *Error {
	return newf(UpstreamRejected, nil, format, args...)
}

// ParsingError reports an HTML structure that matched none of the known
// layout scenarios. Diagnostic carries the first 200 characters of the
// offending HTML for internal logs only — never surface it to a caller.
func ParsingError(diagnostic string, format string, args ...any) *Error {
	e := newf(Parsing, nil, format, args...)
	if len(diagnostic) > 200 {
		diagnostic = diagnostic[:200]
	}
	e.Diagnostic = diagnostic
	return e
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise — callers that don't care about Kind can ignore the bool.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
