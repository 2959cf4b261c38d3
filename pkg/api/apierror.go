// Package api provides RFC 7807 Problem Detail error responses for the
// lexcore HTTP demonstration seam, adapted from the teacher's
// core/pkg/api error-writer idiom (same response shape, narrowed to the
// handful of status codes this module's error taxonomy ever produces).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/capazme/lexcore/pkg/legalerr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://lexcore.example/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 error response.
func WriteTooManyRequests(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteInternal writes a 500 error response. err is logged but never
// exposed to the caller.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteDomainError dispatches a legalerr.Error (or any error) to the
// status code its Kind implies, never leaking its internal diagnostic.
func WriteDomainError(w http.ResponseWriter, err error) {
	kind, ok := legalerr.KindOf(err)
	if !ok {
		WriteInternal(w, err)
		return
	}
	switch kind {
	case legalerr.Validation:
		WriteBadRequest(w, err.Error())
	case legalerr.ResourceNotFound:
		WriteNotFound(w, err.Error())
	case legalerr.RateLimit:
		WriteTooManyRequests(w, err.Error())
	case legalerr.Network, legalerr.Parsing, legalerr.UpstreamRejected:
		WriteError(w, http.StatusBadGateway, "Upstream Error", err.Error())
	default:
		WriteInternal(w, err)
	}
}
