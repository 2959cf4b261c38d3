package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/capazme/lexcore/pkg/legalerr"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to decode ProblemDetail: %v", err)
	}
	return p
}

func TestWriteBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBadRequest(rec, "missing act_type")

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	p := decodeProblem(t, rec)
	if p.Status != 400 || p.Detail != "missing act_type" {
		t.Errorf("problem = %+v, want Status=400 Detail=missing act_type", p)
	}
}

func TestWriteDomainErrorValidationMapsTo400(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.ValidationError("bad article spec"))
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWriteDomainErrorNotFoundMapsTo404(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.NotFound("urn:x"))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWriteDomainErrorRateLimitMapsTo429(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.RateLimitError("circuit breaker open"))
	if rec.Code != 429 {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestWriteDomainErrorNetworkMapsTo502(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.NetworkError(nil, "upstream timed out"))
	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestWriteDomainErrorUpstreamRejectedMapsTo502(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.UpstreamRejectedError("upstream returned 403 for https://example.it"))
	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestWriteDomainErrorParsingMapsTo502(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, legalerr.ParsingError("<html>secret</html>", "unrecognized layout"))
	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "secret") {
		t.Error("WriteDomainError must never leak the internal diagnostic")
	}
}

func TestWriteDomainErrorPlainErrorMapsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, errors.New("unexpected"))
	if rec.Code != 500 {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	p := decodeProblem(t, rec)
	if p.Detail == "unexpected" {
		t.Error("a plain error's message must never be surfaced verbatim via WriteInternal")
	}
}
