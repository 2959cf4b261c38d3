// Command lexcore is a minimal http.ServeMux demonstration seam over
// pkg/service's composition root, in the teacher's cmd/helm-node/demo.go
// idiom: one handler struct, a JSON request body for /resolve and query
// parameters for the other routes, JSON responses,
// RFC 7807 error responses, slog for internal logging. For manual
// exercise only; not a production API gateway.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/capazme/lexcore/pkg/api"
	"github.com/capazme/lexcore/pkg/brocardi"
	"github.com/capazme/lexcore/pkg/config"
	"github.com/capazme/lexcore/pkg/model"
	"github.com/capazme/lexcore/pkg/service"
	"github.com/capazme/lexcore/pkg/urn"
)

// Server wires service.Core into HTTP handlers.
type Server struct {
	core *service.Core
}

// RegisterRoutes wires up every demonstration endpoint.
func RegisterRoutes(mux *http.ServeMux, core *service.Core) {
	s := &Server{core: core}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/resolve", s.handleResolve)
	mux.HandleFunc("/api/v1/article", s.handleArticle)
	mux.HandleFunc("/api/v1/tree", s.handleTree)
	mux.HandleFunc("/api/v1/enrichment", s.handleEnrichment)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/version", s.handleVersion)
	mux.HandleFunc("/api/v1/stream", s.handleStream)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"cache":  s.core.CacheStats(),
	})
}

// resolveRequest mirrors ResolveReference(ActReference) -> CanonicalURN.
type resolveRequest struct {
	ActType     string `json:"act_type"`
	Date        string `json:"date"`
	ActNumber   string `json:"act_number"`
	Article     string `json:"article"`
	Annex       string `json:"annex"`
	Version     string `json:"version"`
	VersionDate string `json:"version_date"`
}

type resolveResponse struct {
	RequestID    string `json:"request_id"`
	CanonicalURN string `json:"canonical_urn"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.ActType == "" {
		api.WriteBadRequest(w, "act_type is required")
		return
	}

	canonicalURN, err := s.core.ResolveReference(urn.Reference{
		ActType:     req.ActType,
		Date:        req.Date,
		ActNumber:   req.ActNumber,
		Article:     req.Article,
		Annex:       req.Annex,
		Version:     req.Version,
		VersionDate: req.VersionDate,
	})
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", uuid.New().String())
	_ = json.NewEncoder(w).Encode(resolveResponse{RequestID: uuid.New().String(), CanonicalURN: canonicalURN})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	canonicalURN := q.Get("urn")
	if canonicalURN == "" {
		api.WriteBadRequest(w, "urn query parameter is required")
		return
	}
	withLinks, _ := strconv.ParseBool(q.Get("with_links"))

	result, err := s.core.FetchArticleText(r.Context(), canonicalURN, q.Get("article"), withLinks)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	canonicalURN := q.Get("urn")
	if canonicalURN == "" {
		api.WriteBadRequest(w, "urn query parameter is required")
		return
	}
	withLinks, _ := strconv.ParseBool(q.Get("with_links"))
	withDetails, _ := strconv.ParseBool(q.Get("with_details"))
	withMetadata, _ := strconv.ParseBool(q.Get("with_metadata"))

	result, err := s.core.FetchTree(r.Context(), canonicalURN, service.FetchTreeOptions{
		WithLinks:    withLinks,
		WithDetails:  withDetails,
		WithMetadata: withMetadata,
	})
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleEnrichment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	canonicalURN := q.Get("urn")
	if canonicalURN == "" {
		api.WriteBadRequest(w, "urn query parameter is required")
		return
	}

	result, err := s.core.FetchEnrichment(r.Context(), canonicalURN, q.Get("composed_label"), q.Get("act_type"), q.Get("act_number"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	articlePageURL := q.Get("article_page_url")
	if articlePageURL == "" {
		api.WriteBadRequest(w, "article_page_url query parameter is required")
		return
	}

	records, err := s.core.FetchAmendmentHistory(r.Context(), articlePageURL, q.Get("filter_to_article"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	baseURN := q.Get("urn")
	if baseURN == "" {
		api.WriteBadRequest(w, "urn query parameter is required")
		return
	}
	originale, _ := strconv.ParseBool(q.Get("originale"))

	result, err := s.core.FetchVersionAt(r.Context(), baseURN, q.Get("article"), q.Get("version_date"), originale)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	canonicalURN := q.Get("urn")
	articleSpec := q.Get("articles")
	if canonicalURN == "" || articleSpec == "" {
		api.WriteBadRequest(w, "urn and articles query parameters are required")
		return
	}
	includeEnrichment, _ := strconv.ParseBool(q.Get("with_enrichment"))

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, canFlush := w.(http.Flusher)

	enc := json.NewEncoder(w)
	s.core.StreamAggregated(r.Context(), canonicalURN, articleSpec, q.Get("norma_data"), includeEnrichment,
		q.Get("composed_label"), q.Get("act_type"), q.Get("act_number"),
		func(item model.StreamItem) {
			_ = enc.Encode(item)
			if canFlush {
				flusher.Flush()
			}
		})
}

func main() {
	cfg := config.Load()

	kb := []brocardi.KnowledgeBaseEntry{
		{Label: "Costituzione", ActType: "costituzione", URL: "https://www.brocardi.it/costituzione/"},
		{Label: "Codice Civile", ActType: "codice civile", URL: "https://www.brocardi.it/codice-civile/"},
		{Label: "Codice Penale", ActType: "codice penale", URL: "https://www.brocardi.it/codice-penale/"},
	}
	core := service.New(cfg, kb)

	warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	core.Warmup(warmupCtx)
	warmupCancel()

	mux := http.NewServeMux()
	RegisterRoutes(mux, core)

	addr := os.Getenv("LEXCORE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("lexcore listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
