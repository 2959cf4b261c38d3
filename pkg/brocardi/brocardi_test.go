package brocardi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/capazme/lexcore/pkg/fetch"
)

func fastClient() *fetch.Client {
	return fetch.New(fetch.Config{
		MaxConcurrency: 4,
		MinInterval:    time.Millisecond,
		MaxRetries:     1,
		BackoffFactor:  1.0,
		InitialBackoff: time.Millisecond,
		Jitter:         time.Millisecond,
		Timeout:        2 * time.Second,
	})
}

func TestLookupSectionExactLabelMatch(t *testing.T) {
	r := New([]KnowledgeBaseEntry{
		{Label: "Codice Civile", URL: "https://www.brocardi.it/codice-civile/"},
	}, nil)
	url, ok := r.LookupSection("Codice Civile art. 1414", "", "")
	if !ok || url != "https://www.brocardi.it/codice-civile/" {
		t.Errorf("LookupSection() = (%q, %v), want exact label match", url, ok)
	}
}

func TestLookupSectionActTypeAndNumberMatch(t *testing.T) {
	r := New([]KnowledgeBaseEntry{
		{ActType: "legge", ActNumber: "241", URL: "https://www.brocardi.it/l-241-1990/"},
	}, nil)
	url, ok := r.LookupSection("nothing matching", "legge", "241")
	if !ok || url != "https://www.brocardi.it/l-241-1990/" {
		t.Errorf("LookupSection() = (%q, %v), want act-type+number match", url, ok)
	}
}

func TestLookupSectionActTypeOnlyMatch(t *testing.T) {
	r := New([]KnowledgeBaseEntry{
		{ActType: "costituzione", ActNumber: "", URL: "https://www.brocardi.it/costituzione/"},
	}, nil)
	url, ok := r.LookupSection("unrelated label", "costituzione", "anything")
	if !ok || url != "https://www.brocardi.it/costituzione/" {
		t.Errorf("LookupSection() = (%q, %v), want act-type-only match", url, ok)
	}
}

func TestLookupSectionNoMatch(t *testing.T) {
	r := New([]KnowledgeBaseEntry{
		{Label: "Codice Civile", ActType: "codice civile", URL: "https://www.brocardi.it/codice-civile/"},
	}, nil)
	if _, ok := r.LookupSection("Codice Penale", "codice penale", "1"); ok {
		t.Error("LookupSection should not match an unrelated entry")
	}
}

func TestResolveRelativeAbsoluteHrefPassesThrough(t *testing.T) {
	got := resolveRelative("https://www.brocardi.it/codice-civile/", "https://other.example/x")
	if got != "https://other.example/x" {
		t.Errorf("resolveRelative() = %q, want unchanged absolute href", got)
	}
}

func TestResolveRelativeJoinsOnDomain(t *testing.T) {
	got := resolveRelative("https://www.brocardi.it/codice-civile/libro-iv/art1414.html", "/codice-civile/libro-iv/art1415.html")
	want := "https://www.brocardi.it/codice-civile/libro-iv/art1415.html"
	if got != want {
		t.Errorf("resolveRelative() = %q, want %q", got, want)
	}
}

func TestDiscoverArticleURLRegexHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/codice-civile/libro-iv/art1413.html">art 1413</a>
			<a href="/codice-civile/libro-iv/art1414.html">art 1414</a>
		</body></html>`))
	}))
	defer srv.Close()

	r := New(nil, fastClient())
	url, ok := r.DiscoverArticleURL(context.Background(), srv.URL, "1414")
	if !ok {
		t.Fatal("expected DiscoverArticleURL to find article 1414 via regex strategy")
	}
	want := "https://www.brocardi.it/codice-civile/libro-iv/art1414.html"
	if url != want {
		t.Errorf("DiscoverArticleURL() = %q, want %q", url, want)
	}
}

func TestDiscoverArticleURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no links here</body></html>`))
	}))
	defer srv.Close()

	r := New(nil, fastClient())
	if _, ok := r.DiscoverArticleURL(context.Background(), srv.URL, "99"); ok {
		t.Error("expected DiscoverArticleURL to fail when nothing matches")
	}
}

func TestDiscoverArticleURLFetchFailureReturnsFalse(t *testing.T) {
	r := New(nil, fastClient())
	if _, ok := r.DiscoverArticleURL(context.Background(), "http://127.0.0.1:0/unreachable", "1"); ok {
		t.Error("expected false when the section fetch itself fails")
	}
}

func TestExtractArticlePagePopulatesPositionAndBrocardi(t *testing.T) {
	html := `<html><body>
		<div id="breadcrumb">Brocardi.it &gt; Codice Civile &gt; Libro IV &gt; Art. 1414</div>
		<div class="panes-condensed panes-w-ads content-ext-guide content-mark">
			<div class="brocardi-content">Simulazione del contratto.</div>
			<div class="container-ratio"><div class="corpoDelTesto">Ratio legis del contratto simulato.</div></div>
		</div>
	</body></html>`

	r := New(nil, nil)
	result := r.ExtractArticlePage(html)

	if result.Position == "" || !strings.Contains(result.Position, "Art. 1414") {
		t.Errorf("Position = %q, want breadcrumb trail containing Art. 1414", result.Position)
	}
	if len(result.Brocardi) != 1 || result.Brocardi[0] != "Simulazione del contratto." {
		t.Errorf("Brocardi = %v, want one brocardi-content item", result.Brocardi)
	}
	if result.Ratio != "Ratio legis del contratto simulato." {
		t.Errorf("Ratio = %q, want ratio text", result.Ratio)
	}
}

func TestExtractArticlePageMassimeWithAuthority(t *testing.T) {
	html := `<html><body>
		<div class="panes-condensed panes-w-ads content-ext-guide content-mark">
			<div class="sentenza"><strong>Corte di Cassazione, n. 1234/2010</strong> testo della massima.</div>
		</div>
	</body></html>`

	r := New(nil, nil)
	result := r.ExtractArticlePage(html)
	if len(result.Massime) != 1 {
		t.Fatalf("len(Massime) = %d, want 1", len(result.Massime))
	}
	m := result.Massime[0]
	if m.Number != "1234" || m.Year != "2010" {
		t.Errorf("Massima = %+v, want Number=1234 Year=2010", m)
	}
}

func TestExtractArticlePageRelatedArticlesFromPrecedenteSuccessivo(t *testing.T) {
	html := `<html><body>
		<a href="/codice-civile/libro-iv/art1413.html">articolo precedente</a>
		<a href="/codice-civile/libro-iv/art1415.html">articolo successivo</a>
	</body></html>`

	r := New(nil, nil)
	result := r.ExtractArticlePage(html)
	if len(result.RelatedArticles) != 2 {
		t.Fatalf("len(RelatedArticles) = %d, want 2", len(result.RelatedArticles))
	}
}

func TestExtractArticlePageCrossReferencesDeduped(t *testing.T) {
	html := `<html><body>
		<div class="panes-condensed panes-w-ads content-ext-guide content-mark">
			<a href="/codice-civile/art1416.html">art 1416</a>
			<a href="/codice-civile/art1416.html">art 1416 again</a>
			<a href="/codice-penale/art110.html">art 110</a>
		</div>
	</body></html>`

	r := New(nil, nil)
	result := r.ExtractArticlePage(html)
	if len(result.CrossReferences) != 2 {
		t.Fatalf("len(CrossReferences) = %d, want 2 deduped refs", len(result.CrossReferences))
	}
	byType := map[string]bool{}
	for _, c := range result.CrossReferences {
		byType[c.ActType] = true
	}
	if !byType["codice civile"] || !byType["codice penale"] {
		t.Errorf("CrossReferences act types = %v, want codice civile and codice penale", result.CrossReferences)
	}
}

func TestExtractArticlePageUnparsableHTMLReturnsEmptyResult(t *testing.T) {
	r := New(nil, nil)
	result := r.ExtractArticlePage("")
	if result == nil {
		t.Fatal("ExtractArticlePage should never return nil")
	}
}
