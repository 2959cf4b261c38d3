package normattiva

import (
	"strings"
	"testing"
)

func TestIsSessionExpired(t *testing.T) {
	if !IsSessionExpired("<html>Sessione Scaduta</html>") {
		t.Error("expected session-expiry marker to be detected")
	}
	if IsSessionExpired("<html>all good</html>") {
		t.Error("did not expect session-expiry marker")
	}
}

func TestExtractArticleDetailedScenario(t *testing.T) {
	html := `<div class="bodyTesto">
		<h2 class="article-num-akn">Art. 1414</h2>
		<div class="article-heading-akn">Simulazione del contratto</div>
		<div class="art-comma-div-akn">Il contratto simulato non produce effetto tra le parti.</div>
		<div class="art-comma-div-akn">Se le parti hanno voluto... si applica la disciplina.</div>
	</div>`

	result, err := ExtractArticle(html, "urn:nir:stato:regio.decreto:1942-03-16;262~art1414", false)
	if err != nil {
		t.Fatalf("ExtractArticle returned error: %v", err)
	}
	if !strings.Contains(result.Text, "Art. 1414") {
		t.Errorf("extracted text %q missing article number", result.Text)
	}
	if !strings.Contains(result.Text, "Il contratto simulato") {
		t.Errorf("extracted text %q missing first comma", result.Text)
	}
	if result.Source != "normattiva" {
		t.Errorf("Source = %q, want normattiva", result.Source)
	}
}

func TestExtractArticleWithLinksPopulatesLinkMap(t *testing.T) {
	html := `<div class="bodyTesto">
		<span class="art-just-text-akn">Vedi <a href="/altro">altro articolo</a> per dettagli.</span>
	</div>`

	result, err := ExtractArticle(html, "urn:x", true)
	if err != nil {
		t.Fatalf("ExtractArticle returned error: %v", err)
	}
	if result.LinkMap["altro articolo"] != "/altro" {
		t.Errorf("LinkMap = %v, want altro articolo -> /altro", result.LinkMap)
	}
}

func TestExtractArticleEmptyFallsBackToSentinel(t *testing.T) {
	html := `<div class="bodyTesto"><span></span></div>`
	result, err := ExtractArticle(html, "urn:x", false)
	if err != nil {
		t.Fatalf("ExtractArticle returned error: %v", err)
	}
	if result.Text != "[Articolo senza contenuto o abrogato]" {
		t.Errorf("Text = %q, want abrogato sentinel", result.Text)
	}
}

func TestExtractArticleMissingBodyIsParsingError(t *testing.T) {
	_, err := ExtractArticle(`<div>no body here</div>`, "urn:x", false)
	if err == nil {
		t.Fatal("expected a parsing error for missing div.bodyTesto")
	}
}

func TestPostProcessCollapsesWhitespace(t *testing.T) {
	got := postProcess("a\n\n\n\nb   c")
	want := "a\n\nb c"
	if got != want {
		t.Errorf("postProcess() = %q, want %q", got, want)
	}
}

func TestVersionedURNOriginale(t *testing.T) {
	got, err := VersionedURN("urn:nir:stato:legge:1990-08-07;241", true, "")
	if err != nil {
		t.Fatalf("VersionedURN returned error: %v", err)
	}
	if !strings.HasSuffix(got, "@originale") {
		t.Errorf("VersionedURN() = %q, want suffix @originale", got)
	}
}

func TestVersionedURNVigente(t *testing.T) {
	got, err := VersionedURN("urn:nir:stato:legge:1990-08-07;241", false, "2020-01-01")
	if err != nil {
		t.Fatalf("VersionedURN returned error: %v", err)
	}
	want := "urn:nir:stato:legge:1990-08-07;241!vig=2020-01-01"
	if got != want {
		t.Errorf("VersionedURN() = %q, want %q", got, want)
	}
}

func TestVersionedURNStripsExistingSuffix(t *testing.T) {
	got, err := VersionedURN("urn:nir:stato:legge:1990-08-07;241@originale", false, "2020-01-01")
	if err != nil {
		t.Fatalf("VersionedURN returned error: %v", err)
	}
	want := "urn:nir:stato:legge:1990-08-07;241!vig=2020-01-01"
	if got != want {
		t.Errorf("VersionedURN() = %q, want %q", got, want)
	}
}

func TestVersionedURNInvalidDate(t *testing.T) {
	if _, err := VersionedURN("urn:x", false, "2020"); err == nil {
		t.Error("expected error for malformed version_date")
	}
}
