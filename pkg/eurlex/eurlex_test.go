package eurlex

import (
	"strings"
	"testing"

	"github.com/capazme/lexcore/pkg/model"
)

func TestExtractArticleTextTiArtStrategy(t *testing.T) {
	html := `<html><body>
		<p class="ti-art">Article 7</p>
		<p>Member States shall ensure appropriate technical measures.</p>
		<p class="ti-art">Article 8</p>
		<p>Another article text.</p>
	</body></html>`

	got, err := ExtractArticleText(html, "7", "urn:x")
	if err != nil {
		t.Fatalf("ExtractArticleText returned error: %v", err)
	}
	if !strings.Contains(got.Text, "Article 7") {
		t.Errorf("Text = %q, missing header", got.Text)
	}
	if !strings.Contains(got.Text, "Member States shall ensure") {
		t.Errorf("Text = %q, missing body", got.Text)
	}
	if strings.Contains(got.Text, "Another article text") {
		t.Errorf("Text = %q, leaked content past next article header", got.Text)
	}
	if got.Source != model.SourceEURLex {
		t.Errorf("Source = %q, want eurlex", got.Source)
	}
}

func TestExtractArticleTextTableIncluded(t *testing.T) {
	html := `<html><body>
		<p class="ti-art">Article 1</p>
		<table><tr><td>Col A</td><td>Col B</td></tr></table>
		<p class="ti-art">Article 2</p>
	</body></html>`

	got, err := ExtractArticleText(html, "1", "urn:x")
	if err != nil {
		t.Fatalf("ExtractArticleText returned error: %v", err)
	}
	if !strings.Contains(got.Text, "Col A") || !strings.Contains(got.Text, "Col B") {
		t.Errorf("Text = %q, want table cells included", got.Text)
	}
}

func TestExtractArticleTextFallsBackToClassNameStrategy(t *testing.T) {
	html := `<html><body>
		<div class="article-title">Articolo 5</div>
		<p>Testo dell'articolo 5.</p>
		<div class="article-title">Articolo 6</div>
	</body></html>`

	got, err := ExtractArticleText(html, "5", "urn:x")
	if err != nil {
		t.Fatalf("ExtractArticleText returned error: %v", err)
	}
	if !strings.Contains(got.Text, "Testo dell'articolo 5") {
		t.Errorf("Text = %q, want body from class-name strategy", got.Text)
	}
}

func TestExtractArticleTextNotFoundWhenNoHeaderMatches(t *testing.T) {
	html := `<html><body><p>Nothing relevant here.</p></body></html>`
	if _, err := ExtractArticleText(html, "99", "urn:x"); err == nil {
		t.Fatal("expected not-found error when no header matches the article")
	}
}

func TestBuildELIURL(t *testing.T) {
	got := BuildELIURL("reg", "2016", "679")
	want := "https://eur-lex.europa.eu/eli/reg/2016/679/oj/ita"
	if got != want {
		t.Errorf("BuildELIURL() = %q, want %q", got, want)
	}
}

func TestBuildELIURLTruncatesLongYear(t *testing.T) {
	got := BuildELIURL("dir", "2019-full", "1234")
	want := "https://eur-lex.europa.eu/eli/dir/2019/1234/oj/ita"
	if got != want {
		t.Errorf("BuildELIURL() = %q, want %q", got, want)
	}
}

func TestNewFetcherDefaultsTimeout(t *testing.T) {
	f := NewFetcher(0)
	if f.timeout.Seconds() != 30 {
		t.Errorf("timeout = %v, want 30s default", f.timeout)
	}
}
