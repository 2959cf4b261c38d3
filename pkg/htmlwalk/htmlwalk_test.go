package htmlwalk

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func mustDoc(t *testing.T, h string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(h))
	if err != nil {
		t.Fatalf("failed to parse fixture HTML: %v", err)
	}
	return doc
}

func TestCollectTextNormalizesWhitespace(t *testing.T) {
	doc := mustDoc(t, `<div id="x">  hello   <b>world</b>  </div>`)
	got := CollectText(doc.Find("#x"))
	if got != "hello world" {
		t.Errorf("CollectText() = %q, want %q", got, "hello world")
	}
}

func TestWalkSiblingsUntilStopsAtPredicate(t *testing.T) {
	doc := mustDoc(t, `<div>
		<h2 id="start">Articolo 1</h2>
		<p>one</p>
		<p>two</p>
		<h2 class="stop">Articolo 2</h2>
		<p>three</p>
	</div>`)

	var visited []string
	WalkSiblingsUntil(doc.Find("#start"),
		func(s *goquery.Selection) bool { return s.HasClass("stop") },
		func(s *goquery.Selection) { visited = append(visited, strings.TrimSpace(s.Text())) },
	)

	if len(visited) != 2 || visited[0] != "one" || visited[1] != "two" {
		t.Errorf("visited = %v, want [one two]", visited)
	}
}

func TestTableRowsText(t *testing.T) {
	doc := mustDoc(t, `<table>
		<tr><td>a</td><td>b</td></tr>
		<tr><td>c</td><td>d</td></tr>
	</table>`)
	got := TableRowsText(doc.Find("table"))
	want := "a b\nc d"
	if got != want {
		t.Errorf("TableRowsText() = %q, want %q", got, want)
	}
}

func TestHasClassMatchesAnyCandidate(t *testing.T) {
	doc := mustDoc(t, `<li class="box_allegati">x</li>`)
	sel := doc.Find("li")
	if !HasClass(sel, "box_articoli", "box_allegati") {
		t.Error("HasClass should match box_allegati")
	}
	if HasClass(sel, "box_articoli", "box_allegati_small") {
		t.Error("HasClass should not match unrelated classes")
	}
}

func TestNodeText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div>  hello   <b>world</b>  </div>`))
	if err != nil {
		t.Fatalf("html.Parse failed: %v", err)
	}
	got := NodeText(doc)
	if !strings.Contains(got, "hello world") {
		t.Errorf("NodeText() = %q, want it to contain %q", got, "hello world")
	}
}
