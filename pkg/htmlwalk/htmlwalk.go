// Package htmlwalk holds the text-assembly helpers shared by the
// upstream-specific extractors (C6, C7, C8, C10): C7 and C8 use the
// sibling walk and text collection, C6 and C10 use HasClass. Grounded on
// goquery's own traversal idiom (other_examples' AustLII scraper walks
// doc.Find(...).Each(...) the same way) and on golang.org/x/net/html for
// the rare case a raw node, not a *goquery.Selection, needs walking.
package htmlwalk

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CollectText concatenates the direct text content of sel and every
// descendant, collapsing runs of whitespace — the common case used when an
// extractor has already located the right container and just wants its
// prose.
func CollectText(sel *goquery.Selection) string {
	return normalizeWhitespace(sel.Text())
}

// WalkSiblingsUntil starts at sel and visits each following sibling via
// Next, invoking visit(node) for each, until stop returns true for a
// sibling (that sibling is not visited) or siblings are exhausted. C7's
// EUR-Lex article-to-next-heading walk and C8's heading-to-section walk
// both use it.
func WalkSiblingsUntil(sel *goquery.Selection, stop func(*goquery.Selection) bool, visit func(*goquery.Selection)) {
	cur := sel.Next()
	for cur.Length() > 0 {
		if stop(cur) {
			return
		}
		visit(cur)
		cur = cur.Next()
	}
}

// TableRowsText extracts a table row-wise, joining each row's cell text
// with a single space and each row with a newline — grounded on
// original_source/NEWVERSION/eurlex.py's extract_table_text, which builds
// EUR-Lex annex tables the same way.
func TableRowsText(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
			text := normalizeWhitespace(td.Text())
			if text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " "))
		}
	})
	return strings.Join(rows, "\n")
}

// HasClass reports whether sel carries class among its space-separated
// class attribute values — goquery's own HasClass covers the single-class
// case; this helper is for matching any of several candidate classes, as
// C10's stateful <li> automaton needs (box_articoli, box_allegati, ...).
func HasClass(sel *goquery.Selection, classes ...string) bool {
	for _, c := range classes {
		if sel.HasClass(c) {
			return true
		}
	}
	return false
}

// NodeText extracts the text of a raw *html.Node subtree, for a caller
// that holds a node rather than a *goquery.Selection. No package in this
// module calls it.
func NodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeWhitespace(b.String())
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
