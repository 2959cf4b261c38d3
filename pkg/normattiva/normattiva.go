// Package normattiva implements C6: the Normattiva HTML extraction state
// machine (four layouts) and, in amendment.go, C9's amendment history
// parser. Grounded on goquery traversal idiom from the retrieval pack
// (gongahkia-kite's AustLIIScraper, ternarybob-quaero) and on the four
// scenarios spec §4.6 names.
package normattiva

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/capazme/lexcore/pkg/htmlwalk"
	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/model"
)

// sessionExpiredMarker is the literal string that signals a Normattiva
// session expiry, per spec §6.1 and original_source's normattiva_scraper.py.
const sessionExpiredMarker = "Sessione Scaduta"

// IsSessionExpired reports whether body carries the session-expiry marker.
// Callers should retry once with a fresh session on a true result, per
// SPEC_FULL §10.
func IsSessionExpired(body string) bool {
	return strings.Contains(body, sessionExpiredMarker)
}

var newlineRunPattern = regexp.MustCompile(`\n{3,}`)
var horizontalWSPattern = regexp.MustCompile(`[ \t]{2,}`)

// ExtractArticle runs the C6 state machine over the body of an article
// page and returns its ResolvedArticleText. urn is the URN the caller
// fetched, stamped into the result unchanged. withLinks requests a
// populated LinkMap from in-text anchors.
func ExtractArticle(html string, urn string, withLinks bool) (*model.ResolvedArticleText, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, legalerr.ParsingError(html, "failed to parse Normattiva HTML")
	}

	body := doc.Find("div.bodyTesto").First()
	if body.Length() == 0 {
		snippet := html
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, legalerr.ParsingError(snippet, "no div.bodyTesto found in Normattiva response")
	}

	linkMap := map[string]string{}
	var text string

	switch {
	case body.Find(".art-comma-div-akn").Length() > 0:
		text = extractDetailed(body, linkMap)
	case body.Find(".art-just-text-akn").Length() > 0:
		text = extractSimple(body, linkMap)
	case body.Find(".attachment-just-text").Length() > 0:
		text = extractAttachment(body, linkMap)
	default:
		text = walkText(body, linkMap)
		if strings.TrimSpace(text) == "" {
			text = "[Articolo senza contenuto o abrogato]"
		}
	}

	text = postProcess(text)

	result := &model.ResolvedArticleText{
		Text:   text,
		URN:    urn,
		Source: model.SourceNormattiva,
	}
	if withLinks && len(linkMap) > 0 {
		result.LinkMap = linkMap
	}
	return result, nil
}

// extractDetailed implements the "Detailed (AKN)" scenario: article number
// from h2.article-num-akn, title from div.article-heading-akn, then each
// comma div assembled with the recursive text walker.
func extractDetailed(body *goquery.Selection, linkMap map[string]string) string {
	var b strings.Builder
	if num := body.Find("h2.article-num-akn").First(); num.Length() > 0 {
		b.WriteString(strings.TrimSpace(num.Text()))
		b.WriteString("\n")
	}
	if heading := body.Find("div.article-heading-akn").First(); heading.Length() > 0 {
		b.WriteString(strings.TrimSpace(heading.Text()))
		b.WriteString("\n")
	}
	body.Find(".art-comma-div-akn").Each(func(_ int, comma *goquery.Selection) {
		b.WriteString(walkText(comma, linkMap))
		b.WriteString("\n")
	})
	return b.String()
}

// extractSimple implements the "Simple (AKN)" scenario.
func extractSimple(body *goquery.Selection, linkMap map[string]string) string {
	var b strings.Builder
	if num := body.Find("h2.article-num-akn").First(); num.Length() > 0 {
		b.WriteString(strings.TrimSpace(num.Text()))
		b.WriteString("\n")
	}
	if heading := body.Find("div.article-heading-akn").First(); heading.Length() > 0 {
		b.WriteString(strings.TrimSpace(heading.Text()))
		b.WriteString("\n")
	}
	block := body.Find("span.art-just-text-akn").First()
	b.WriteString(walkText(block, linkMap))
	return b.String()
}

// extractAttachment implements the "Attachment" scenario.
func extractAttachment(body *goquery.Selection, linkMap map[string]string) string {
	var b strings.Builder
	span := body.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return htmlwalk.HasClass(s, "attachment-just-text")
	}).First()
	b.WriteString(walkText(span, linkMap))
	body.Find("div.art_aggiornamento-akn").Each(func(_ int, d *goquery.Selection) {
		b.WriteString("\n")
		b.WriteString(walkText(d, linkMap))
	})
	return b.String()
}

// walkText is the recursive text walker spec §4.6 names: dispatch on tag
// name per child — <br> -> newline, <p> -> inner+newline, <li> -> " - "
// +inner+newline, <a> -> record anchor text/href then inner, else inner.
func walkText(sel *goquery.Selection, linkMap map[string]string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var b strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
			return
		}
		switch goquery.NodeName(child) {
		case "br":
			b.WriteString("\n")
		case "p":
			b.WriteString(walkText(child, linkMap))
			b.WriteString("\n")
		case "li":
			b.WriteString(" - ")
			b.WriteString(walkText(child, linkMap))
			b.WriteString("\n")
		case "a":
			anchorText := strings.TrimSpace(child.Text())
			if href, ok := child.Attr("href"); ok && anchorText != "" {
				linkMap[anchorText] = href
			}
			b.WriteString(walkText(child, linkMap))
		default:
			b.WriteString(walkText(child, linkMap))
		}
	})
	return b.String()
}

// postProcess collapses 3+ consecutive newlines to 2 and horizontal
// whitespace runs to a single space, per spec §4.6.
func postProcess(text string) string {
	text = horizontalWSPattern.ReplaceAllString(text, " ")
	text = newlineRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// versionSuffixPattern matches a trailing "@originale" or "!vig=YYYY-MM-DD"
// suffix so VersionedURN can replace it; a "~art..." suffix is left in
// place.
var versionSuffixPattern = regexp.MustCompile(`(@originale|!vig=\d{4}-\d{2}-\d{2})$`)

// VersionedURN appends "!vig=YYYY-MM-DD" or "@originale",
// stripping any existing version/original suffix first, per spec §4.6's
// "Versioned and original fetches".
func VersionedURN(baseURN string, originale bool, versionDate string) (string, error) {
	stripped := versionSuffixPattern.ReplaceAllString(baseURN, "")
	if originale {
		return stripped + "@originale", nil
	}
	if len(versionDate) != 10 {
		return "", legalerr.ValidationError("version_date must be YYYY-MM-DD, got %q", versionDate)
	}
	return fmt.Sprintf("%s!vig=%s", stripped, versionDate), nil
}
