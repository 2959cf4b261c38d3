// Package tree implements C10: the hierarchical article-enumeration
// extractor, a stateful pass over Normattiva's div#albero <li> stream plus
// a structural-class fallback path for EUR-Lex. Grounded on goquery
// traversal idiom shared with pkg/normattiva, and on spec §9's suggestion
// to model this as a small automaton over tagged LiEvent variants.
package tree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/capazme/lexcore/pkg/htmlwalk"
	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/model"
)

// Options controls which optional pieces a tree extraction returns.
type Options struct {
	WithLinks    bool
	WithDetails  bool
	WithMetadata bool
}

// liEventKind is the exhaustive tagged variant set spec §9 names for the
// Normattiva <li> automaton.
type liEventKind int

const (
	eventOther liEventKind = iota
	eventBoxArticoli
	eventLinkAllegato
	eventBoxAllegati
	eventBoxAllegatiSmall
	eventSectionHeader
	eventArticleAnchor
)

func classifyLi(li *goquery.Selection) liEventKind {
	switch {
	case htmlwalk.HasClass(li, "box_allegati_small"):
		return eventBoxAllegatiSmall
	case htmlwalk.HasClass(li, "box_allegati"):
		return eventBoxAllegati
	case htmlwalk.HasClass(li, "box_articoli"):
		return eventBoxArticoli
	case htmlwalk.HasClass(li, "singolo_risultato_collapse"):
		return eventSectionHeader
	}
	if li.Find("a.link_allegato").Length() > 0 {
		return eventLinkAllegato
	}
	if li.Find("a.numero_articolo").Length() > 0 {
		return eventArticleAnchor
	}
	return eventOther
}

var allegatoNumberPattern = regexp.MustCompile(`(?i)allegato\s+([a-z0-9]+)`)
var articleNumberPattern = regexp.MustCompile(`^art\.?\s*(.+?)\.?$`)
var validNumberStart = regexp.MustCompile(`^[0-9]|^[IVXLCDM]`)

// ExtractNormattivaTree runs the state machine described in spec §4.10
// over an act's div#albero HTML.
func ExtractNormattivaTree(htmlStr, baseURN string, opts Options) (*model.TreeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, legalerr.ParsingError(htmlStr, "failed to parse Normattiva tree HTML")
	}

	albero := doc.Find("div#albero").First()
	if albero.Length() == 0 {
		snippet := htmlStr
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, legalerr.ParsingError(snippet, "no div#albero found")
	}

	var entries []model.TreeEntry
	metadata := map[string]*model.AnnexMetadata{}
	dispositivoKey := "Dispositivo"
	metadata[dispositivoKey] = &model.AnnexMetadata{Label: dispositivoKey}

	var currentAttachment *int
	annexCounter := 0
	inAllegatiSection := false
	seenPerAnnex := map[string]map[string]bool{dispositivoKey: {}}

	annexKey := func(n *int) string {
		if n == nil {
			return dispositivoKey
		}
		return fmt.Sprintf("allegato-%d", *n)
	}

	albero.Find("li").Each(func(_ int, li *goquery.Selection) {
		switch classifyLi(li) {
		case eventBoxArticoli:
			if strings.Contains(strings.ToLower(li.Text()), "allegat") {
				inAllegatiSection = true
			}
		case eventLinkAllegato:
			a := li.Find("a.link_allegato").First()
			if m := allegatoNumberPattern.FindStringSubmatch(a.Text()); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					currentAttachment = &n
				}
			}
		case eventBoxAllegati:
			if inAllegatiSection {
				annexCounter++
				n := annexCounter
				currentAttachment = &n
				label := strings.TrimSpace(li.Find("span").First().Text())
				key := annexKey(currentAttachment)
				metadata[key] = &model.AnnexMetadata{Label: label}
				seenPerAnnex[key] = map[string]bool{}
			}
		case eventBoxAllegatiSmall:
			annexCounter++
			n := annexCounter
			currentAttachment = &n
			label := strings.TrimSpace(li.Find("span").First().Text())
			key := annexKey(currentAttachment)
			metadata[key] = &model.AnnexMetadata{Label: label}
			seenPerAnnex[key] = map[string]bool{}
		case eventSectionHeader:
			if opts.WithDetails {
				entries = append(entries, model.TreeEntry{Header: strings.TrimSpace(li.Text())})
			}
		case eventArticleAnchor:
			a := li.Find("a.numero_articolo").First()
			raw := strings.TrimSpace(a.Text())
			raw = strings.TrimSuffix(raw, ".")
			m := articleNumberPattern.FindStringSubmatch(strings.ToLower(raw))
			number := raw
			if m != nil {
				number = strings.TrimSpace(m[1])
			}
			if number == "" || !validNumberStart.MatchString(number) {
				return
			}
			key := annexKey(currentAttachment)
			if seenPerAnnex[key] == nil {
				seenPerAnnex[key] = map[string]bool{}
			}
			if seenPerAnnex[key][number] {
				return // dedupe by number within the annex
			}
			seenPerAnnex[key][number] = true

			entry := model.TreeEntry{Number: number, Annex: currentAttachment}
			if opts.WithLinks {
				entry.URL = spliceArticleURL(baseURN, currentAttachment, number)
			}
			entries = append(entries, entry)

			meta := metadata[key]
			meta.ArticleCount++
			meta.ArticleNumbers = append(meta.ArticleNumbers, number)
		}
	})

	result := &model.TreeResult{Entries: entries, Count: countArticles(entries)}
	if opts.WithMetadata {
		result.Metadata = metadata
	}
	return result, nil
}

func countArticles(entries []model.TreeEntry) int {
	n := 0
	for _, e := range entries {
		if e.Header == "" {
			n++
		}
	}
	return n
}

var urnSuffixPattern = regexp.MustCompile(`[~@!]`)

// spliceArticleURL builds the article URL by inserting ":N~artX" into
// baseURN at the correct position (before any ~/@/! suffix), per spec
// §4.10.
func spliceArticleURL(baseURN string, annex *int, number string) string {
	loc := urnSuffixPattern.FindStringIndex(baseURN)
	head := baseURN
	tail := ""
	if loc != nil {
		head = baseURN[:loc[0]]
		tail = baseURN[loc[0]:]
	}
	if annex != nil && !strings.HasSuffix(head, fmt.Sprintf(":%d", *annex)) {
		head = fmt.Sprintf("%s:%d", head, *annex)
	}
	return fmt.Sprintf("%s~art%s%s", head, number, tail)
}

// ExtractEURLexTree implements spec §4.10's EUR-Lex path: structural
// classes containing "ti-section" (headers) and "ti-art" (articles),
// document order, deduped by article number.
func ExtractEURLexTree(htmlStr, baseURN, kind, year, num string, opts Options) (*model.TreeResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, legalerr.ParsingError(htmlStr, "failed to parse EUR-Lex tree HTML")
	}

	var entries []model.TreeEntry
	seen := map[string]bool{}
	hasStructure := false

	doc.Find("[class*=ti-section], [class*=ti-art]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		hasStructure = true
		if strings.Contains(class, "ti-section") {
			if opts.WithDetails {
				entries = append(entries, model.TreeEntry{Header: strings.TrimSpace(s.Text())})
			}
			return
		}
		m := tiArtNumberPattern.FindStringSubmatch(strings.TrimSpace(s.Text()))
		if m == nil {
			return
		}
		number := m[1]
		if seen[number] {
			return
		}
		seen[number] = true
		entry := model.TreeEntry{Number: number}
		if opts.WithLinks {
			entry.URL = fmt.Sprintf("https://eur-lex.europa.eu/eli/%s/%s/%s/art_%s/oj", kind, year, num, number)
		}
		entries = append(entries, entry)
	})

	if !hasStructure {
		// Fall back to text-pattern scanning of all paragraph-level tags.
		doc.Find("p, div, span").Each(func(_ int, s *goquery.Selection) {
			m := tiArtNumberPattern.FindStringSubmatch(strings.TrimSpace(s.Text()))
			if m == nil || seen[m[1]] {
				return
			}
			seen[m[1]] = true
			entry := model.TreeEntry{Number: m[1]}
			if opts.WithLinks {
				entry.URL = fmt.Sprintf("%s#art_%s", baseURN, m[1])
			}
			entries = append(entries, entry)
		})
	}

	result := &model.TreeResult{Entries: entries, Count: countArticles(entries)}
	if opts.WithMetadata {
		result.Metadata = map[string]*model.AnnexMetadata{
			"Dispositivo": {Label: "Dispositivo", ArticleCount: countArticles(entries), ArticleNumbers: articleNumbers(entries)},
		}
	}
	return result, nil
}

func articleNumbers(entries []model.TreeEntry) []string {
	var out []string
	for _, e := range entries {
		if e.Header == "" {
			out = append(out, e.Number)
		}
	}
	return out
}

var tiArtNumberPattern = regexp.MustCompile(`(?i)^(?:articolo|article)\s+(\d+[a-z]*)\b`)
