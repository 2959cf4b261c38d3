// Package brocardi implements C8: knowledge-base lookup and the
// parallel, independently-fault-tolerant article-page extractor described
// in spec §4.8. Grounded on goquery traversal idiom (as in pkg/normattiva,
// pkg/eurlex) and on the teacher's "isolate one failing concern from the
// rest" discipline (core/pkg/api's per-field error handling in handlers.go).
package brocardi

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/capazme/lexcore/pkg/fetch"
	"github.com/capazme/lexcore/pkg/htmlwalk"
	"github.com/capazme/lexcore/pkg/model"
)

// KnowledgeBaseEntry maps one human label to a Brocardi section URL.
type KnowledgeBaseEntry struct {
	Label     string
	ActType   string
	ActNumber string
	URL       string
}

// Resolver looks up a normalized reference against a static knowledge
// base and fetches/extracts its enrichment.
type Resolver struct {
	kb     []KnowledgeBaseEntry
	client *fetch.Client
	log    *slog.Logger
}

// New constructs a Resolver over kb (typically loaded once at startup from
// a static table — spec §4.8 "scan a static mapping").
func New(kb []KnowledgeBaseEntry, client *fetch.Client) *Resolver {
	return &Resolver{kb: kb, client: client, log: slog.Default().With("component", "brocardi")}
}

// LookupSection implements spec §4.8's three-tier matching strategy.
func (r *Resolver) LookupSection(composedLabel, actType, actNumber string) (string, bool) {
	// (i) exact substring match on the full composed label.
	for _, e := range r.kb {
		if e.Label == "" || composedLabel == "" {
			continue
		}
		if strings.Contains(composedLabel, e.Label) || strings.Contains(e.Label, composedLabel) {
			return e.URL, true
		}
	}
	// (ii) act-type token with act-number match.
	for _, e := range r.kb {
		if e.ActType == actType && e.ActNumber == actNumber {
			return e.URL, true
		}
	}
	// (iii) act-type-only match for single-instance codes (constitution).
	for _, e := range r.kb {
		if e.ActType == actType && e.ActNumber == "" {
			return e.URL, true
		}
	}
	return "", false
}

var artHrefPattern = regexp.MustCompile(`href="([^"]*art(\d+[a-z]*)\.html)"`)

// DiscoverArticleURL implements spec §4.8's "Article discovery" algorithm.
func (r *Resolver) DiscoverArticleURL(ctx context.Context, sectionURL, article string) (string, bool) {
	resp, err := r.client.Fetch(ctx, sectionURL, "brocardi")
	if err != nil {
		r.log.Warn("brocardi section fetch failed", "url", sectionURL, "err", err)
		return "", false
	}

	// Step 2: href="...artN.html" regex on the serialized HTML.
	matches := artHrefPattern.FindAllStringSubmatch(resp.Text, -1)
	for _, m := range matches {
		if m[2] == article {
			return resolveRelative(sectionURL, m[1]), true
		}
	}
	if len(matches) > 0 {
		// Any match at all counts as "if any match, return the first
		// resolved-relative URL" per spec §4.8 step 2 — but only when no
		// exact article number was asked for (empty article = "all").
		if article == "" {
			return resolveRelative(sectionURL, matches[0][1]), true
		}
	}

	// Step 3: collect anchors inside div.section-title, cap at 10, batch
	// in groups of 3, 30s bounded gather per batch.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text))
	if err != nil {
		return "", false
	}
	var hrefs []string
	doc.Find("div.section-title a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, resolveRelative(sectionURL, href))
		}
		return len(hrefs) < 10
	})

	for i := 0; i < len(hrefs); i += 3 {
		end := i + 3
		if end > len(hrefs) {
			end = len(hrefs)
		}
		batch := hrefs[i:end]
		if found, ok := r.probeBatch(ctx, batch, article); ok {
			return found, true
		}
		if end < len(hrefs) {
			time.Sleep(500 * time.Millisecond) // step 4: wait 0.5s between batches
		}
	}

	return "", false
}

// probeBatch fetches each href in batch concurrently, bounded by 30s
// aggregate, and returns the first one whose content matches article.
func (r *Resolver) probeBatch(ctx context.Context, batch []string, article string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	type result struct {
		href string
		ok   bool
	}
	results := make(chan result, len(batch))
	var wg sync.WaitGroup
	for _, href := range batch {
		wg.Add(1)
		go func(href string) {
			defer wg.Done()
			resp, err := r.client.Fetch(ctx, href, "brocardi")
			if err != nil {
				results <- result{href, false}
				return
			}
			matches := strings.Contains(resp.Text, "art"+article+".html") || strings.Contains(resp.Text, fmt.Sprintf("Art. %s", article))
			results <- result{href, matches}
		}(href)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.ok {
			cancel() // cancel outstanding probes per spec §4.8 step 3
			return res.href, true
		}
	}
	return "", false
}

func resolveRelative(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	idx := strings.Index(base, "/brocardi.it")
	if idx == -1 {
		return "https://www.brocardi.it" + href
	}
	return base[:idx+len("/brocardi.it")] + href
}

// ExtractArticlePage implements spec §4.8's "Article page extraction":
// locate the container then extract every sub-section in parallel,
// each guarded so a single failure never aborts the others.
func (r *Resolver) ExtractArticlePage(htmlStr string) *model.EnrichmentResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		r.log.Warn("brocardi article page unparsable", "err", err)
		return &model.EnrichmentResult{}
	}

	container := doc.Find("div.panes-condensed.panes-w-ads.content-ext-guide.content-mark").First()
	if container.Length() == 0 {
		container = doc.Selection
	}

	result := &model.EnrichmentResult{}
	var wg sync.WaitGroup
	var mu sync.Mutex

	guard := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Warn("brocardi sub-section extraction panicked", "section", name, "recover", rec)
				}
			}()
			fn()
		}()
	}

	guard("position", func() {
		text := doc.Find("div#breadcrumb").First().Text()
		text = strings.TrimPrefix(strings.TrimSpace(text), "Brocardi.it")
		mu.Lock()
		result.Position = strings.TrimSpace(text)
		mu.Unlock()
	})

	guard("brocardi", func() {
		var items []string
		container.Find("div.brocardi-content").Each(func(_ int, s *goquery.Selection) {
			items = append(items, htmlwalk.CollectText(s))
		})
		mu.Lock()
		result.Brocardi = items
		mu.Unlock()
	})

	guard("ratio", func() {
		text := htmlwalk.CollectText(container.Find("div.container-ratio > div.corpoDelTesto").First())
		mu.Lock()
		result.Ratio = text
		mu.Unlock()
	})

	guard("spiegazione", func() {
		text := textAfterHeading(doc, "h3", "Spiegazione dell'art", "div.text")
		mu.Lock()
		result.Spiegazione = text
		mu.Unlock()
	})

	guard("massime", func() {
		massime := extractMassime(container)
		mu.Lock()
		result.Massime = massime
		mu.Unlock()
	})

	guard("relazione-costituzione", func() {
		text := textAfterHeading(doc, "h3", "Relazione al Progetto della Costituzione", "")
		mu.Lock()
		result.RelazioneCostituzione = text
		mu.Unlock()
	})

	guard("relazioni", func() {
		relazioni := extractRelazioni(doc)
		mu.Lock()
		result.Relazioni = relazioni
		mu.Unlock()
	})

	guard("footnotes", func() {
		fn := extractFootnotes(doc)
		mu.Lock()
		result.Footnotes = fn
		mu.Unlock()
	})

	guard("related-articles", func() {
		related := extractRelatedArticles(doc)
		mu.Lock()
		result.RelatedArticles = related
		mu.Unlock()
	})

	guard("cross-references", func() {
		refs := extractCrossReferences(container)
		mu.Lock()
		result.CrossReferences = refs
		mu.Unlock()
	})

	wg.Wait()
	return result
}

func textAfterHeading(doc *goquery.Document, headingTag, headingContains, targetSelector string) string {
	var text string
	doc.Find(headingTag).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !strings.Contains(h.Text(), headingContains) {
			return true
		}
		if targetSelector == "" {
			text = htmlwalk.CollectText(h.Next())
		} else {
			htmlwalk.WalkSiblingsUntil(h, func(s *goquery.Selection) bool {
				return goquery.NodeName(s) == headingTag
			}, func(s *goquery.Selection) {
				if text == "" && s.Is(targetSelector) {
					text = htmlwalk.CollectText(s)
				}
			})
		}
		return false
	})
	return text
}

// authorityPattern matches the nine Italian judicial authorities spec §4.8
// names, followed by "n. NUM/YEAR".
var authorityPattern = regexp.MustCompile(`(?i)(Corte Costituzionale|Corte di Cassazione(?:,\s*sez\.\s*\S+)?|Consiglio di Stato|TAR\s+[A-Za-zàèìòù\s]+|Corte dei Conti|Corte d['’]Appello|Tribunale|Corte di Giustizia dell['’]Unione Europea|Corte Europea dei Diritti dell['’]Uomo)\s*,?\s*n\.?\s*(\d+)\s*/\s*(\d{4})`)
var fallbackNumYearPattern = regexp.MustCompile(`n\.?\s*(\d+)\s*/\s*(\d{4})`)

func extractMassime(container *goquery.Selection) []model.Massima {
	var out []model.Massima
	// Parses every div.sentenza inside container; the "Massime relative
	// all'art" heading is not used to narrow the search.
	container.Find("div.sentenza").Each(func(_ int, s *goquery.Selection) {
		full := htmlwalk.CollectText(s)
		strongText := s.Find("strong").First().Text()

		if m := authorityPattern.FindStringSubmatch(strongText); m != nil {
			massima := model.Massima{Authority: strings.TrimSpace(m[1]), Number: m[2], Year: m[3]}
			massima.Text = strings.TrimSpace(strings.Replace(full, strongText, "", 1))
			out = append(out, massima)
			return
		}

		// Fallback: number/year with authority taken as the text before "n.".
		if m := fallbackNumYearPattern.FindStringSubmatch(strongText); m != nil {
			idx := strings.Index(strongText, "n.")
			authority := strings.TrimSpace(strongText)
			if idx > 0 {
				authority = strings.TrimSpace(strongText[:idx])
			}
			out = append(out, model.Massima{
				Authority: authority,
				Number:    m[1],
				Year:      m[2],
				Text:      strings.TrimSpace(strings.Replace(full, strongText, "", 1)),
			})
			return
		}
	})
	return out
}

var relazioniHeadings = []struct {
	heading string
	title   string
}{
	{"Libro delle Obbligazioni", "Relazione — Libro delle Obbligazioni"},
	{"Relazione", "Relazione al Codice Civile"},
}

var citedArticleRe = regexp.MustCompile(`art(\d+[a-z]*)\.html`)

func extractRelazioni(doc *goquery.Document) []model.Relazione {
	var out []model.Relazione
	for _, h := range relazioniHeadings {
		doc.Find("h3, h4").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
			if !strings.Contains(heading.Text(), h.heading) {
				return true
			}
			body := heading.Next()
			text := htmlwalk.CollectText(body)
			var cited []string
			body.Find("a").Each(func(_ int, a *goquery.Selection) {
				if href, ok := a.Attr("href"); ok {
					if m := citedArticleRe.FindStringSubmatch(href); m != nil {
						cited = append(cited, m[1])
					}
				}
			})
			out = append(out, model.Relazione{Title: h.title, Text: text, CitedArticles: cited})
			return false
		})
	}
	return out
}

func extractFootnotes(doc *goquery.Document) []model.Footnote {
	seen := map[int]model.Footnote{}

	doc.Find("a.nota-ref").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		name := strings.TrimPrefix(href, "#")
		target := doc.Find(fmt.Sprintf(`a[name="%s"]`, name))
		if num, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil {
			seen[num] = model.Footnote{Number: num, Text: htmlwalk.CollectText(target.Parent())}
		}
	})

	doc.Find("div.corpoDelTesto.nota").Each(func(i int, s *goquery.Selection) {
		if _, ok := seen[i+1]; !ok {
			seen[i+1] = model.Footnote{Number: i + 1, Text: htmlwalk.CollectText(s)}
		}
	})

	doc.Find("sup").Each(func(_ int, sup *goquery.Selection) {
		if num, err := strconv.Atoi(strings.TrimSpace(sup.Text())); err == nil {
			if _, ok := seen[num]; !ok {
				sibling := sup.Next()
				if sibling.Is("div.nota") {
					seen[num] = model.Footnote{Number: num, Text: htmlwalk.CollectText(sibling)}
				}
			}
		}
	})

	doc.Find(`a[href^="#nota"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if num, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil {
			if _, ok := seen[num]; !ok {
				id := strings.TrimPrefix(href, "#")
				target := doc.Find(fmt.Sprintf(`#%s`, id))
				seen[num] = model.Footnote{Number: num, Text: htmlwalk.CollectText(target)}
			}
		}
	})

	out := make([]model.Footnote, 0, len(seen))
	for _, f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

var articleHrefRe = regexp.MustCompile(`art(\d+[a-z]*)\.html`)

func extractRelatedArticles(doc *goquery.Document) []model.RelatedArticle {
	var out []model.RelatedArticle
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := strings.ToLower(a.Text())
		if !strings.Contains(text, "precedente") && !strings.Contains(text, "successivo") {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		m := articleHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		out = append(out, model.RelatedArticle{Number: m[1], URL: href, Title: strings.TrimSpace(a.Text())})
	})
	return out
}

var actTypePrefixes = map[string]string{
	"/codice-civile/":  "codice civile",
	"/codice-penale/":  "codice penale",
	"/costituzione/":   "costituzione",
}

func extractCrossReferences(container *goquery.Selection) []model.CrossReference {
	seen := map[string]bool{}
	var out []model.CrossReference
	container.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !articleHrefRe.MatchString(href) {
			return
		}
		if seen[href] {
			return
		}
		seen[href] = true
		actType := ""
		for prefix, t := range actTypePrefixes {
			if strings.Contains(href, prefix) {
				actType = t
				break
			}
		}
		out = append(out, model.CrossReference{URL: href, ActType: actType})
	})
	return out
}
