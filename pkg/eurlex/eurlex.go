// Package eurlex implements C7: the EUR-Lex extractor. The upstream is
// WAF-guarded, so fetches go through a headless browser rather than plain
// HTTP; extraction itself is grounded directly on
// original_source/NEWVERSION/eurlex.py's EurlexScraper.extract_article_text
// and extract_table_text, translated from BeautifulSoup's sibling-walk
// idiom to goquery's.
package eurlex

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/capazme/lexcore/pkg/htmlwalk"
	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/model"
)

// Fetcher drives a headless Chrome session to retrieve EUR-Lex pages past
// the WAF, with a spoofed desktop user agent. After navigation it waits
// for the body element to be ready; it does not wait for network idle.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher constructs a Fetcher. timeout bounds the whole navigation.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

const spoofedUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// FetchHTML navigates to url and returns the fully rendered page HTML.
func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, f.timeout)
	defer timeoutCancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.EmulateViewport(1920, 1080).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(spoofedUserAgent).Do(ctx)
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", legalerr.NetworkError(err, "headless fetch of %s failed", url)
	}
	return html, nil
}

var tiArtPattern = regexp.MustCompile(`(?i)^(articolo|article|art\.)\s*(\d+[a-z]*)\b`)

// ExtractArticleText implements the 5-strategy locator and sibling-walk
// assembly described in spec §4.7, mirroring eurlex.py's
// extract_article_text.
func ExtractArticleText(htmlStr string, article string, urnOut string) (*model.ResolvedArticleText, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, legalerr.ParsingError(htmlStr, "failed to parse EUR-Lex HTML")
	}

	header := locateArticleHeader(doc, article)
	if header == nil {
		return nil, legalerr.NotFound(fmt.Sprintf("article %s", article))
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(header.Text()))
	b.WriteString("\n")

	htmlwalk.WalkSiblingsUntil(header,
		func(s *goquery.Selection) bool { return isArticleHeader(s) },
		func(s *goquery.Selection) {
			switch goquery.NodeName(s) {
			case "table":
				b.WriteString(htmlwalk.TableRowsText(s))
				b.WriteString("\n")
			case "p", "div":
				b.WriteString(htmlwalk.CollectText(s))
				b.WriteString("\n")
			}
		},
	)

	return &model.ResolvedArticleText{
		Text:   strings.TrimSpace(b.String()),
		URN:    urnOut,
		Source: model.SourceEURLex,
	}, nil
}

func matchesArticle(text, article string) bool {
	m := tiArtPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return false
	}
	return m[2] == article
}

func isArticleHeader(s *goquery.Selection) bool {
	if s.HasClass("ti-art") {
		return true
	}
	return tiArtPattern.MatchString(strings.TrimSpace(s.Text()))
}

// locateArticleHeader tries the five strategies spec §4.7 names, in order.
func locateArticleHeader(doc *goquery.Document, article string) *goquery.Selection {
	// 1. <p class="ti-art"> beginning with Articolo/Article/Art. N
	var found *goquery.Selection
	doc.Find("p.ti-art").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if matchesArticle(s.Text(), article) {
			found = s
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	// 2. any tag whose class contains "art" or "title"
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if class == "" {
			return true
		}
		if strings.Contains(class, "art") || strings.Contains(class, "title") {
			if matchesArticle(s.Text(), article) {
				found = s
				return false
			}
		}
		return true
	})
	if found != nil {
		return found
	}

	// 3. any <p|div|span|hN> matching the header regex directly
	doc.Find("p, div, span, h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		direct := strings.TrimSpace(s.Contents().First().Text())
		if matchesArticle(direct, article) || matchesArticle(s.Text(), article) {
			found = s
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	// 4. div.eli-subdivision containing a matching header
	doc.Find("div.eli-subdivision").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if matchesArticle(s.Text(), article) {
			found = s
			return false
		}
		return true
	})
	return found
}

// BuildELIURL constructs "/eli/{kind}/{year}/{num}/oj/ita", truncating year
// to its YYYY prefix, per spec §4.7's "EU URL construction".
func BuildELIURL(kind, year, num string) string {
	if len(year) >= 4 {
		year = year[:4]
	}
	return fmt.Sprintf("https://eur-lex.europa.eu/eli/%s/%s/%s/oj/ita", kind, year, num)
}
