// Package dateresolve implements C5: headless-browser date completion for
// year-only act references, against Normattiva's search box. Grounded on
// chromedp usage in the retrieval pack's manifests (ternarybob-quaero,
// hazyhaar-chrc, boyrevue-USER-UX, theRebelliousNerd-codenerd) and on the
// algorithm in original_source/NEWVERSION/utils/urn.py's complete_date.
package dateresolve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/normref"
)

const homepageURL = "https://www.normattiva.it"

// resultSelectors is the ordered fallback chain of CSS selectors tried in
// sequence until one matches a result link, data not inline code so a
// future DOM change only needs a new table entry — grounded on
// original_source/visualex_api/tools/selectors.py.
var resultSelectors = []string{
	"div.risultati-ricerca a.risultato-link",
	"div#risultati a",
	"table.risultati tbody tr td a",
	"a.numero_articolo",
	"ul.risultati li a",
}

// italianMonths backs the long-form Italian date regex ("GG MESE YYYY").
var italianMonths = map[string]string{
	"gennaio": "01", "febbraio": "02", "marzo": "03", "aprile": "04",
	"maggio": "05", "giugno": "06", "luglio": "07", "agosto": "08",
	"settembre": "09", "ottobre": "10", "novembre": "11", "dicembre": "12",
}

var longFormDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})`)

// ErrResolutionFailed is the sentinel spec §4.5 requires: "on timeout or
// any exception, return a sentinel error string recognizable by the
// caller (which then falls back to YYYY-01-01)".
var ErrResolutionFailed = legalerr.NetworkError(nil, "date resolution failed")

// cacheKey identifies a (act_type, year, act_number) resolution.
type cacheKey struct {
	actType   string
	year      string
	actNumber string
}

// Resolver implements pkg/urn.DateResolver by driving a headless Chrome
// session against Normattiva's search box.
type Resolver struct {
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]string
}

// New constructs a Resolver. timeout bounds the whole browser interaction
// (spec §4.5 step 4: "wait up to 10s for the first result link" plus
// margin for navigation and typing).
func New(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Resolver{
		timeout: timeout,
		log:     slog.Default().With("component", "dateresolve"),
		cache:   make(map[cacheKey]string),
	}
}

// ResolveDate implements pkg/urn.DateResolver.
func (r *Resolver) ResolveDate(actType, year, actNumber string) (string, error) {
	key := cacheKey{actType: actType, year: year, actNumber: actNumber}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	date, err := r.resolve(actType, year, actNumber)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = date
	r.mu.Unlock()
	return date, nil
}

func (r *Resolver) resolve(actType, year, actNumber string) (string, error) {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, r.timeout)
	defer timeoutCancel()

	query := fmt.Sprintf("%s %s %s", normref.SearchLabel(actType), actNumber, year)

	var resultText string
	matched := false

	err := chromedp.Run(ctx,
		chromedp.Navigate(homepageURL),
		// Dismiss any consent banner, best-effort: ignore the error if it
		// isn't present (spec §4.5 step 2).
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`button#onetrust-accept-btn-handler`, chromedp.NodeVisible).Do(ctx)
			return nil
		}),
		chromedp.SetValue(`input#ricerca-avanzata-query, input[name="q"]`, query, chromedp.NodeVisible),
		chromedp.Submit(`input#ricerca-avanzata-query, input[name="q"]`),
	)
	if err != nil {
		r.log.Warn("date resolver navigation failed", "query", query, "err", err)
		return "", ErrResolutionFailed
	}

	for _, sel := range resultSelectors {
		selCtx, selCancel := context.WithTimeout(ctx, 10*time.Second)
		runErr := chromedp.Run(selCtx, chromedp.Text(sel, &resultText, chromedp.NodeVisible))
		selCancel()
		if runErr == nil && strings.TrimSpace(resultText) != "" {
			matched = true
			break
		}
	}
	if !matched {
		r.log.Warn("no result selector matched", "query", query)
		return "", ErrResolutionFailed
	}

	iso, ok := extractISODate(resultText)
	if !ok {
		r.log.Warn("result text carried no recognizable date", "text", resultText)
		return "", ErrResolutionFailed
	}
	return iso, nil
}

// extractISODate applies the Italian long-form date regex and converts to
// YYYY-MM-DD, per spec §4.5 step 6.
func extractISODate(text string) (string, bool) {
	m := longFormDatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	month, ok := italianMonths[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}
	year := m[3]
	return fmt.Sprintf("%s-%s-%s", year, month, day), true
}
