// Package aggregate implements C11: parsing an article specification
// against an act's tree, fanning out parallel text+enrichment fetches,
// and streaming results back in input order. Grounded on the teacher's
// concurrency idiom (core/pkg/util/resiliency) generalized from a single
// client's retry loop to an unbounded per-article fan-out (one goroutine
// per article) with ordered emission.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/capazme/lexcore/pkg/model"
)

// ArticleFetcher fetches the text of one concrete article identifier,
// returning its ResolvedArticleText.
type ArticleFetcher func(ctx context.Context, article string) (*model.ResolvedArticleText, error)

// EnrichmentFetcher fetches Brocardi enrichment for one concrete article
// identifier, only ever invoked when the source is Normattiva.
type EnrichmentFetcher func(ctx context.Context, article string) (*model.EnrichmentResult, error)

var rangePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)
var articleBasePattern = regexp.MustCompile(`^(\d+)`)

// ExpandArticleSpec parses a comma-separated article specification with
// ranges and extensions (e.g. "1, 2-bis, 4-6") into the concrete,
// order-preserving list of article identifiers, per spec §4.11. A plain
// numeric range ("4-6") intersects against knownArticles (the act's tree
// article numbers, in document order) so that extension-bearing articles
// whose base falls in the range (e.g. "5-bis") are pulled in alongside the
// plain numbers, per spec §8's boundary behavior. When knownArticles is
// empty (no tree available) a range falls back to plain numeric
// enumeration. Anything else (single numbers, explicit extensions) is
// preserved verbatim as a single entry.
func ExpandArticleSpec(spec string, knownArticles []string) []string {
	var out []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := rangePattern.FindStringSubmatch(part); m != nil {
			lo, errLo := strconv.Atoi(m[1])
			hi, errHi := strconv.Atoi(m[2])
			if errLo == nil && errHi == nil && lo <= hi {
				out = append(out, expandRangeAgainstTree(lo, hi, knownArticles)...)
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

// expandRangeAgainstTree materializes the numeric range [lo, hi]. With a
// known article list it includes every tree entry whose leading numeric
// base falls in range, extension suffix and all; without one it falls
// back to the plain integer sequence.
func expandRangeAgainstTree(lo, hi int, knownArticles []string) []string {
	if len(knownArticles) == 0 {
		var out []string
		for n := lo; n <= hi; n++ {
			out = append(out, strconv.Itoa(n))
		}
		return out
	}
	var out []string
	for _, number := range knownArticles {
		base, ok := articleBaseNumber(number)
		if ok && base >= lo && base <= hi {
			out = append(out, number)
		}
	}
	return out
}

func articleBaseNumber(number string) (int, bool) {
	m := articleBasePattern.FindStringSubmatch(number)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// fanoutResult pairs a concrete article with its eventual stream item, so
// the emit loop can await them strictly in input order even though the
// fetches themselves run in parallel.
type fanoutResult struct {
	article string
	item    model.StreamItem
	ready   chan struct{}
}

// Stream runs the full C11 pipeline: expand articleSpec (intersected
// against knownArticles, the act's tree article numbers, when available)
// fan out text+enrichment fetches in parallel, and invoke emit(item) for
// each concrete article strictly in input order, waiting yieldEvery
// between emissions so the transport can flush (spec §4.11's 50ms
// streaming yield).
func Stream(
	ctx context.Context,
	articleSpec string,
	knownArticles []string,
	normaData string,
	source model.Source,
	fetchText ArticleFetcher,
	fetchEnrichment EnrichmentFetcher,
	emit func(model.StreamItem),
) {
	articles := ExpandArticleSpec(articleSpec, knownArticles)
	if len(articles) == 0 {
		articles = []string{""}
	}

	results := make([]*fanoutResult, len(articles))
	for i, article := range articles {
		results[i] = &fanoutResult{article: article, ready: make(chan struct{})}
	}

	for i, article := range articles {
		go func(i int, article string) {
			defer close(results[i].ready)
			results[i].item = fetchOne(ctx, article, normaData, source, fetchText, fetchEnrichment)
		}(i, article)
	}

	const yieldEvery = 50 * time.Millisecond
	for i, r := range results {
		select {
		case <-r.ready:
		case <-ctx.Done():
			return
		}
		emit(r.item)
		if i < len(results)-1 {
			select {
			case <-time.After(yieldEvery):
			case <-ctx.Done():
				return
			}
		}
	}
}

func fetchOne(
	ctx context.Context,
	article string,
	normaData string,
	source model.Source,
	fetchText ArticleFetcher,
	fetchEnrichment EnrichmentFetcher,
) (item model.StreamItem) {
	defer func() {
		// A per-article panic must never abort the others; spec §4.11
		// requires an error object in its place, not a zero-value item.
		if r := recover(); r != nil {
			item = model.StreamItem{Error: fmt.Sprintf("panic: %v", r), NormaData: normaData}
		}
	}()

	text, err := fetchText(ctx, article)
	if err != nil {
		return model.StreamItem{Error: err.Error(), NormaData: normaData}
	}

	item = model.StreamItem{ArticleText: text.Text, NormaData: normaData, URL: text.URN}

	if fetchEnrichment != nil && source == model.SourceNormattiva {
		enrichment, enrichErr := fetchEnrichment(ctx, article)
		if enrichErr == nil {
			item.BrocardiInfo = enrichment
		}
	}

	return item
}

// MarshalNDJSON renders items as newline-delimited JSON, one object per
// line, matching spec §6's "application/x-ndjson" streaming wire format.
func MarshalNDJSON(items []model.StreamItem) ([]byte, error) {
	var b []byte
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		b = append(b, line...)
		b = append(b, '\n')
	}
	return b, nil
}
