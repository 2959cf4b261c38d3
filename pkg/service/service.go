// Package service is the composition root tying every component (C1-C11)
// into the seven operations spec §6 names. It is the seam cmd/lexcore's
// demonstration HTTP layer calls into; it is not itself an HTTP router.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/capazme/lexcore/pkg/aggregate"
	"github.com/capazme/lexcore/pkg/amendment"
	"github.com/capazme/lexcore/pkg/brocardi"
	"github.com/capazme/lexcore/pkg/cache"
	"github.com/capazme/lexcore/pkg/config"
	"github.com/capazme/lexcore/pkg/dateresolve"
	"github.com/capazme/lexcore/pkg/eurlex"
	"github.com/capazme/lexcore/pkg/fetch"
	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/model"
	"github.com/capazme/lexcore/pkg/normattiva"
	"github.com/capazme/lexcore/pkg/normref"
	"github.com/capazme/lexcore/pkg/tree"
	"github.com/capazme/lexcore/pkg/urn"
)

// Core wires every component together and exposes spec §6's seven
// operations.
type Core struct {
	cfg          *config.Config
	fetchClient  *fetch.Client
	cache        *cache.Cache
	dateResolver *dateresolve.Resolver
	eurlexFetch  *eurlex.Fetcher
	brocardi     *brocardi.Resolver
	llm          *amendment.Client
}

// New wires a Core from cfg, constructing every dependent component.
func New(cfg *config.Config, kb []brocardi.KnowledgeBaseEntry) *Core {
	fc := fetch.New(fetch.Config{
		MaxConcurrency:          cfg.HTTPMaxConcurrency,
		MinInterval:             cfg.HTTPMinInterval,
		MaxRetries:              cfg.HTTPMaxRetries,
		BackoffFactor:           cfg.HTTPBackoffFactor,
		InitialBackoff:          cfg.HTTPInitialBackoff,
		Jitter:                  cfg.HTTPJitter,
		Timeout:                 cfg.HTTPTimeout,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerSuccessThreshold: cfg.BreakerSuccessThreshold,
		BreakerTimeout:          cfg.BreakerTimeout,
	})

	return &Core{
		cfg:          cfg,
		fetchClient:  fc,
		cache:        cache.New(cfg.CacheBaseDir, cfg.PersistentCacheTTL, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB),
		dateResolver: dateresolve.New(cfg.HTTPTimeout),
		eurlexFetch:  eurlex.NewFetcher(cfg.HTTPTimeout),
		brocardi:     brocardi.New(kb, fc),
		llm:          amendment.New(cfg.LLMAPIKey, cfg.LLMAPIBase, cfg.LLMParsingModel, cfg.LLMTimeout),
	}
}

// ResolveReference implements ResolveReference(ActReference) -> CanonicalURN.
func (c *Core) ResolveReference(ref urn.Reference) (string, error) {
	// Codes default-annex quirk (spec §4.2 step 3 / §9): urn.Build strips a
	// CodeStem's embedded default annex off the stem before composing, so
	// if the caller gave no annex of their own, re-inject the code's
	// default here before the stripped value is lost for good.
	if isAbsentAnnex(ref.Annex) {
		if code, ok := normref.CodeAlias(strings.ToLower(strings.TrimSpace(ref.ActType))); ok && code.DefaultAnnex != "" {
			ref.Annex = code.DefaultAnnex
		}
	}
	return urn.Build(ref, c.dateResolver)
}

// isAbsentAnnex mirrors pkg/urn's own "", "null", "undefined" coalescing
// so the codes default-annex quirk above can be evaluated before Build.
func isAbsentAnnex(annex string) bool {
	switch strings.ToLower(strings.TrimSpace(annex)) {
	case "", "null", "undefined":
		return true
	}
	return false
}

// normattivaResolverBase is spec §6's URN resolution endpoint: a Normattiva
// CanonicalURN is a bare "urn:nir:stato:..." identifier, not itself a
// fetchable URL, so every Normattiva-sourced fetch prepends this.
const normattivaResolverBase = "https://www.normattiva.it/uri-res/N2Ls?"

func normattivaFetchURL(canonicalURN string) string {
	return normattivaResolverBase + canonicalURN
}

func sourceForURN(canonicalURN string) model.Source {
	if strings.HasPrefix(canonicalURN, "https://eur-lex.europa.eu") {
		return model.SourceEURLex
	}
	return model.SourceNormattiva
}

// FetchArticleText implements FetchArticleText(CanonicalURN) -> ResolvedArticleText.
func (c *Core) FetchArticleText(ctx context.Context, canonicalURN string, article string, withLinks bool) (*model.ResolvedArticleText, error) {
	source := sourceForURN(canonicalURN)

	if cached, hit, err := c.cache.Get(ctx, cacheNamespace(source), canonicalURN); err == nil && hit {
		var result model.ResolvedArticleText
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	var result *model.ResolvedArticleText
	var err error

	switch source {
	case model.SourceEURLex:
		html, fetchErr := c.eurlexFetch.FetchHTML(ctx, canonicalURN)
		if fetchErr != nil {
			return nil, fetchErr
		}
		result, err = eurlex.ExtractArticleText(html, article, canonicalURN)
	default:
		fetchURL := normattivaFetchURL(canonicalURN)
		resp, fetchErr := c.fetchClient.Fetch(ctx, fetchURL, string(model.SourceNormattiva))
		if fetchErr != nil {
			return nil, fetchErr
		}
		if normattiva.IsSessionExpired(resp.Text) {
			resp, fetchErr = c.fetchClient.Fetch(ctx, fetchURL, string(model.SourceNormattiva))
			if fetchErr != nil {
				return nil, fetchErr
			}
			if normattiva.IsSessionExpired(resp.Text) {
				return nil, legalerr.NetworkError(nil, "normattiva session expired for %s", fetchURL)
			}
		}
		result, err = normattiva.ExtractArticle(resp.Text, canonicalURN, withLinks)
	}
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(result); marshalErr == nil {
		_ = c.cache.Set(ctx, cacheNamespace(source), canonicalURN, raw)
	}
	return result, nil
}

func cacheNamespace(source model.Source) cache.Namespace {
	switch source {
	case model.SourceEURLex:
		return cache.EURLex
	case model.SourceBrocardi:
		return cache.Brocardi
	default:
		return cache.Normattiva
	}
}

// FetchTreeOptions mirrors spec §6's {with_links, with_details, with_metadata}.
type FetchTreeOptions = tree.Options

// FetchTree implements FetchTree(CanonicalURN, opts) -> (entries, count, metadata?).
func (c *Core) FetchTree(ctx context.Context, canonicalURN string, opts FetchTreeOptions) (*model.TreeResult, error) {
	source := sourceForURN(canonicalURN)

	cacheKey := fmt.Sprintf("%s|%v|%v|%v", canonicalURN, opts.WithLinks, opts.WithDetails, opts.WithMetadata)
	if cached, hit, err := c.cache.Get(ctx, cache.Tree, cacheKey); err == nil && hit {
		var result model.TreeResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	var result *model.TreeResult
	var err error

	if source == model.SourceEURLex {
		html, fetchErr := c.eurlexFetch.FetchHTML(ctx, canonicalURN)
		if fetchErr != nil {
			return nil, fetchErr
		}
		kind, year, num := parseEURLexURL(canonicalURN)
		result, err = tree.ExtractEURLexTree(html, canonicalURN, kind, year, num, opts)
	} else {
		resp, fetchErr := c.fetchClient.Fetch(ctx, normattivaFetchURL(canonicalURN), string(model.SourceNormattiva))
		if fetchErr != nil {
			return nil, fetchErr
		}
		result, err = tree.ExtractNormattivaTree(resp.Text, canonicalURN, opts)
	}
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(result); marshalErr == nil {
		_ = c.cache.Set(ctx, cache.Tree, cacheKey, raw)
	}
	return result, nil
}

func parseEURLexURL(u string) (kind, year, num string) {
	parts := strings.Split(u, "/")
	for i, p := range parts {
		if p == "eli" && i+3 < len(parts) {
			return parts[i+1], parts[i+2], parts[i+3]
		}
	}
	return "", "", ""
}

// FetchEnrichment implements FetchEnrichment(CanonicalURN) -> EnrichmentResult.
// Brocardi is never consulted for EU acts, per spec §8's GDPR test scenario.
func (c *Core) FetchEnrichment(ctx context.Context, canonicalURN, composedLabel, actType, actNumber string) (*model.EnrichmentResult, error) {
	if sourceForURN(canonicalURN) == model.SourceEURLex {
		return nil, nil
	}

	sectionURL, ok := c.brocardi.LookupSection(composedLabel, actType, actNumber)
	if !ok {
		return &model.EnrichmentResult{}, nil
	}

	resp, err := c.fetchClient.Fetch(ctx, sectionURL, string(model.SourceBrocardi))
	if err != nil {
		return nil, err
	}
	return c.brocardi.ExtractArticlePage(resp.Text), nil
}

// FetchAmendmentHistory implements FetchAmendmentHistory(CanonicalURN, {filter_to_article}) -> []AmendmentRecord.
func (c *Core) FetchAmendmentHistory(ctx context.Context, articlePageURL, filterToArticle string) ([]model.AmendmentRecord, error) {
	resp, err := c.fetchClient.Fetch(ctx, articlePageURL, string(model.SourceNormattiva))
	if err != nil {
		return nil, err
	}

	dataHref, ok := findAggiornamentiHref(resp.Text)
	if !ok {
		return nil, legalerr.NotFound("aggiornamenti_atto_button not found")
	}

	tableResp, err := c.fetchClient.Fetch(ctx, dataHref, string(model.SourceNormattiva))
	if err != nil {
		return nil, err
	}

	records, err := normattiva.ParseHistoryTable(ctx, tableResp.Text, c.llm)
	if err != nil {
		return nil, err
	}

	if filterToArticle != "" {
		records = normattiva.FilterByArticle(records, filterToArticle)
	}
	return records, nil
}

// FetchVersionAt implements FetchVersionAt(CanonicalURN, date) -> ResolvedArticleText.
func (c *Core) FetchVersionAt(ctx context.Context, baseURN, article, versionDate string, originale bool) (*model.ResolvedArticleText, error) {
	versioned, err := normattiva.VersionedURN(baseURN, originale, versionDate)
	if err != nil {
		return nil, err
	}
	return c.FetchArticleText(ctx, versioned, article, false)
}

// StreamAggregated implements StreamAggregated over a multi-article spec,
// invoking emit for each concrete article in input order.
func (c *Core) StreamAggregated(
	ctx context.Context,
	canonicalURN, articleSpec, normaData string,
	includeEnrichment bool,
	composedLabel, actType, actNumber string,
	emit func(model.StreamItem),
) {
	source := sourceForURN(canonicalURN)

	// Spec §4.11: a numeric range must intersect the act's tree so
	// extension-bearing articles (e.g. "5-bis") whose base falls in range
	// are pulled in too. The tree fetch is best-effort — if it fails,
	// ExpandArticleSpec falls back to plain numeric enumeration rather
	// than aborting the whole stream over a tree-extraction failure.
	var knownArticles []string
	if treeResult, err := c.FetchTree(ctx, canonicalURN, tree.Options{}); err == nil {
		knownArticles = treeArticleNumbers(treeResult)
	}

	fetchText := func(ctx context.Context, article string) (*model.ResolvedArticleText, error) {
		return c.FetchArticleText(ctx, canonicalURN, article, false)
	}

	var fetchEnrichment aggregate.EnrichmentFetcher
	if includeEnrichment {
		fetchEnrichment = func(ctx context.Context, article string) (*model.EnrichmentResult, error) {
			return c.FetchEnrichment(ctx, canonicalURN, composedLabel, actType, actNumber)
		}
	}

	aggregate.Stream(ctx, articleSpec, knownArticles, normaData, source, fetchText, fetchEnrichment, emit)
}

// treeArticleNumbers flattens a tree result's article entries (skipping
// section headers) into the order-preserving list ExpandArticleSpec
// intersects numeric ranges against.
func treeArticleNumbers(result *model.TreeResult) []string {
	if result == nil {
		return nil
	}
	var out []string
	for _, e := range result.Entries {
		if e.Header == "" {
			out = append(out, e.Number)
		}
	}
	return out
}

// Warmup pre-resolves the fixed list of frequently requested URNs.
func (c *Core) Warmup(ctx context.Context) {
	c.cache.Warmup(ctx, func(ctx context.Context, urnStr string) error {
		_, err := c.FetchArticleText(ctx, urnStr, "", false)
		return err
	})
}

// CacheStats exposes the persistent cache's hit/miss/warmup counters for
// /health.
func (c *Core) CacheStats() cache.Stats {
	return c.cache.GetStats()
}

// NormalizeActType exposes C1's normalizer directly, for callers building
// a composedLabel before calling FetchEnrichment.
func NormalizeActType(actType string) string {
	return normref.Normalize(actType)
}

func findAggiornamentiHref(html string) (string, bool) {
	const marker = `id="aggiornamenti_atto_button"`
	idx := strings.Index(html, marker)
	if idx == -1 {
		return "", false
	}
	const hrefMarker = `data-href="`
	rest := html[idx:]
	hrefIdx := strings.Index(rest, hrefMarker)
	if hrefIdx == -1 {
		return "", false
	}
	start := hrefIdx + len(hrefMarker)
	end := strings.Index(rest[start:], `"`)
	if end == -1 {
		return "", false
	}
	return rest[start : start+end], true
}
