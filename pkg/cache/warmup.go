package cache

import (
	"context"
	"sync"
)

// defaultWarmupURNs are the frequently requested URNs worth pre-resolving
// at startup, grounded on original_source's cache_warmup.py fixed list
// (the Constitution and the first articles of the civil and criminal
// codes).
var defaultWarmupURNs = []string{
	"urn:nir:stato:costituzione~art1",
	"urn:nir:stato:regio.decreto:1942-03-16;262:2~art1",
	"urn:nir:stato:regio.decreto:1930-10-19;1398~art1",
}

var warmupOnce sync.Once

// Warmup pre-resolves a fixed list of frequently requested URNs into the
// cache, at most once per process (spec §5's "a once-cell ensuring warmup
// runs at most once per process"). resolve is typically
// FetchArticleText wrapped to discard its result; failures are logged and
// swallowed — warmup is an optimization, never a precondition for
// correctness.
func (c *Cache) Warmup(ctx context.Context, resolve func(ctx context.Context, urn string) error) {
	warmupOnce.Do(func() {
		for _, u := range defaultWarmupURNs {
			if err := resolve(ctx, u); err != nil {
				c.log.Warn("cache warmup failed, continuing", "urn", u, "err", err)
				continue
			}
			c.RecordWarmup()
		}
	})
}
