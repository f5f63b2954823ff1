// Package crawler implements the two-pass catalog crawl: the frontier walks
// paginated listing pages into an ordered list of item links, and the engine
// drives per-item extraction, merge, and image persistence.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
)

// itemMarker identifies one product cell on a listing page. Pagination stops
// on the first page carrying no marker at all; a page whose markers are all
// duplicates does not stop the walk.
const itemMarker = "div.prdImg"

const defaultMaxPages = 200

// Frontier expands a locale's seed listing URL into the ordered, deduplicated
// list of item page URLs.
type Frontier struct {
	fetcher  catalog.Fetcher
	policy   catalog.Policy
	logger   *zap.Logger
	maxPages int
}

// NewFrontier creates a frontier over the given fetcher and request policy.
// maxPages bounds runaway pagination; values <= 0 select the default of 200.
func NewFrontier(fetcher catalog.Fetcher, policy catalog.Policy, logger *zap.Logger, maxPages int) *Frontier {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		fetcher:  fetcher,
		policy:   policy,
		logger:   logger,
		maxPages: maxPages,
	}
}

// Expand fetches listing pages from the seed, page by page, until a page has
// no item markers. Every page, including the first, carries an explicit page
// parameter: `?page=N` when the seed has no query string, `&page=N` when it
// does. Each marker contributes its first `a[href]` link, absolutized against
// the seed's scheme://host and deduplicated preserving first-seen order.
//
// A transport or parse error aborts the expansion and propagates; the caller
// decides what the failure means for the wider run.
func (f *Frontier) Expand(ctx context.Context, locale catalog.Locale, seedURL string) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("parse seed url %q: %w", seedURL, err)
	}
	root := seed.Scheme + "://" + seed.Host
	sep := "?"
	if seed.RawQuery != "" {
		sep = "&"
	}

	seen := make(map[string]struct{})
	var links []string
	for page := 1; ; page++ {
		if page > f.maxPages {
			f.logger.Warn("listing page ceiling reached",
				zap.String("locale", string(locale)),
				zap.Int("max_pages", f.maxPages),
				zap.Int("links", len(links)),
			)
			break
		}

		pageURL := fmt.Sprintf("%s%spage=%d", seedURL, sep, page)
		res, err := f.fetcher.Fetch(ctx, catalog.FetchRequest{URL: pageURL})
		if err != nil {
			return nil, fmt.Errorf("fetch listing page %d (%s): %w", page, locale, err)
		}
		metrics.ObserveListingPage(string(locale))

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
		if err != nil {
			return nil, fmt.Errorf("parse listing page %d (%s): %w", page, locale, err)
		}

		markers := doc.Find(itemMarker)
		if markers.Length() == 0 {
			f.logger.Debug("listing exhausted",
				zap.String("locale", string(locale)),
				zap.Int("pages", page-1),
				zap.Int("links", len(links)),
			)
			break
		}

		markers.Each(func(_ int, marker *goquery.Selection) {
			href, ok := marker.Find("a[href]").First().Attr("href")
			if !ok {
				return
			}
			abs := absolutize(root, href)
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})

		f.logger.Debug("listing page harvested",
			zap.String("locale", string(locale)),
			zap.Int("page", page),
			zap.Int("markers", markers.Length()),
			zap.Int("links", len(links)),
		)

		if err := f.policy.Pause(ctx); err != nil {
			return nil, fmt.Errorf("pause between listing pages: %w", err)
		}
	}
	return links, nil
}

// absolutize resolves a listing href against the storefront root: rooted
// paths join the root directly, full URLs pass through, anything else gets a
// slash between root and href.
func absolutize(root, href string) string {
	switch {
	case strings.HasPrefix(href, "/"):
		return root + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return root + "/" + href
	}
}
