package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/extract"
	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
)

// Merger reconciles one extracted record into the product store for the given
// locale. It reports the resulting product and whether a new row was created.
type Merger interface {
	Merge(ctx context.Context, locale catalog.Locale, pageURL string, record catalog.Extraction) (catalog.Product, bool, error)
}

// ImageLoader downloads and persists a newly created product's detail images.
// It returns the number of images stored; download and storage failures are
// handled internally and only shrink the count.
type ImageLoader interface {
	Load(ctx context.Context, productID int64, imageURLs []string) int
}

// Config holds the settings for a crawl run.
type Config struct {
	GlobalURL string
	KRURL     string
	MaxPages  int
}

// Engine orchestrates one crawl run: the global storefront pass followed by
// the kr pass, strictly sequential, every request gap paced by the policy.
type Engine struct {
	cfg      Config
	frontier *Frontier
	fetcher  catalog.Fetcher
	policy   catalog.Policy
	merger   Merger
	images   ImageLoader
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewEngine wires an engine from its collaborators. A nil emitter or logger
// is replaced with a no-op.
func NewEngine(
	cfg Config,
	fetcher catalog.Fetcher,
	policy catalog.Policy,
	merger Merger,
	images ImageLoader,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		frontier: NewFrontier(fetcher, policy, logger, cfg.MaxPages),
		fetcher:  fetcher,
		policy:   policy,
		merger:   merger,
		images:   images,
		emitter:  emitter,
		logger:   logger,
	}
}

// Run executes one complete crawl for the request. The returned count is the
// number of items merged, or the number of links found when the request is a
// dry run (max products of zero). A failed pass contributes its error but
// does not stop the remaining pass; the joined error marks the job failed.
func (e *Engine) Run(ctx context.Context, req catalog.CrawlRequest) (int, error) {
	total := 0
	var passErrs []error
	for _, locale := range catalog.Locales() {
		count, err := e.runPass(ctx, req, locale)
		total += count
		if err != nil {
			e.logger.Error("locale pass failed",
				zap.String("job_id", req.JobID),
				zap.String("locale", string(locale)),
				zap.Error(err),
			)
			passErrs = append(passErrs, fmt.Errorf("%s pass: %w", locale, err))
		}
	}
	return total, errors.Join(passErrs...)
}

func (e *Engine) seed(req catalog.CrawlRequest, locale catalog.Locale) string {
	if locale == catalog.LocaleKR {
		return e.cfg.KRURL
	}
	if req.TargetURL != "" {
		return req.TargetURL
	}
	return e.cfg.GlobalURL
}

func (e *Engine) runPass(ctx context.Context, req catalog.CrawlRequest, locale catalog.Locale) (int, error) {
	seed := e.seed(req, locale)
	links, err := e.frontier.Expand(ctx, locale, seed)
	if err != nil {
		return 0, err
	}
	e.emit(progress.Event{
		JobID:  req.JobID,
		TS:     time.Now().UTC(),
		Stage:  progress.StageListing,
		Locale: string(locale),
		URL:    seed,
		Count:  int64(len(links)),
	})

	if req.MaxProducts != nil {
		if *req.MaxProducts == 0 {
			e.logger.Info("dry run: counting links only",
				zap.String("job_id", req.JobID),
				zap.String("locale", string(locale)),
				zap.Int("links", len(links)),
			)
			return len(links), nil
		}
		if len(links) > *req.MaxProducts {
			links = links[:*req.MaxProducts]
		}
	}

	merged := 0
	for i, link := range links {
		if i > 0 {
			if err := e.policy.Pause(ctx); err != nil {
				return merged, fmt.Errorf("pause between items: %w", err)
			}
		}
		created, err := e.processItem(ctx, req.JobID, locale, link)
		if err != nil {
			if ctx.Err() != nil {
				return merged, fmt.Errorf("item %s: %w", link, err)
			}
			e.logger.Warn("item skipped",
				zap.String("job_id", req.JobID),
				zap.String("locale", string(locale)),
				zap.String("url", link),
				zap.Error(err),
			)
			metrics.ObserveItem(string(locale), string(progress.OutcomeSkipped))
			e.emit(progress.Event{
				JobID:   req.JobID,
				TS:      time.Now().UTC(),
				Stage:   progress.StageItem,
				Locale:  string(locale),
				URL:     link,
				Outcome: progress.OutcomeSkipped,
				Note:    err.Error(),
			})
			continue
		}

		merged++
		outcome := progress.OutcomeUpdated
		if created {
			outcome = progress.OutcomeCreated
		}
		metrics.ObserveItem(string(locale), string(outcome))
		e.emit(progress.Event{
			JobID:   req.JobID,
			TS:      time.Now().UTC(),
			Stage:   progress.StageItem,
			Locale:  string(locale),
			URL:     link,
			Outcome: outcome,
		})
	}

	e.logger.Info("locale pass finished",
		zap.String("job_id", req.JobID),
		zap.String("locale", string(locale)),
		zap.Int("merged", merged),
	)
	return merged, nil
}

// processItem fetches and parses one item page, extracts the record, merges
// it, and on a newly created product runs the image pipeline.
func (e *Engine) processItem(ctx context.Context, jobID string, locale catalog.Locale, link string) (bool, error) {
	res, err := e.fetcher.Fetch(ctx, catalog.FetchRequest{URL: link})
	if err != nil {
		return false, fmt.Errorf("fetch item: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return false, fmt.Errorf("parse item: %w", err)
	}

	record, ok := extract.Product(doc, locale)
	if !ok {
		return false, errors.New("no product identity on page")
	}

	product, created, err := e.merger.Merge(ctx, locale, link, record)
	if err != nil {
		return false, fmt.Errorf("merge item: %w", err)
	}

	if created {
		urls := extract.ImageURLs(doc)
		if len(urls) > 0 {
			stored := e.images.Load(ctx, product.ID, urls)
			e.emit(progress.Event{
				JobID:   jobID,
				TS:      time.Now().UTC(),
				Stage:   progress.StageImage,
				Locale:  string(locale),
				URL:     link,
				Outcome: progress.OutcomeStored,
				Count:   int64(stored),
			})
		}
	}
	return created, nil
}

func (e *Engine) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
