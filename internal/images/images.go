// Package images downloads and persists detail-page images for newly created
// products. Individual failures shrink the stored set but never fail the
// surrounding crawl.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// Loader fetches image payloads through the policy-paced fetcher and persists
// each product's surviving set in one batch.
type Loader struct {
	fetcher  catalog.Fetcher
	policy   catalog.Policy
	products store.ProductStore
	logger   *zap.Logger
}

// NewLoader constructs a Loader over the shared fetcher and product store.
func NewLoader(fetcher catalog.Fetcher, policy catalog.Policy, products store.ProductStore, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{fetcher: fetcher, policy: policy, products: products, logger: logger}
}

// Load downloads each image URL in extraction order, pausing between
// downloads but not before the first, and persists every decodable payload
// in a single batch. A skipped image leaves a gap at its order index. The
// batch write failing is logged and swallowed; the product row stands.
// Returns the number of images stored.
func (l *Loader) Load(ctx context.Context, productID int64, imageURLs []string) int {
	var batch []catalog.ProductImage
	for i, url := range imageURLs {
		if i > 0 {
			if err := l.policy.PauseImage(ctx); err != nil {
				l.logger.Warn("image pause canceled",
					zap.Int64("product_id", productID),
					zap.Error(err),
				)
				break
			}
		}
		data, err := l.download(ctx, url)
		if err != nil {
			l.logger.Warn("image skipped",
				zap.Int64("product_id", productID),
				zap.String("url", url),
				zap.Error(err),
			)
			metrics.ObserveImage(string(progress.OutcomeSkipped))
			continue
		}
		batch = append(batch, catalog.ProductImage{ProductID: productID, Data: data, Order: i})
	}
	if len(batch) == 0 {
		return 0
	}

	if err := l.products.AddImages(ctx, productID, batch); err != nil {
		l.logger.Error("image batch not saved",
			zap.Int64("product_id", productID),
			zap.Int("images", len(batch)),
			zap.Error(err),
		)
		return 0
	}
	for range batch {
		metrics.ObserveImage(string(progress.OutcomeStored))
	}
	l.logger.Debug("images saved",
		zap.Int64("product_id", productID),
		zap.Int("count", len(batch)),
	)
	return len(batch)
}

// download fetches one image and verifies the payload decodes as gif, jpeg,
// or png before it is accepted.
func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	res, err := l.fetcher.Fetch(ctx, catalog.FetchRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(res.Body)); err != nil {
		return nil, fmt.Errorf("verify image: %w", err)
	}
	return res.Body, nil
}
