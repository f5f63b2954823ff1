// Package merge reconciles per-locale extraction records into shared product
// rows. Writes are locale-scoped: the other locale's values survive every
// create and update untouched.
package merge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// Merger looks up products by their (display name, color) identity and
// applies locale-scoped writes through the product store.
type Merger struct {
	products store.ProductStore
	clock    catalog.Clock
	logger   *zap.Logger
}

// New constructs a Merger over the given product store.
func New(products store.ProductStore, clock catalog.Clock, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{products: products, clock: clock, logger: logger}
}

// Merge applies one extraction record. An unknown identity is created with
// both locale slots seeded empty and only the current locale filled; a known
// identity has only the current locale's slots overwritten. Sold-out state
// follows the record on both paths. Returns the stored product and whether a
// row was created.
func (m *Merger) Merge(ctx context.Context, locale catalog.Locale, pageURL string, record catalog.Extraction) (catalog.Product, bool, error) {
	existing, err := m.products.GetByIdentity(ctx, record.DisplayName, record.ColorVariant)
	switch {
	case err == nil:
		return m.update(ctx, existing, locale, pageURL, record)
	case errors.Is(err, store.ErrNotFound):
		return m.create(ctx, locale, pageURL, record)
	default:
		return catalog.Product{}, false, fmt.Errorf("lookup product %q/%q: %w", record.DisplayName, record.ColorVariant, err)
	}
}

func (m *Merger) create(ctx context.Context, locale catalog.Locale, pageURL string, record catalog.Extraction) (catalog.Product, bool, error) {
	product := catalog.Product{
		DisplayName:  record.DisplayName,
		ColorVariant: record.ColorVariant,
		ScrapedAt:    m.clock.Now(),
	}
	applyLocale(&product, locale, pageURL, record)

	id, err := m.products.Create(ctx, product)
	if err != nil {
		return catalog.Product{}, false, fmt.Errorf("create product %q/%q: %w", record.DisplayName, record.ColorVariant, err)
	}
	product.ID = id
	m.logger.Debug("product created",
		zap.Int64("id", id),
		zap.String("display_name", product.DisplayName),
		zap.String("color_variant", product.ColorVariant),
		zap.String("locale", string(locale)),
	)
	return product, true, nil
}

// update rewrites only the current locale's slots; scraped_at and the indexed
// flag are left as stored.
func (m *Merger) update(ctx context.Context, existing catalog.Product, locale catalog.Locale, pageURL string, record catalog.Extraction) (catalog.Product, bool, error) {
	applyLocale(&existing, locale, pageURL, record)

	if err := m.products.Update(ctx, existing); err != nil {
		return catalog.Product{}, false, fmt.Errorf("update product %d: %w", existing.ID, err)
	}
	m.logger.Debug("product updated",
		zap.Int64("id", existing.ID),
		zap.String("display_name", existing.DisplayName),
		zap.String("color_variant", existing.ColorVariant),
		zap.String("locale", string(locale)),
	)
	return existing, false, nil
}

// applyLocale writes the record into the given locale's slots only, plus the
// locale-independent sold-out flag.
func applyLocale(p *catalog.Product, locale catalog.Locale, pageURL string, record catalog.Extraction) {
	p.SetSourceURL(locale, pageURL)
	p.Price.Set(locale, record.Price)
	p.RewardPoints.Set(locale, record.RewardPoints)
	p.Description.Set(locale, record.Description)
	p.Material.Set(locale, record.Material)
	p.Size.Set(locale, record.Size)
	p.SoldOut = record.SoldOut
}
