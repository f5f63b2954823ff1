// Package memory provides in-memory store implementations backing tests and
// database-less dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// ProductStore is a mutex-guarded, map-backed store.ProductStore.
type ProductStore struct {
	mu       sync.RWMutex
	nextID   int64
	products map[int64]catalog.Product
	images   map[int64][]catalog.ProductImage
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		products: make(map[int64]catalog.Product),
		images:   make(map[int64][]catalog.ProductImage),
	}
}

// GetByIdentity loads a product by its (display name, color) key.
func (s *ProductStore) GetByIdentity(_ context.Context, displayName, colorVariant string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.DisplayName == displayName && p.ColorVariant == colorVariant {
			return p, nil
		}
	}
	return catalog.Product{}, store.ErrNotFound
}

// Create inserts a new product and returns its assigned ID.
func (s *ProductStore) Create(_ context.Context, product catalog.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.DisplayName == product.DisplayName && p.ColorVariant == product.ColorVariant {
			return 0, fmt.Errorf("product %q/%q already exists", product.DisplayName, product.ColorVariant)
		}
	}
	s.nextID++
	product.ID = s.nextID
	s.products[product.ID] = product
	return product.ID, nil
}

// Update overwrites an existing product row by ID.
func (s *ProductStore) Update(_ context.Context, product catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[product.ID]; !ok {
		return store.ErrNotFound
	}
	s.products[product.ID] = product
	return nil
}

// AddImages appends a product's image batch. Payloads are copied so callers
// may reuse their buffers.
func (s *ProductStore) AddImages(_ context.Context, productID int64, images []catalog.ProductImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return store.ErrNotFound
	}
	existing := s.images[productID]
	for _, img := range images {
		img.ID = int64(len(existing) + 1)
		img.ProductID = productID
		img.Data = append([]byte(nil), img.Data...)
		existing = append(existing, img)
	}
	s.images[productID] = existing
	return nil
}

// ListImages returns a product's images ordered by their order index.
func (s *ProductStore) ListImages(_ context.Context, productID int64) ([]catalog.ProductImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	images := append([]catalog.ProductImage(nil), s.images[productID]...)
	sort.SliceStable(images, func(i, j int) bool { return images[i].Order < images[j].Order })
	return images, nil
}

// All returns every product sorted by ID. Test helper.
func (s *ProductStore) All() []catalog.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
