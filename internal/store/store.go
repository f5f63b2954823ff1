// Package store declares the persistence interfaces for the catalog.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ProductStore persists products and their image sets.
type ProductStore interface {
	// GetByIdentity loads a product by its (display name, color) key or
	// returns ErrNotFound.
	GetByIdentity(ctx context.Context, displayName, colorVariant string) (catalog.Product, error)
	// Create inserts a new product and returns its ID.
	Create(ctx context.Context, product catalog.Product) (int64, error)
	// Update overwrites an existing product row by ID.
	Update(ctx context.Context, product catalog.Product) error
	// AddImages persists a product's image set in one transaction.
	AddImages(ctx context.Context, productID int64, images []catalog.ProductImage) error
	// ListImages returns a product's images ordered by their order index.
	ListImages(ctx context.Context, productID int64) ([]catalog.ProductImage, error)
}

// JobStore persists scraping job lifecycle records. The Mark methods
// implement the pending -> running -> {completed, failed} transitions;
// callers never skip running.
type JobStore interface {
	// Create inserts a job in pending state.
	Create(ctx context.Context, job catalog.Job) error
	// MarkRunning transitions a pending job to running.
	MarkRunning(ctx context.Context, jobID string) error
	// MarkCompleted transitions a running job to completed with its final
	// product count and completion timestamp.
	MarkCompleted(ctx context.Context, jobID string, productsCount int, completedAt time.Time) error
	// MarkFailed transitions a running job to failed; the count is not
	// touched.
	MarkFailed(ctx context.Context, jobID string, completedAt time.Time) error
	// Get loads one job or returns ErrNotFound.
	Get(ctx context.Context, jobID string) (catalog.Job, error)
	// List returns the most recent jobs, newest first.
	List(ctx context.Context, limit int) ([]catalog.Job, error)
	// GetRunning returns the currently running job, or ErrNotFound when
	// no job is active.
	GetRunning(ctx context.Context) (catalog.Job, error)
}
