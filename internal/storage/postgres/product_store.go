package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// ProductStore implements store.ProductStore on top of Postgres.
type ProductStore struct {
	db querier
}

// NewProductStore wraps a pool (or mock) in a ProductStore.
func NewProductStore(db querier) *ProductStore {
	return &ProductStore{db: db}
}

// GetByIdentity loads a product by its (display name, color) key.
func (s *ProductStore) GetByIdentity(ctx context.Context, displayName, colorVariant string) (catalog.Product, error) {
	query := `
		SELECT id, source_global_url, source_kr_url, product_name, color,
		       price, reward_points, description, material, size,
		       is_sold_out, indexed, scraped_at, indexed_at
		FROM products
		WHERE product_name = $1 AND color = $2;
	`
	var p catalog.Product
	err := s.db.QueryRow(ctx, query, displayName, colorVariant).Scan(
		&p.ID,
		&p.SourceGlobalURL,
		&p.SourceKRURL,
		&p.DisplayName,
		&p.ColorVariant,
		&p.Price,
		&p.RewardPoints,
		&p.Description,
		&p.Material,
		&p.Size,
		&p.SoldOut,
		&p.Indexed,
		&p.ScrapedAt,
		&p.IndexedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, store.ErrNotFound
		}
		return catalog.Product{}, fmt.Errorf("get product %q/%q: %w", displayName, colorVariant, err)
	}
	return p, nil
}

// Create inserts a new product row and returns its generated ID.
func (s *ProductStore) Create(ctx context.Context, product catalog.Product) (int64, error) {
	query := `
		INSERT INTO products (
			source_global_url, source_kr_url, product_name, color,
			price, reward_points, description, material, size,
			is_sold_out, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id;
	`
	var id int64
	err := s.db.QueryRow(ctx, query,
		product.SourceGlobalURL,
		product.SourceKRURL,
		product.DisplayName,
		product.ColorVariant,
		product.Price,
		product.RewardPoints,
		product.Description,
		product.Material,
		product.Size,
		product.SoldOut,
		product.ScrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product %q/%q: %w", product.DisplayName, product.ColorVariant, err)
	}
	return id, nil
}

// Update overwrites the source URLs, locale attributes, and sold-out flag
// of an existing row. Identity, the indexed flag, and scraped_at keep
// their stored values.
func (s *ProductStore) Update(ctx context.Context, product catalog.Product) error {
	query := `
		UPDATE products
		SET source_global_url = $1, source_kr_url = $2,
		    price = $3, reward_points = $4, description = $5,
		    material = $6, size = $7, is_sold_out = $8
		WHERE id = $9;
	`
	tag, err := s.db.Exec(ctx, query,
		product.SourceGlobalURL,
		product.SourceKRURL,
		product.Price,
		product.RewardPoints,
		product.Description,
		product.Material,
		product.Size,
		product.SoldOut,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("update product %d: %w", product.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddImages stores a product's image set in a single transaction so a
// partial batch never becomes visible.
func (s *ProductStore) AddImages(ctx context.Context, productID int64, images []catalog.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin image batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `INSERT INTO product_images (product_id, image_data, image_order) VALUES ($1, $2, $3);`
	for _, img := range images {
		if _, err := tx.Exec(ctx, query, productID, img.Data, img.Order); err != nil {
			return fmt.Errorf("insert image %d for product %d: %w", img.Order, productID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit image batch for product %d: %w", productID, err)
	}
	return nil
}

// ListImages returns a product's stored images ordered by extraction
// position.
func (s *ProductStore) ListImages(ctx context.Context, productID int64) ([]catalog.ProductImage, error) {
	query := `
		SELECT id, product_id, image_data, image_order
		FROM product_images
		WHERE product_id = $1
		ORDER BY image_order;
	`
	rows, err := s.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list images for product %d: %w", productID, err)
	}
	defer rows.Close()

	var images []catalog.ProductImage
	for rows.Next() {
		var img catalog.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Data, &img.Order); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read image rows: %w", err)
	}
	return images, nil
}
