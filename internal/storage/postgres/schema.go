package postgres

import (
	"context"
	"fmt"
)

// schemaStatements are applied in order at startup. Each statement is
// idempotent so repeated boots converge on the same schema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id                BIGSERIAL PRIMARY KEY,
		source_global_url TEXT NOT NULL DEFAULT '',
		source_kr_url     TEXT NOT NULL DEFAULT '',
		product_name      TEXT NOT NULL,
		color             TEXT NOT NULL DEFAULT '',
		price             JSONB NOT NULL DEFAULT '{"global": "", "kr": ""}',
		reward_points     JSONB NOT NULL DEFAULT '{"global": "", "kr": ""}',
		description       JSONB NOT NULL DEFAULT '{"global": "", "kr": ""}',
		material          JSONB NOT NULL DEFAULT '{"global": "", "kr": ""}',
		size              JSONB NOT NULL DEFAULT '{"global": "", "kr": ""}',
		is_sold_out       BOOLEAN NOT NULL DEFAULT FALSE,
		indexed           BOOLEAN NOT NULL DEFAULT FALSE,
		scraped_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		indexed_at        TIMESTAMPTZ,
		UNIQUE (product_name, color)
	)`,
	`CREATE TABLE IF NOT EXISTS product_images (
		id          BIGSERIAL PRIMARY KEY,
		product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		image_data  BYTEA NOT NULL,
		image_order INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_images_product_id ON product_images (product_id)`,
	`CREATE TABLE IF NOT EXISTS scraping_jobs (
		id             UUID PRIMARY KEY,
		target_url     TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		products_count INT NOT NULL DEFAULT 0,
		started_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at   TIMESTAMPTZ
	)`,
}

// EnsureSchema creates the catalog tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db querier) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
