// Package notify tells the downstream indexing service about finished runs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config controls the HTTP indexer notification.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Indexer posts run results to the indexing service. The notification is
// fire-and-forget: failures are logged and counted but never returned, so
// a dead indexer cannot fail a finished run.
type Indexer struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewIndexer builds an Indexer for the configured endpoint.
func NewIndexer(cfg Config, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Indexer{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// ProductsScraped posts {"products_count": count} to the indexer.
func (i *Indexer) ProductsScraped(ctx context.Context, count int) error {
	payload, err := json.Marshal(struct {
		ProductsCount int `json:"products_count"`
	}{ProductsCount: count})
	if err != nil {
		i.fail(count, zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, bytes.NewReader(payload))
	if err != nil {
		i.fail(count, zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		i.fail(count, zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		i.fail(count, zap.Int("status", resp.StatusCode))
		return nil
	}

	metrics.ObserveNotification("sent")
	i.logger.Info("indexer notified", zap.Int("products_count", count))
	return nil
}

func (i *Indexer) fail(count int, field zap.Field) {
	metrics.ObserveNotification("failed")
	i.logger.Warn("indexer notification failed",
		zap.String("url", i.url),
		zap.Int("products_count", count),
		field,
	)
}
