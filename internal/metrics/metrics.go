// Package metrics exposes Prometheus collectors for the catalog crawler
// service: HTTP API request metrics plus crawl-side counters for listing
// pages, item pages, images, and indexer notifications.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	listingPagesTotal          *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	imagesTotal                *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_listing_pages_total",
				Help: "Total listing pages fetched, labeled by locale.",
			},
			[]string{"locale"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Total item pages processed, labeled by locale and outcome.",
			},
			[]string{"locale", "outcome"},
		)

		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_images_total",
				Help: "Total detail images processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_notifications_total",
				Help: "Total indexer notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveListingPage increments the listing page counter for the given locale.
func ObserveListingPage(locale string) {
	listingPagesTotal.WithLabelValues(locale).Inc()
}

// ObserveItem increments the item counter for the given locale and outcome.
func ObserveItem(locale, outcome string) {
	itemsTotal.WithLabelValues(locale, outcome).Inc()
}

// ObserveImage increments the image counter for the given outcome.
func ObserveImage(outcome string) {
	imagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification increments the notification counter for the given outcome.
func ObserveNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}
