// Package catalog defines core types shared across the crawler subsystems.
package catalog

import (
	"net/http"
	"time"
)

// Locale identifies one of the two storefront variants of the catalog.
type Locale string

// Locales crawled by the engine, in pass order.
const (
	LocaleGlobal Locale = "global"
	LocaleKR     Locale = "kr"
)

// Locales returns the crawl passes in execution order.
func Locales() []Locale {
	return []Locale{LocaleGlobal, LocaleKR}
}

// LocaleText holds one attribute's value per locale. Both keys are always
// present; the zero value is the seeded empty record.
type LocaleText struct {
	Global string `json:"global"`
	KR     string `json:"kr"`
}

// Get returns the value recorded for locale.
func (t LocaleText) Get(locale Locale) string {
	if locale == LocaleKR {
		return t.KR
	}
	return t.Global
}

// Set overwrites only the given locale's value.
func (t *LocaleText) Set(locale Locale, value string) {
	if locale == LocaleKR {
		t.KR = value
		return
	}
	t.Global = value
}

// Product is the unit of catalog identity, keyed by (display name, color).
type Product struct {
	ID              int64      `json:"id"`
	SourceGlobalURL string     `json:"source_global_url"`
	SourceKRURL     string     `json:"source_kr_url"`
	DisplayName     string     `json:"display_name"`
	ColorVariant    string     `json:"color_variant"`
	Price           LocaleText `json:"price"`
	RewardPoints    LocaleText `json:"reward_points"`
	Description     LocaleText `json:"description"`
	Material        LocaleText `json:"material"`
	Size            LocaleText `json:"size"`
	SoldOut         bool       `json:"sold_out"`
	Indexed         bool       `json:"indexed"`
	ScrapedAt       time.Time  `json:"scraped_at"`
	IndexedAt       *time.Time `json:"indexed_at,omitempty"`
}

// SourceURL returns the item URL recorded for locale.
func (p Product) SourceURL(locale Locale) string {
	if locale == LocaleKR {
		return p.SourceKRURL
	}
	return p.SourceGlobalURL
}

// SetSourceURL overwrites only the given locale's item URL.
func (p *Product) SetSourceURL(locale Locale, url string) {
	if locale == LocaleKR {
		p.SourceKRURL = url
		return
	}
	p.SourceGlobalURL = url
}

// ProductImage is a binary image asset owned by exactly one product.
// Order is the zero-based position in extraction order; gaps where a
// download was skipped are acceptable.
type ProductImage struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Data      []byte `json:"-"`
	Order     int    `json:"image_order"`
}

// Extraction is one locale's structured observation of an item page.
type Extraction struct {
	DisplayName  string
	ColorVariant string
	Price        string
	RewardPoints string
	Description  string
	Material     string
	Size         string
	SoldOut      bool
}

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents one crawl execution.
type Job struct {
	ID            string     `json:"job_id"`
	TargetURL     string     `json:"target_url"`
	Status        JobStatus  `json:"status"`
	ProductsCount int        `json:"products_count"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CrawlRequest carries the trigger parameters into a run. MaxProducts nil
// means unlimited, zero means a link-harvest dry run, N>0 caps each locale
// pass at N items.
type CrawlRequest struct {
	JobID       string
	TargetURL   string
	MaxProducts *int
}

// FetchRequest captures everything needed to fetch one URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
