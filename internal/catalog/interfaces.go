package catalog

import (
	"context"
	"net/http"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Policy supplies the rotated outbound identity and paces requests.
// Headers mutates shared rotation state; Acquire enforces the per-host
// rate ceiling; Pause and PauseImage sleep a jittered interval and return
// early only on context cancellation.
type Policy interface {
	Headers() http.Header
	Acquire(ctx context.Context, rawURL string) error
	Pause(ctx context.Context) error
	PauseImage(ctx context.Context) error
}

// Notifier informs the downstream indexing service about a finished run.
type Notifier interface {
	ProductsScraped(ctx context.Context, count int) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
