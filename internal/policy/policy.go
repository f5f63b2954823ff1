// Package policy implements the outbound request policy: rotated browser
// identity, jittered pacing, a per-host rate ceiling, and the shared
// request timeout.
package policy

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userAgents is the pool of desktop browser identities the policy rotates
// through. Picked at random on each rotation, not round-robin.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// baseHeaders are sent with every request alongside the rotated User-Agent.
// Accept-Encoding is deliberately absent: net/http negotiates gzip itself
// and decodes transparently only when the header is not set manually.
var baseHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "ko-KR,ko;q=0.8,en-US;q=0.5,en;q=0.3",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Cache-Control":             "max-age=0",
}

// Config holds request policy knobs.
type Config struct {
	// MinDelay/MaxDelay bound the uniform inter-request pause used between
	// listing pages and between item pages.
	MinDelay time.Duration
	MaxDelay time.Duration
	// ImageMinDelay/ImageMaxDelay bound the shorter pause between image
	// downloads.
	ImageMinDelay time.Duration
	ImageMaxDelay time.Duration
	// RotateEvery is the number of requests served between identity swaps.
	RotateEvery int
	// MaxRPS caps the sustained per-host request rate. With sane delay
	// intervals the jitter dominates and the ceiling never binds.
	MaxRPS float64
}

// Policy is the concrete catalog.Policy. All methods are safe for
// concurrent use; rotation state is shared across callers.
type Policy struct {
	cfg Config

	mu        sync.Mutex
	requests  int
	userAgent string
	limiters  map[string]*rate.Limiter
}

// New creates a Policy with an initial random identity.
func New(cfg Config) *Policy {
	if cfg.RotateEvery <= 0 {
		cfg.RotateEvery = 5
	}
	return &Policy{
		cfg:       cfg,
		userAgent: userAgents[rand.Intn(len(userAgents))],
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Headers returns the outbound header set for the next request, swapping
// the User-Agent every RotateEvery calls.
func (p *Policy) Headers() http.Header {
	p.mu.Lock()
	if p.requests%p.cfg.RotateEvery == 0 {
		p.userAgent = userAgents[rand.Intn(len(userAgents))]
	}
	p.requests++
	agent := p.userAgent
	p.mu.Unlock()

	headers := make(http.Header, len(baseHeaders)+1)
	for k, v := range baseHeaders {
		headers.Set(k, v)
	}
	headers.Set("User-Agent", agent)
	return headers
}

// Acquire blocks until the per-host rate ceiling admits a request to
// rawURL, or the context ends.
func (p *Policy) Acquire(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	p.mu.Lock()
	limiter, ok := p.limiters[host]
	if !ok {
		limit := rate.Limit(p.cfg.MaxRPS)
		if p.cfg.MaxRPS <= 0 {
			limit = rate.Inf
		}
		limiter = rate.NewLimiter(limit, 1)
		p.limiters[host] = limiter
	}
	p.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate ceiling wait: %w", err)
	}
	return nil
}

// Pause sleeps a duration drawn uniformly from [MinDelay, MaxDelay].
func (p *Policy) Pause(ctx context.Context) error {
	return p.sleep(ctx, p.cfg.MinDelay, p.cfg.MaxDelay)
}

// PauseImage sleeps a duration drawn uniformly from the shorter
// [ImageMinDelay, ImageMaxDelay] interval.
func (p *Policy) PauseImage(ctx context.Context) error {
	return p.sleep(ctx, p.cfg.ImageMinDelay, p.cfg.ImageMaxDelay)
}

func (p *Policy) sleep(ctx context.Context, minDelay, maxDelay time.Duration) error {
	delay := minDelay
	if spread := maxDelay - minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread) + 1))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
