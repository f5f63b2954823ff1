package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// TestExpandWalksUntilEmptyPage verifies pagination stops on the first page
// without item markers and collects every link seen before it.
func TestExpandWalksUntilEmptyPage(t *testing.T) {
	t.Parallel()

	seed := "https://ucmeyewear.earth/category/all/87/"
	fetcher := newStubFetcher()
	fetcher.pages[seed+"?page=1"] = listingPage(
		"/product/a1.html", "/product/a2.html", "/product/a3.html", "/product/a4.html", "/product/a5.html",
	)
	fetcher.pages[seed+"?page=2"] = listingPage("/product/b1.html", "/product/b2.html", "/product/b3.html")
	fetcher.pages[seed+"?page=3"] = listingPage()
	policy := &stubPausePolicy{}

	frontier := NewFrontier(fetcher, policy, zap.NewNop(), 0)
	links, err := frontier.Expand(context.Background(), catalog.LocaleGlobal, seed)

	require.NoError(t, err)
	require.Len(t, links, 8)
	require.Equal(t, []string{
		seed + "?page=1",
		seed + "?page=2",
		seed + "?page=3",
	}, fetcher.Fetched())
	require.Equal(t, "https://ucmeyewear.earth/product/a1.html", links[0])
	require.Equal(t, "https://ucmeyewear.earth/product/b3.html", links[7])
	require.Equal(t, 2, policy.Pauses())
}

// TestExpandKeepsQuerySeparator verifies seeds that already carry a query
// string are paginated with &page=N.
func TestExpandKeepsQuerySeparator(t *testing.T) {
	t.Parallel()

	seed := "https://ucmeyewear.com/product/list.html?cate_no=87"
	fetcher := newStubFetcher()
	fetcher.pages[seed+"&page=1"] = listingPage("/product/kr1.html")
	fetcher.pages[seed+"&page=2"] = listingPage()

	frontier := NewFrontier(fetcher, &stubPausePolicy{}, zap.NewNop(), 0)
	links, err := frontier.Expand(context.Background(), catalog.LocaleKR, seed)

	require.NoError(t, err)
	require.Equal(t, []string{"https://ucmeyewear.com/product/kr1.html"}, links)
	require.Equal(t, seed+"&page=1", fetcher.Fetched()[0])
}

// TestExpandAbsolutizesAndDedupes covers the three href shapes plus
// order-preserving dedup, and verifies a page of pure duplicates does not
// stop pagination.
func TestExpandAbsolutizesAndDedupes(t *testing.T) {
	t.Parallel()

	seed := "https://ucmeyewear.earth/category/all/87/"
	fetcher := newStubFetcher()
	fetcher.pages[seed+"?page=1"] = listingPage(
		"/product/a.html",
		"https://cdn.example.com/direct.html",
		"product/b.html",
		"/product/a.html",
	)
	fetcher.pages[seed+"?page=2"] = listingPage("/product/a.html")
	fetcher.pages[seed+"?page=3"] = listingPage()

	frontier := NewFrontier(fetcher, &stubPausePolicy{}, zap.NewNop(), 0)
	links, err := frontier.Expand(context.Background(), catalog.LocaleGlobal, seed)

	require.NoError(t, err)
	require.Equal(t, []string{
		"https://ucmeyewear.earth/product/a.html",
		"https://cdn.example.com/direct.html",
		"https://ucmeyewear.earth/product/b.html",
	}, links)
	require.Len(t, fetcher.Fetched(), 3)
}

// TestExpandHonorsPageCeiling verifies the safety valve bounds a listing that
// never runs out of markers, without reporting an error.
func TestExpandHonorsPageCeiling(t *testing.T) {
	t.Parallel()

	seed := "https://ucmeyewear.earth/category/all/87/"
	fetcher := newStubFetcher()
	for page := 1; page <= 5; page++ {
		fetcher.pages[fmt.Sprintf("%s?page=%d", seed, page)] = listingPage("/product/loop.html")
	}

	frontier := NewFrontier(fetcher, &stubPausePolicy{}, zap.NewNop(), 3)
	links, err := frontier.Expand(context.Background(), catalog.LocaleGlobal, seed)

	require.NoError(t, err)
	require.Len(t, fetcher.Fetched(), 3)
	require.Equal(t, []string{"https://ucmeyewear.earth/product/loop.html"}, links)
}

// TestExpandPropagatesFetchError verifies a transport failure mid-walk aborts
// the expansion.
func TestExpandPropagatesFetchError(t *testing.T) {
	t.Parallel()

	seed := "https://ucmeyewear.earth/category/all/87/"
	fetcher := newStubFetcher()
	fetcher.pages[seed+"?page=1"] = listingPage("/product/a.html")
	fetcher.errs[seed+"?page=2"] = errors.New("connection reset")

	frontier := NewFrontier(fetcher, &stubPausePolicy{}, zap.NewNop(), 0)
	links, err := frontier.Expand(context.Background(), catalog.LocaleGlobal, seed)

	require.ErrorContains(t, err, "listing page 2")
	require.Nil(t, links)
}

// listingPage renders a minimal Cafe24-style listing fragment with one
// product cell per href.
func listingPage(hrefs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="prdList">`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<li><div class="prdImg"><a href="%s"><img src="/thumb.jpg"/></a></div></li>`, href)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	errs    map[string]error
	fetched []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
	}
}

func (s *stubFetcher) Fetch(_ context.Context, req catalog.FetchRequest) (catalog.FetchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, req.URL)
	if err, ok := s.errs[req.URL]; ok {
		return catalog.FetchResponse{}, err
	}
	body, ok := s.pages[req.URL]
	if !ok {
		return catalog.FetchResponse{}, fmt.Errorf("no fixture for %s", req.URL)
	}
	return catalog.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (s *stubFetcher) Fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

type stubPausePolicy struct {
	mu          sync.Mutex
	pauses      int
	imagePauses int
}

func (s *stubPausePolicy) Headers() http.Header { return http.Header{} }

func (s *stubPausePolicy) Acquire(context.Context, string) error { return nil }

func (s *stubPausePolicy) Pause(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	return nil
}

func (s *stubPausePolicy) PauseImage(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imagePauses++
	return nil
}

func (s *stubPausePolicy) Pauses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses
}
