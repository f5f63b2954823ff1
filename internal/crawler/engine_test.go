package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/progress"
)

const (
	testGlobalSeed = "https://ucmeyewear.earth/category/all/87/"
	testKRSeed     = "https://ucmeyewear.com/product/list.html?cate_no=87"
)

// itemPage renders a minimal detail page carrying just enough for identity
// extraction, plus optional swiper images.
func itemPage(name, color string, imageSrcs ...string) string {
	images := ""
	if len(imageSrcs) > 0 {
		var imgs string
		for _, src := range imageSrcs {
			imgs += fmt.Sprintf(`<img class="ThumbImage" src="%s"/>`, src)
		}
		images = `<div class="xans-element- xans-product xans-product-addimage swiper-wrapper">` + imgs + `</div>`
	}
	return fmt.Sprintf(`<html><head><meta name="keywords" content="%s - %s,UNCOMMON"/></head>
<body><strong id="span_product_price_text">KRW 280,000</strong>%s</body></html>`, name, color, images)
}

// engineFixture wires an engine over stubs with a two-item global listing and
// a one-item kr listing.
func engineFixture() (*Engine, *stubFetcher, *stubMerger, *stubImages, *stubEmitter) {
	fetcher := newStubFetcher()
	fetcher.pages[testGlobalSeed+"?page=1"] = listingPage("/product/g1.html", "/product/g2.html")
	fetcher.pages[testGlobalSeed+"?page=2"] = listingPage()
	fetcher.pages[testKRSeed+"&page=1"] = listingPage("/product/k1.html")
	fetcher.pages[testKRSeed+"&page=2"] = listingPage()
	fetcher.pages["https://ucmeyewear.earth/product/g1.html"] = itemPage("Milan", "Matte Black", "//img.ucm.example/g1-a.jpg")
	fetcher.pages["https://ucmeyewear.earth/product/g2.html"] = itemPage("Rex", "Smoke")
	fetcher.pages["https://ucmeyewear.com/product/k1.html"] = itemPage("Milan", "Matte Black")

	merger := newStubMerger()
	merger.createOn["https://ucmeyewear.earth/product/g1.html"] = true
	images := &stubImages{}
	emitter := &stubEmitter{}
	engine := NewEngine(
		Config{GlobalURL: testGlobalSeed, KRURL: testKRSeed, MaxPages: 10},
		fetcher, &stubPausePolicy{}, merger, images, emitter, zap.NewNop(),
	)
	return engine, fetcher, merger, images, emitter
}

// TestRunMergesBothLocales drives a full two-pass run and checks merge order,
// locales, and that only created products reach the image loader.
func TestRunMergesBothLocales(t *testing.T) {
	t.Parallel()

	engine, _, merger, images, emitter := engineFixture()

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-1"})

	require.NoError(t, err)
	require.Equal(t, 3, count)

	calls := merger.Calls()
	require.Len(t, calls, 3)
	require.Equal(t, catalog.LocaleGlobal, calls[0].locale)
	require.Equal(t, catalog.LocaleGlobal, calls[1].locale)
	require.Equal(t, catalog.LocaleKR, calls[2].locale)
	require.Equal(t, "Milan", calls[0].record.DisplayName)
	require.Equal(t, "Matte Black", calls[0].record.ColorVariant)

	loaded := images.Calls()
	require.Len(t, loaded, 1)
	for _, urls := range loaded {
		require.Equal(t, []string{"https://img.ucm.example/g1-a.jpg"}, urls)
	}

	events := emitter.Events()
	require.Equal(t, 2, countStage(events, progress.StageListing))
	require.Equal(t, 3, countStage(events, progress.StageItem))
	require.Equal(t, 1, countStage(events, progress.StageImage))
}

// TestRunDryRunCountsLinksOnly verifies a zero cap fetches no item pages and
// reports the harvested link count.
func TestRunDryRunCountsLinksOnly(t *testing.T) {
	t.Parallel()

	engine, fetcher, merger, _, _ := engineFixture()
	limit := 0

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-2", MaxProducts: &limit})

	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Empty(t, merger.Calls())
	for _, url := range fetcher.Fetched() {
		require.Contains(t, url, "page=", "dry run must only touch listing pages, fetched %s", url)
	}
}

// TestRunAppliesCapPerLocale verifies a positive cap truncates each locale's
// harvest independently.
func TestRunAppliesCapPerLocale(t *testing.T) {
	t.Parallel()

	engine, _, merger, _, _ := engineFixture()
	limit := 1

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-3", MaxProducts: &limit})

	require.NoError(t, err)
	require.Equal(t, 2, count)
	calls := merger.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "https://ucmeyewear.earth/product/g1.html", calls[0].pageURL)
	require.Equal(t, "https://ucmeyewear.com/product/k1.html", calls[1].pageURL)
}

// TestRunSkipsFailedItems verifies an item-level fetch failure is logged and
// skipped without failing the pass.
func TestRunSkipsFailedItems(t *testing.T) {
	t.Parallel()

	engine, fetcher, merger, _, emitter := engineFixture()
	fetcher.errs["https://ucmeyewear.earth/product/g2.html"] = errors.New("status 500")

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-4"})

	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, merger.Calls(), 2)

	skipped := eventsWithOutcome(emitter.Events(), progress.OutcomeSkipped)
	require.Len(t, skipped, 1)
	require.Contains(t, skipped[0].Note, "status 500")
}

// TestRunSkipsPagesWithoutIdentity verifies extraction misses are skipped.
func TestRunSkipsPagesWithoutIdentity(t *testing.T) {
	t.Parallel()

	engine, fetcher, merger, _, emitter := engineFixture()
	fetcher.pages["https://ucmeyewear.earth/product/g2.html"] = `<html><body>maintenance</body></html>`

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-5"})

	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, merger.Calls(), 2)

	skipped := eventsWithOutcome(emitter.Events(), progress.OutcomeSkipped)
	require.Len(t, skipped, 1)
	require.Contains(t, skipped[0].Note, "identity")
}

// TestRunJoinsPassErrors verifies a failed global pass still lets the kr pass
// run, and the joined error surfaces the failing pass.
func TestRunJoinsPassErrors(t *testing.T) {
	t.Parallel()

	engine, fetcher, merger, _, _ := engineFixture()
	fetcher.errs[testGlobalSeed+"?page=1"] = errors.New("connection refused")

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-6"})

	require.ErrorContains(t, err, "global pass")
	require.Equal(t, 1, count)
	calls := merger.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, catalog.LocaleKR, calls[0].locale)
}

// TestRunOverridesGlobalSeed verifies a request target URL replaces the
// configured global seed while the kr seed stays fixed.
func TestRunOverridesGlobalSeed(t *testing.T) {
	t.Parallel()

	engine, fetcher, merger, _, _ := engineFixture()
	alt := "https://staging.ucmeyewear.earth/category/all/87/"
	fetcher.pages[alt+"?page=1"] = listingPage("/product/alt1.html")
	fetcher.pages[alt+"?page=2"] = listingPage()
	fetcher.pages["https://staging.ucmeyewear.earth/product/alt1.html"] = itemPage("Staging", "Clear")

	count, err := engine.Run(context.Background(), catalog.CrawlRequest{JobID: "job-7", TargetURL: alt})

	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, alt+"?page=1", fetcher.Fetched()[0])
	require.Equal(t, "Staging", merger.Calls()[0].record.DisplayName)
}

func countStage(events []progress.Event, stage progress.Stage) int {
	n := 0
	for _, evt := range events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func eventsWithOutcome(events []progress.Event, outcome progress.Outcome) []progress.Event {
	var out []progress.Event
	for _, evt := range events {
		if evt.Outcome == outcome {
			out = append(out, evt)
		}
	}
	return out
}

type mergeCall struct {
	locale  catalog.Locale
	pageURL string
	record  catalog.Extraction
}

type stubMerger struct {
	mu       sync.Mutex
	calls    []mergeCall
	createOn map[string]bool
	err      error
	nextID   int64
}

func newStubMerger() *stubMerger {
	return &stubMerger{createOn: make(map[string]bool)}
}

func (s *stubMerger) Merge(_ context.Context, locale catalog.Locale, pageURL string, record catalog.Extraction) (catalog.Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return catalog.Product{}, false, s.err
	}
	s.calls = append(s.calls, mergeCall{locale: locale, pageURL: pageURL, record: record})
	s.nextID++
	return catalog.Product{
		ID:           s.nextID,
		DisplayName:  record.DisplayName,
		ColorVariant: record.ColorVariant,
	}, s.createOn[pageURL], nil
}

func (s *stubMerger) Calls() []mergeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mergeCall(nil), s.calls...)
}

type stubImages struct {
	mu    sync.Mutex
	calls map[int64][]string
}

func (s *stubImages) Load(_ context.Context, productID int64, urls []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[int64][]string)
	}
	s.calls[productID] = append([]string(nil), urls...)
	return len(urls)
}

func (s *stubImages) Calls() map[int64][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]string, len(s.calls))
	for id, urls := range s.calls {
		out[id] = append([]string(nil), urls...)
	}
	return out
}

type stubEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *stubEmitter) Emit(evt progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *stubEmitter) Events() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.Event(nil), s.events...)
}
