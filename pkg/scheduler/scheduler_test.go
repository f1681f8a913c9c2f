package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
	"github.com/huurscout/huurscout/pkg/scrape"
	"github.com/huurscout/huurscout/pkg/store/storetest"
)

type fakeFetcher struct {
	calls []string
	errs  map[string]error
	// finalURLs maps a request URL to a different landing URL, for
	// redirect scenarios.
	finalURLs map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Response, error) {
	f.calls = append(f.calls, req.URL)
	if err := f.errs[req.URL]; err != nil {
		return nil, err
	}
	final := req.URL
	if u, ok := f.finalURLs[req.URL]; ok {
		final = u
	}
	return &fetch.Response{URL: req.URL, FinalURL: final, Status: 200, Text: req.URL}, nil
}

// fakeScraper yields canned listings keyed by the fetched URL.
type fakeScraper struct {
	name      string
	stopAfter bool
	pages     map[string][]*listing.Listing
}

func (s *fakeScraper) Name() string            { return s.name }
func (s *fakeScraper) StopAfterNoResult() bool { return s.stopAfter }
func (s *fakeScraper) BuildSearchURL(city string, _ int) string {
	return "https://" + s.name + ".test/" + city
}
func (s *fakeScraper) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	out := s.pages[page.URL]
	for _, l := range out {
		l.Normalize()
	}
	return out, nil
}

func mkListing(source, id string) *listing.Listing {
	return &listing.Listing{
		Source:       source,
		SourceID:     id,
		URL:          "https://" + source + ".test/detail/" + id,
		Address:      "Straat " + id,
		City:         "AMSTERDAM",
		PriceNumeric: 1500,
	}
}

func testConfig(sources ...string) *config.Config {
	cfg := (&config.Config{}).WithDefaults()
	cfg.Scan.Sources = sources
	cfg.Scan.Cities = []string{"amsterdam"}
	cfg.Scan.SkipCities = true
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, ff *fakeFetcher, scrapers ...*fakeScraper) (*Service, []int64) {
	t.Helper()
	reg := scrape.NewRegistry()
	for _, s := range scrapers {
		sc := s
		reg.Register(sc.name, func() scrape.Scraper { return sc })
	}
	db := storetest.Open(t)
	var enqueued []int64
	svc := New(Deps{
		Fetch:    ff,
		Registry: reg,
		DB:       db,
		Enqueue: func(_ context.Context, id int64) error {
			enqueued = append(enqueued, id)
			return nil
		},
		Cfg: cfg,
		Log: zerolog.Nop(),
	})
	return svc, enqueued
}

func addQueryURLs(t *testing.T, svc *Service, source string, urls ...string) {
	t.Helper()
	for _, u := range urls {
		if _, err := svc.deps.DB.QueryURLs.Add(context.Background(), source, u, "GET", true, ""); err != nil {
			t.Fatalf("add query url: %v", err)
		}
	}
}

func TestQueryScanStopsOnRedirect(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{
		finalURLs: map[string]string{
			// Past-the-end page bounces back to page 1.
			"https://p.test/q?page=2": "https://p.test/q?page=1",
		},
	}
	sc := &fakeScraper{
		name:      "p",
		stopAfter: true,
		pages: map[string][]*listing.Listing{
			"https://p.test/q?page=1": {mkListing("p", "a"), mkListing("p", "b")},
			"https://p.test/q?page=2": {mkListing("p", "c")},
			"https://p.test/q?page=3": {mkListing("p", "d")},
		},
	}
	svc, _ := newTestService(t, testConfig("p"), ff, sc)
	addQueryURLs(t, svc, "p", "https://p.test/q?page=1", "https://p.test/q?page=2", "https://p.test/q?page=3")

	svc.RunOnce(ctx)

	// Page 3 is never requested: page 2's redirect ends pagination.
	if len(ff.calls) != 2 {
		t.Fatalf("fetched %v, want pages 1 and 2 only", ff.calls)
	}
}

func TestGlobalStopPolicyAppliesToEverySource(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{
		finalURLs: map[string]string{
			"https://f.test/q?page=2": "https://f.test/q?page=1",
		},
	}
	// The adapter itself does not opt into the stop policy.
	sc := &fakeScraper{
		name:      "f",
		stopAfter: false,
		pages: map[string][]*listing.Listing{
			"https://f.test/q?page=1": {mkListing("f", "a"), mkListing("f", "b")},
			"https://f.test/q?page=2": {mkListing("f", "c")},
			"https://f.test/q?page=3": {mkListing("f", "d")},
		},
	}
	cfg := testConfig("f")
	cfg.Scan.StopAfterNoResult = true
	svc, _ := newTestService(t, cfg, ff, sc)
	addQueryURLs(t, svc, "f", "https://f.test/q?page=1", "https://f.test/q?page=2", "https://f.test/q?page=3")

	svc.RunOnce(ctx)

	if len(ff.calls) != 2 {
		t.Fatalf("fetched %v, want pagination to stop after the page-2 redirect", ff.calls)
	}
}

func TestQueryScanBrokenSourceSkipsRest(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{}
	sc := &fakeScraper{name: "f", pages: map[string][]*listing.Listing{}}
	svc, _ := newTestService(t, testConfig("f"), ff, sc)
	addQueryURLs(t, svc, "f", "https://f.test/q1", "https://f.test/q2")

	svc.RunOnce(ctx)

	if len(ff.calls) != 1 {
		t.Fatalf("fetched %v, want the first URL only", ff.calls)
	}
	// The failed attempt still leaves a zero-count history row.
	rec, err := svc.deps.DB.ScanHistory.Recent(ctx, 10)
	if err != nil || len(rec) != 1 {
		t.Fatalf("history = %v err = %v", rec, err)
	}
	if rec[0].Total != 0 || rec[0].NewCount != 0 {
		t.Fatalf("history row = %+v, want zero counts", rec[0])
	}
}

func TestQueryScanExhaustedSkipsRest(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{}
	sc := &fakeScraper{
		name: "f",
		pages: map[string][]*listing.Listing{
			"https://f.test/q1": {mkListing("f", "a")},
			"https://f.test/q2": {mkListing("f", "b")},
		},
	}
	svc, _ := newTestService(t, testConfig("f"), ff, sc)
	addQueryURLs(t, svc, "f", "https://f.test/q1", "https://f.test/q2")

	// First cycle stores listing a; scraping again with nothing new
	// must stop at the first URL.
	svc.RunOnce(ctx)
	cfg := svc.deps.Cfg
	cfg.Scan.IntervalSecs = 0
	cfg.Scan.SiteMinIntervals = map[string]int{}
	svc.deps.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	calls := len(ff.calls)
	svc.RunOnce(ctx)

	if got := len(ff.calls) - calls; got != 1 {
		t.Fatalf("second cycle fetched %d pages, want 1", got)
	}
}

func TestIntervalGate(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{}
	sc := &fakeScraper{
		name: "f",
		pages: map[string][]*listing.Listing{
			"https://f.test/q1": {mkListing("f", "a")},
		},
	}
	svc, _ := newTestService(t, testConfig("f"), ff, sc)
	addQueryURLs(t, svc, "f", "https://f.test/q1")

	svc.RunOnce(ctx)
	// A second cycle right away is inside the minimum interval.
	svc.RunOnce(ctx)

	if len(ff.calls) != 1 {
		t.Fatalf("fetched %v, want one fetch across both cycles", ff.calls)
	}
}

func TestFetchFailureIsolatedPerSource(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{
		errs: map[string]error{
			"https://f.test/q1": fmt.Errorf("connection reset"),
		},
	}
	broken := &fakeScraper{name: "f", pages: map[string][]*listing.Listing{}}
	healthy := &fakeScraper{
		name: "p",
		pages: map[string][]*listing.Listing{
			"https://p.test/q1": {mkListing("p", "a")},
		},
	}
	svc, _ := newTestService(t, testConfig("f", "p"), ff, broken, healthy)
	addQueryURLs(t, svc, "f", "https://f.test/q1")
	addQueryURLs(t, svc, "p", "https://p.test/q1")

	svc.RunOnce(ctx)

	if len(ff.calls) != 2 {
		t.Fatalf("fetched %v, want both sources attempted", ff.calls)
	}
	count, err := svc.deps.DB.Properties.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("stored %d listings (err %v), want 1 from the healthy source", count, err)
	}
	// The failure still produced a history row with zero counts.
	last, err := svc.deps.DB.ScanHistory.LastScanTime(ctx, "f", "query_url_1")
	if err != nil || last.IsZero() {
		t.Fatalf("no history for failed scan: %v", err)
	}
}

func TestNewListingsAreEnqueued(t *testing.T) {
	ctx := context.Background()
	ff := &fakeFetcher{}
	sc := &fakeScraper{
		name: "f",
		pages: map[string][]*listing.Listing{
			"https://f.test/amsterdam": {mkListing("f", "a"), mkListing("f", "b")},
		},
	}
	cfg := testConfig("f")
	cfg.Scan.SkipCities = false
	cfg.Scan.SkipQueryURLs = true

	reg := scrape.NewRegistry()
	reg.Register(sc.name, func() scrape.Scraper { return sc })
	db := storetest.Open(t)
	var enqueued []int64
	svc := New(Deps{
		Fetch:    ff,
		Registry: reg,
		DB:       db,
		Enqueue: func(_ context.Context, id int64) error {
			enqueued = append(enqueued, id)
			return nil
		},
		Cfg: cfg,
		Log: zerolog.Nop(),
	})

	svc.RunOnce(ctx)
	if len(enqueued) != 2 {
		t.Fatalf("enqueued = %v, want both new listings", enqueued)
	}

	// Re-scanning the same page enqueues nothing.
	svc.deps.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	svc.RunOnce(ctx)
	if len(enqueued) != 2 {
		t.Fatalf("enqueued = %v after rescan, want unchanged", enqueued)
	}
}

func TestCityForQueryURL(t *testing.T) {
	cfg := testConfig("f")
	cfg.Scan.Cities = []string{"amsterdam", "den haag"}
	svc, _ := newTestService(t, cfg, &fakeFetcher{}, &fakeScraper{name: "f"})

	for _, tc := range []struct {
		url  string
		want string
	}{
		{"https://f.test/huur/amsterdam?page=2", "AMSTERDAM"},
		{"https://f.test/huur/den-haag", "DEN HAAG"},
		{"https://f.test/huur/amsterdm", "AMSTERDAM"}, // fuzzy
		{"https://f.test/zoeken?q=abc", "unknown"},
	} {
		if got := svc.cityForQueryURL(tc.url); got != tc.want {
			t.Fatalf("cityForQueryURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
