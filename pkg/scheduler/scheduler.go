// Package scheduler drives repeated scans: per-source query URLs, city
// searches, interval gating, fan-out to the notification queue and the
// periodic duplicate sweep.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
	"github.com/huurscout/huurscout/pkg/metrics"
	"github.com/huurscout/huurscout/pkg/proxy"
	"github.com/huurscout/huurscout/pkg/scrape"
	"github.com/huurscout/huurscout/pkg/store"
)

const (
	duplicateThreshold = 0.8
	// Duplicate sweeps also run on their own schedule so a long scan
	// interval does not starve them.
	sweepSchedule = "0 */6 * * *"
)

// Fetcher is the page loader the scheduler drives. *fetch.Fetcher
// satisfies it; tests substitute canned responses.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Deps wires the scheduler's collaborators.
type Deps struct {
	Fetch    Fetcher
	Registry *scrape.Registry
	DB       *store.Database
	// Enqueue fans one stored listing out to matching users. Defaults
	// to the queue store's match statement.
	Enqueue func(ctx context.Context, propertyID int64) error
	Pool    *proxy.Pool
	Metrics *metrics.Metrics
	Cfg     *config.Config
	Log     zerolog.Logger
	Now     func() time.Time
}

// Service runs scan cycles until stopped.
type Service struct {
	deps Deps
	log  zerolog.Logger
	cron *cron.Cron
}

// New builds a Service, filling optional deps with defaults.
func New(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Registry == nil {
		deps.Registry = scrape.DefaultRegistry()
	}
	if deps.Enqueue == nil && deps.DB != nil {
		queue := deps.DB.Queue
		deps.Enqueue = func(ctx context.Context, propertyID int64) error {
			_, err := queue.EnqueueMatches(ctx, propertyID)
			return err
		}
	}
	return &Service{
		deps: deps,
		log:  deps.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Run loops scan cycles, waiting the configured interval between them.
// It returns when the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.startSweepCron(ctx)
	defer s.stopSweepCron()

	interval := time.Duration(s.deps.Cfg.Scan.IntervalSecs) * time.Second
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		s.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		timer.Reset(interval)
	}
}

// RunOnce executes one full scan cycle.
func (s *Service) RunOnce(ctx context.Context) {
	cycleID := xid.New().String()
	log := s.log.With().Str("cycle_id", cycleID).Logger()
	start := s.deps.Now()
	log.Info().Strs("sources", s.deps.Cfg.Scan.Sources).Msg("Starting scan cycle")

	for _, name := range s.deps.Cfg.Scan.Sources {
		if ctx.Err() != nil {
			return
		}
		scraper, err := s.deps.Registry.Get(name)
		if err != nil {
			log.Error().Err(err).Str("source", name).Msg("Skipping unknown source")
			continue
		}
		if !s.deps.Cfg.Scan.SkipQueryURLs {
			s.scanQueryURLs(ctx, log, scraper)
		}
		if !s.deps.Cfg.Scan.SkipCities {
			s.scanCities(ctx, log, scraper)
		}
	}

	s.SweepDuplicates(ctx)
	s.refreshProxies(ctx, log)
	log.Info().Dur("took", s.deps.Now().Sub(start)).Msg("Scan cycle finished")
}

// scanQueryURLs walks one source's enabled query URLs in id order,
// applying the first-scan and pagination stop rules.
func (s *Service) scanQueryURLs(ctx context.Context, log zerolog.Logger, scraper scrape.Scraper) {
	source := scraper.Name()
	urls, err := s.deps.DB.QueryURLs.ListEnabled(ctx, source)
	if err != nil {
		log.Error().Err(err).Str("source", source).Msg("Listing query URLs failed")
		return
	}
	firstScan := true
	for _, q := range urls {
		if ctx.Err() != nil {
			return
		}
		key := fmt.Sprintf("query_url_%d", q.ID)
		if s.intervalGated(ctx, source, key) {
			continue
		}
		city := s.cityForQueryURL(q.URL)
		res, err := s.scanPage(ctx, log, scraper, key, q.URL, q.Method, city)
		if setErr := s.deps.DB.QueryURLs.SetLastScan(ctx, q.ID, s.deps.Now()); setErr != nil {
			log.Error().Err(setErr).Int64("query_url", q.ID).Msg("Stamping query URL failed")
		}
		if err != nil {
			log.Error().Err(err).Str("source", source).Str("url", q.URL).Msg("Query URL scan failed")
			continue
		}
		if firstScan {
			if res.total == 0 {
				// No listings on the primary page usually means the
				// portal changed its markup.
				log.Warn().Str("source", source).Str("url", q.URL).Msg("Source looks broken, skipping its remaining URLs")
				return
			}
			if res.newCount == 0 {
				log.Debug().Str("source", source).Msg("Source exhausted, skipping its remaining URLs")
				return
			}
		} else if res.newCount == 0 && res.total > 0 {
			log.Debug().Str("source", source).Msg("Source exhausted")
			return
		}
		if scraper.StopAfterNoResult() || s.deps.Cfg.Scan.StopAfterNoResult {
			if res.finalURL != "" && res.finalURL != q.URL {
				// Pararius redirects past-the-end pages back to page 1.
				log.Debug().Str("source", source).Str("final_url", res.finalURL).Msg("Pagination redirect, stopping")
				return
			}
			if res.total == 0 {
				return
			}
		}
		firstScan = false
	}
}

// scanCities runs one search per configured city, gated per pair.
func (s *Service) scanCities(ctx context.Context, log zerolog.Logger, scraper scrape.Scraper) {
	source := scraper.Name()
	for _, city := range s.deps.Cfg.Scan.Cities {
		if ctx.Err() != nil {
			return
		}
		key := strings.ToLower(strings.TrimSpace(city))
		if s.intervalGated(ctx, source, key) {
			continue
		}
		url := scraper.BuildSearchURL(city, s.deps.Cfg.Scan.Days)
		if _, err := s.scanPage(ctx, log, scraper, key, url, "", listing.NormalizeCity(city)); err != nil {
			log.Error().Err(err).Str("source", source).Str("city", city).Msg("City scan failed")
		}
	}
}

type scanResult struct {
	total    int
	newCount int
	finalURL string
}

// scanPage fetches and parses one search page, stores its listings and
// records scan history. History is written for failed attempts too,
// with zero counts.
func (s *Service) scanPage(ctx context.Context, log zerolog.Logger, scraper scrape.Scraper, key, url, method, city string) (scanResult, error) {
	source := scraper.Name()
	start := s.deps.Now()
	if s.deps.Metrics != nil {
		s.deps.Metrics.Scans.WithLabelValues(source).Inc()
	}

	var res scanResult
	page, err := s.deps.Fetch.Fetch(ctx, fetch.Request{URL: url, Method: method})
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.FetchFailures.WithLabelValues("fetch").Inc()
		}
		s.writeHistory(ctx, log, source, key, url, res, start)
		return res, err
	}
	res.finalURL = page.FinalURL

	listings, err := scraper.ParseListings(page)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.FetchFailures.WithLabelValues("parse").Inc()
		}
		s.writeHistory(ctx, log, source, key, url, res, start)
		return res, err
	}
	if limit := s.deps.Cfg.Scan.MaxResults; limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}
	res.total = len(listings)

	for _, l := range listings {
		if l.City == "" {
			l.City = city
		}
		l.DateScraped = s.deps.Now().UTC()
		if err := l.Validate(); err != nil {
			log.Debug().Err(err).Str("source", source).Msg("Dropping invalid listing")
			res.total--
			continue
		}
		isNew, id, err := s.deps.DB.Properties.Upsert(ctx, l)
		if err != nil {
			log.Error().Err(err).Str("source", source).Str("url", l.URL).Msg("Storing listing failed")
			continue
		}
		if !isNew {
			continue
		}
		res.newCount++
		if s.deps.Enqueue != nil {
			if err := s.deps.Enqueue(ctx, id); err != nil {
				log.Error().Err(err).Int64("property_id", id).Msg("Queueing matches failed")
			}
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Listings.WithLabelValues(source, "found").Add(float64(res.total))
		s.deps.Metrics.Listings.WithLabelValues(source, "new").Add(float64(res.newCount))
	}
	s.writeHistory(ctx, log, source, key, url, res, start)
	log.Info().Str("source", source).Str("key", key).
		Int("total", res.total).Int("new", res.newCount).Msg("Scan done")
	return res, nil
}

func (s *Service) writeHistory(ctx context.Context, log zerolog.Logger, source, key, url string, res scanResult, start time.Time) {
	err := s.deps.DB.ScanHistory.Update(ctx, source, key, url, res.newCount, res.total, s.deps.Now().Sub(start))
	if err != nil {
		log.Error().Err(err).Str("source", source).Str("key", key).Msg("Writing scan history failed")
	}
}

// intervalGated reports whether the (source, key) pair was scanned too
// recently. Lookup errors fail open so a history problem never stalls
// scanning.
func (s *Service) intervalGated(ctx context.Context, source, key string) bool {
	last, err := s.deps.DB.ScanHistory.LastScanTime(ctx, source, key)
	if err != nil || last.IsZero() {
		return false
	}
	gap := time.Duration(s.deps.Cfg.MinInterval(source)) * time.Second
	return s.deps.Now().Before(last.Add(gap))
}

// cityForQueryURL maps an operator URL back to a city for listings that
// do not carry one: substring match against the configured cities, then
// fuzzy match on the URL path segments, else "unknown".
func (s *Service) cityForQueryURL(url string) string {
	lower := strings.ToLower(url)
	for _, city := range s.deps.Cfg.Scan.Cities {
		slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "-")
		if slug != "" && strings.Contains(lower, slug) {
			return listing.NormalizeCity(city)
		}
	}
	for _, segment := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == '/' || r == '?' || r == '&' || r == '='
	}) {
		if city, ok := listing.SuggestCity(segment, s.deps.Cfg.Scan.Cities); ok {
			return listing.NormalizeCity(city)
		}
	}
	return "unknown"
}

// SweepDuplicates records cross-source duplicate pairs from the hash
// candidates, scored on price and area similarity.
func (s *Service) SweepDuplicates(ctx context.Context) {
	cands, err := s.deps.DB.Properties.FindDuplicates(ctx, duplicateThreshold)
	if err != nil {
		s.log.Error().Err(err).Msg("Duplicate sweep failed")
		return
	}
	for _, c := range cands {
		score := listing.SimilarityScore(c.Price1, c.Price2, c.Area1, c.Area2, -1)
		err := s.deps.DB.Duplicates.Record(ctx, c.Hash, c.Source1, c.SourceID1, c.Source2, c.SourceID2, score)
		if err != nil {
			s.log.Error().Err(err).Str("hash", c.Hash).Msg("Recording duplicate failed")
		}
	}
	if len(cands) > 0 {
		s.log.Info().Int("pairs", len(cands)).Msg("Duplicate sweep recorded pairs")
	}
}

// refreshProxies refetches the pool when more than half its proxies
// turned unhealthy.
func (s *Service) refreshProxies(ctx context.Context, log zerolog.Logger) {
	pool := s.deps.Pool
	if pool == nil || !pool.NeedsRefresh() {
		return
	}
	log.Warn().Int("healthy", pool.HealthyCount()).Int("total", pool.Count()).Msg("Refreshing proxy pool")
	if err := pool.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Proxy refresh failed, resetting health")
		pool.ResetAll()
	}
}

func (s *Service) startSweepCron(ctx context.Context) {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(sweepSchedule, func() { s.SweepDuplicates(ctx) })
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduling duplicate sweep failed")
		return
	}
	s.cron.Start()
}

func (s *Service) stopSweepCron() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
