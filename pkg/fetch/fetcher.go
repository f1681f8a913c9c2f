// Package fetch implements the browser-emulated HTTP client used by all
// scrapers: profile rotation, manual decompression, anti-bot retries
// and an optional proxy pool.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/huurscout/huurscout/pkg/proxy"
)

const refererHistorySize = 5

// Request describes one fetch. Method defaults to GET.
type Request struct {
	URL    string
	Method string
	Body   []byte
	Header http.Header
}

// Response is a fully-read, decoded HTTP response.
type Response struct {
	URL         string
	FinalURL    string
	Status      int
	Header      http.Header
	Body        []byte
	Text        string
	ContentType string
	TookMs      int64
	Profile     string
}

// Options configures a Fetcher.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	MaxRedirects  int
	MaxConcurrent int
	Pool          *proxy.Pool
	Log           zerolog.Logger
	// Transport overrides the base transport, for tests.
	Transport http.RoundTripper
	Sleep     func(context.Context, time.Duration) error
}

// Fetcher performs browser-emulated GETs. A global semaphore caps
// concurrent in-flight requests; the referer history is per instance.
type Fetcher struct {
	opts Options
	sem  *semaphore.Weighted
	log  zerolog.Logger

	mu         sync.Mutex
	history    []string
	profileIdx int
}

// New builds a Fetcher with defaults filled in.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Fetcher{
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:        opts.Log.With().Str("component", "fetcher").Logger(),
		profileIdx: rand.Intn(len(profiles)),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetch performs the request with anti-bot retries. The returned
// Response always has Text decoded to UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	var lastErr error
	rateLimitRetried := false
	blocked := false
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		resp, err := f.attempt(ctx, req, attempt, blocked)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			f.log.Debug().Err(err).Str("url", req.URL).Int("attempt", attempt).Msg("Fetch attempt failed")
			continue
		}
		if resp.Status == http.StatusTooManyRequests && !rateLimitRetried {
			wait := retryAfter(resp.Header)
			f.log.Warn().Str("url", req.URL).Dur("retry_after", wait).Msg("Rate limited, honoring Retry-After")
			if err := f.opts.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			rateLimitRetried = true
			lastErr = &RateLimitedError{RetryAfter: wait}
			attempt--
			continue
		}
		if pattern, hit := detectAntiBot(resp.Status, resp.Text); hit {
			blocked = true
			lastErr = &AntiBotError{Pattern: pattern, Status: resp.Status}
			f.log.Debug().Str("url", req.URL).Int("status", resp.Status).
				Str("pattern", pattern).Int("attempt", attempt).Msg("Anti-bot block, rotating profile")
			continue
		}
		f.pushHistory(resp.FinalURL)
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no attempts made")
	}
	return nil, fmt.Errorf("fetch %s: %w", req.URL, lastErr)
}

// attempt performs a single HTTP exchange with one stable profile.
func (f *Fetcher) attempt(ctx context.Context, req Request, attempt int, addEvasion bool) (*Response, error) {
	profile := f.nextProfile(attempt)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", profile.UserAgent)
	for k, v := range profile.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	if ref := f.lastVisited(); ref != "" {
		httpReq.Header.Set("Referer", ref)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	if addEvasion {
		for _, c := range evasionCookies() {
			httpReq.AddCookie(c)
		}
	}

	client, drawn, err := f.client(attempt)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	took := time.Since(start)
	if err != nil {
		if drawn != nil {
			f.opts.Pool.ReportFailure(drawn)
		}
		return nil, fmt.Errorf("transport: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		if drawn != nil {
			f.opts.Pool.ReportFailure(drawn)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if drawn != nil {
		f.opts.Pool.ReportSuccess(drawn, took)
	}

	decoded, err := decodeBody(httpResp.Header.Get("Content-Encoding"), raw)
	if err != nil || (httpResp.StatusCode == http.StatusOK && !looksLikeText(decoded)) {
		// Some portals mislabel the encoding. Walk every codec over
		// the raw bytes before giving up.
		if out, ok := decodeAny(raw); ok {
			decoded, err = out, nil
		} else if err == nil {
			err = &DecodeError{Encoding: httpResp.Header.Get("Content-Encoding"), BodyLen: len(raw)}
		}
	}
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		URL:         req.URL,
		FinalURL:    finalURL,
		Status:      httpResp.StatusCode,
		Header:      httpResp.Header,
		Body:        decoded,
		Text:        decodeCharset(decoded),
		ContentType: httpResp.Header.Get("Content-Type"),
		TookMs:      took.Milliseconds(),
		Profile:     profile.Name,
	}, nil
}

func (f *Fetcher) client(attempt int) (*http.Client, *proxy.Proxy, error) {
	transport := f.opts.Transport
	var drawn *proxy.Proxy
	if transport == nil {
		t := &http.Transport{DisableCompression: true}
		if f.opts.Pool != nil {
			pr, err := f.opts.Pool.Next()
			if err != nil {
				return nil, nil, fmt.Errorf("draw proxy: %w", err)
			}
			proxyURL, err := url.Parse(pr.URL)
			if err != nil {
				f.opts.Pool.ReportFailure(pr)
				return nil, nil, fmt.Errorf("bad proxy url %q: %w", pr.URL, err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
			drawn = pr
		}
		transport = t
	}
	maxRedirects := f.opts.MaxRedirects
	return &http.Client{
		Transport: transport,
		Timeout:   f.opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}, drawn, nil
}

// nextProfile rotates deterministically across retries and randomizes
// the starting point per fetcher instance.
func (f *Fetcher) nextProfile(attempt int) Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return profiles[(f.profileIdx+attempt)%len(profiles)]
}

func (f *Fetcher) pushHistory(url string) {
	if url == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, url)
	if len(f.history) > refererHistorySize {
		f.history = f.history[len(f.history)-refererHistorySize:]
	}
}

func (f *Fetcher) lastVisited() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return ""
	}
	return f.history[len(f.history)-1]
}

// History returns a copy of the referer chain, for diagnostics.
func (f *Fetcher) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

func retryAfter(h http.Header) time.Duration {
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second
}
