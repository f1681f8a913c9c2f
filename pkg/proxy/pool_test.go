package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPool(entries []string, strategy Strategy, maxFailures int) *Pool {
	return NewPool(entries, Options{
		Strategy:    strategy,
		MaxFailures: maxFailures,
		Log:         zerolog.Nop(),
	})
}

func TestRoundRobinOrder(t *testing.T) {
	pool := newTestPool([]string{"http://a:1", "http://b:2", "http://c:3"}, RoundRobin, 3)
	want := []string{"http://a:1", "http://b:2", "http://c:3", "http://a:1"}
	for i, w := range want {
		pr, err := pool.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if pr.URL != w {
			t.Fatalf("draw %d = %s, want %s", i, pr.URL, w)
		}
	}
}

func TestFallbackSticksUntilFailure(t *testing.T) {
	pool := newTestPool([]string{"http://a:1", "http://b:2"}, Fallback, 1)
	first, err := pool.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	again, _ := pool.Next()
	if again != first {
		t.Fatal("fallback strategy switched proxy without a failure")
	}
	pool.ReportFailure(first)
	next, err := pool.Next()
	if err != nil {
		t.Fatalf("next after failure: %v", err)
	}
	if next == first {
		t.Fatal("fallback strategy kept unhealthy proxy")
	}
}

func TestUnhealthyThreshold(t *testing.T) {
	pool := newTestPool([]string{"http://a:1"}, RoundRobin, 3)
	pr, _ := pool.Next()
	pool.ReportFailure(pr)
	pool.ReportFailure(pr)
	if pool.HealthyCount() != 1 {
		t.Fatal("proxy unhealthy before reaching max failures")
	}
	pool.ReportFailure(pr)
	if pool.HealthyCount() != 0 {
		t.Fatal("proxy still healthy after max consecutive failures")
	}
	if _, err := pool.Next(); err != ErrNoHealthyProxies {
		t.Fatalf("expected ErrNoHealthyProxies, got %v", err)
	}
	// A success on another path clears the streak.
	pool.ResetAll()
	pr, _ = pool.Next()
	pool.ReportFailure(pr)
	pool.ReportSuccess(pr, time.Second)
	pool.ReportFailure(pr)
	pool.ReportFailure(pr)
	if pool.HealthyCount() != 1 {
		t.Fatal("success did not reset the consecutive failure count")
	}
}

func TestEWMAResponseTime(t *testing.T) {
	pool := newTestPool([]string{"http://a:1"}, RoundRobin, 3)
	pr, _ := pool.Next()
	pool.ReportSuccess(pr, 100*time.Millisecond)
	if pr.AvgResponse != 100*time.Millisecond {
		t.Fatalf("first sample avg = %v", pr.AvgResponse)
	}
	pool.ReportSuccess(pr, 200*time.Millisecond)
	want := time.Duration(0.9*float64(100*time.Millisecond) + 0.1*float64(200*time.Millisecond))
	if pr.AvgResponse != want {
		t.Fatalf("avg = %v, want %v", pr.AvgResponse, want)
	}
}

func TestNeedsRefreshBoundary(t *testing.T) {
	pool := newTestPool([]string{"http://a:1", "http://b:2", "http://c:3", "http://d:4"}, RoundRobin, 1)
	if pool.NeedsRefresh() {
		t.Fatal("fresh pool needs refresh")
	}
	// Knock out proxies until fewer than half remain healthy.
	pr, _ := pool.Next()
	pool.ReportFailure(pr)
	pr, _ = pool.Next()
	pool.ReportFailure(pr)
	if pool.NeedsRefresh() {
		t.Fatal("2 of 4 healthy should not trigger refresh")
	}
	pr, _ = pool.Next()
	pool.ReportFailure(pr)
	if !pool.NeedsRefresh() {
		t.Fatal("1 of 4 healthy should trigger refresh")
	}
}

func TestRefreshFromProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("http://x:1\nhttp://y:2, z:3\n"))
	}))
	defer srv.Close()

	pool := NewPool([]string{"http://old:1"}, Options{
		RefreshURL: srv.URL,
		Log:        zerolog.Nop(),
	})
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pool.Count() != 3 {
		t.Fatalf("pool size after refresh = %d, want 3", pool.Count())
	}
	stats := pool.AllStats()
	if stats[2].URL != "http://z:3" {
		t.Fatalf("bare entry not normalized: %q", stats[2].URL)
	}
}

func TestRefreshKeepsProviderCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh1:1\nfresh2:2\n"))
	}))
	defer srv.Close()

	pool := NewPool([]string{"old:1"}, Options{
		RefreshURL: srv.URL,
		Username:   "user",
		Password:   "pw",
		Log:        zerolog.Nop(),
	})
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	stats := pool.AllStats()
	if len(stats) != 2 {
		t.Fatalf("pool size after refresh = %d, want 2", len(stats))
	}
	// Bare entries from the provider get the configured credentials,
	// after refresh just like at construction.
	for _, s := range stats {
		if !strings.Contains(s.URL, "user:pw@") {
			t.Fatalf("refreshed proxy lost credentials: %q", s.URL)
		}
	}
}

func TestRefreshWithoutEndpointResets(t *testing.T) {
	pool := newTestPool([]string{"http://a:1"}, RoundRobin, 1)
	pr, _ := pool.Next()
	pool.ReportFailure(pr)
	if pool.HealthyCount() != 0 {
		t.Fatal("setup: proxy should be unhealthy")
	}
	if err := pool.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pool.HealthyCount() != 1 {
		t.Fatal("refresh without endpoint did not reset health")
	}
}

func TestFormatProxyURL(t *testing.T) {
	tests := []struct {
		entry, user, pass, want string
	}{
		{"http://user:pw@h:1", "x", "y", "http://user:pw@h:1"},
		{"h:1", "", "", "http://h:1"},
		{"h:1", "user", "pw", "http://user:pw@h:1"},
		{"  ", "u", "p", ""},
	}
	for _, tc := range tests {
		if got := FormatProxyURL(tc.entry, tc.user, tc.pass); got != tc.want {
			t.Fatalf("FormatProxyURL(%q) = %q, want %q", tc.entry, got, tc.want)
		}
	}
}
