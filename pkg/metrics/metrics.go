// Package metrics exposes the Prometheus instrumentation shared by the
// scraper and notifier processes.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics bundles every counter and gauge on one private registry so
// tests can construct isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	// Scans counts completed scan attempts per source, including
	// failed ones.
	Scans *prometheus.CounterVec
	// Listings counts parsed listings per source, kind is found or new.
	Listings *prometheus.CounterVec
	// FetchFailures counts failed page loads, kind is fetch or parse.
	FetchFailures *prometheus.CounterVec
	// Notifications counts delivery outcomes per terminal status.
	Notifications *prometheus.CounterVec
	// QueueDepth mirrors the notification queue size per status.
	QueueDepth *prometheus.GaugeVec
}

// New builds a Metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		Registry: reg,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huurscout_scans_total",
			Help: "Completed scan attempts per source.",
		}, []string{"source"}),
		Listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huurscout_listings_total",
			Help: "Parsed listings per source.",
		}, []string{"source", "kind"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huurscout_fetch_failures_total",
			Help: "Failed page loads per failure kind.",
		}, []string{"kind"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huurscout_notifications_total",
			Help: "Notification delivery outcomes.",
		}, []string{"status"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "huurscout_queue_depth",
			Help: "Notification queue size per status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Scans, m.Listings, m.FetchFailures, m.Notifications, m.QueueDepth)
	return m
}

// Serve runs the /metrics listener until the context is cancelled. A
// nil receiver or empty address disables the listener.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	if m == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
