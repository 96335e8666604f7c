package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for dashboard computation and caching.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheErrors   prometheus.Counter
	BreakerOpen   prometheus.Gauge
	LoadDuration  prometheus.Histogram
	BoardRebuilds prometheus.Counter
	BoardLatency  prometheus.Histogram
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_dashboard_cache_hits_total",
			Help: "Dashboards served from cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_dashboard_cache_misses_total",
			Help: "Dashboards computed because the cache had no entry",
		}),
		CacheErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_dashboard_cache_errors_total",
			Help: "Failed primary cache calls",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetguard_dashboard_cache_breaker_open",
			Help: "1 while the dashboard cache circuit is open",
		}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetguard_dashboard_load_duration_seconds",
			Help:    "Time to read every collection for a one-shot dashboard",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		BoardRebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_dashboard_board_rebuilds_total",
			Help: "Live board engine rebuilds",
		}),
		BoardLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetguard_dashboard_board_rebuild_seconds",
			Help:    "Time to decode and index one live board update",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) IncCacheError() {
	if m != nil {
		m.CacheErrors.Inc()
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m != nil {
		v := 0.0
		if open {
			v = 1
		}
		m.BreakerOpen.Set(v)
	}
}

func (m *Metrics) ObserveLoad(d time.Duration) {
	if m != nil {
		m.LoadDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRebuild(d time.Duration) {
	if m != nil {
		m.BoardRebuilds.Inc()
		m.BoardLatency.Observe(d.Seconds())
	}
}
