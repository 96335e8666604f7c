package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the alert queue.
type Metrics struct {
	Pushed   *prometheus.CounterVec
	Filtered *prometheus.CounterVec
	Dropped  prometheus.Counter
	Expired  prometheus.Counter
	Queued   prometheus.Gauge
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_notifications_pushed_total",
			Help: "Notifications queued by severity",
		}, []string{"severity"}),
		Filtered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_notifications_filtered_total",
			Help: "Added documents rejected by their topic predicate",
		}, []string{"topic"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_notifications_dropped_total",
			Help: "Notifications evicted because the queue was full",
		}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetguard_notifications_expired_total",
			Help: "Notifications auto-dismissed after their visible duration",
		}),
		Queued: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetguard_notifications_queued",
			Help: "Notifications currently visible",
		}),
	}
}

func (m *Metrics) IncPushed(severity string) {
	if m != nil {
		m.Pushed.WithLabelValues(severity).Inc()
	}
}

func (m *Metrics) IncFiltered(topic string) {
	if m != nil {
		m.Filtered.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) IncExpired() {
	if m != nil {
		m.Expired.Inc()
	}
}

func (m *Metrics) SetQueued(n int) {
	if m != nil {
		m.Queued.Set(float64(n))
	}
}
