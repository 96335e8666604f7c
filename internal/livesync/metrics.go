package livesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for live subscriptions.
type Metrics struct {
	SubscriptionsOpened *prometheus.CounterVec
	SubscriptionErrors  *prometheus.CounterVec
	StaleDeliveries     *prometheus.CounterVec
	ViewUpdates         *prometheus.CounterVec
	UpstreamActive      *prometheus.GaugeVec
	SharedListeners     *prometheus.GaugeVec
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubscriptionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_livesync_subscriptions_opened_total",
			Help: "Live subscriptions established by topic",
		}, []string{"topic"}),
		SubscriptionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_livesync_subscription_errors_total",
			Help: "Failed live subscription attempts by topic",
		}, []string{"topic"}),
		StaleDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_livesync_stale_deliveries_total",
			Help: "Deliveries dropped because their view generation was torn down",
		}, []string{"view"}),
		ViewUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetguard_livesync_view_updates_total",
			Help: "Snapshots applied to a view by topic",
		}, []string{"view", "topic"}),
		UpstreamActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetguard_livesync_upstream_active",
			Help: "Open upstream subscriptions held by the shared manager",
		}, []string{"topic"}),
		SharedListeners: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetguard_livesync_shared_listeners",
			Help: "Listeners attached to each shared upstream subscription",
		}, []string{"topic"}),
	}
}

func (m *Metrics) IncOpened(topic string) {
	if m != nil {
		m.SubscriptionsOpened.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) IncError(topic string) {
	if m != nil {
		m.SubscriptionErrors.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) IncStale(view string) {
	if m != nil {
		m.StaleDeliveries.WithLabelValues(view).Inc()
	}
}

func (m *Metrics) IncViewUpdate(view, topic string) {
	if m != nil {
		m.ViewUpdates.WithLabelValues(view, topic).Inc()
	}
}

func (m *Metrics) SetUpstream(topic string, open bool) {
	if m != nil {
		v := 0.0
		if open {
			v = 1
		}
		m.UpstreamActive.WithLabelValues(topic).Set(v)
	}
}

func (m *Metrics) SetListeners(topic string, n int) {
	if m != nil {
		m.SharedListeners.WithLabelValues(topic).Set(float64(n))
	}
}
