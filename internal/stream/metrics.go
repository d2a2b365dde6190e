// Package stream provides metrics for dashboard WebSocket connections.
package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricDashboardSubscribes   = "dashboard_ws_subscribes_total"
	MetricDashboardUnsubscribes = "dashboard_ws_unsubscribes_total"
	MetricDashboardConnections  = "dashboard_ws_connections"
	MetricRefreshNotices        = "dashboard_refresh_notices_total"
)

// Metrics contains Prometheus metrics for the dashboard refresh hub.
// All operations are thread-safe.
type Metrics struct {
	subscribes     prometheus.Counter
	unsubscribes   prometheus.Counter
	connections    prometheus.Gauge
	refreshNotices prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		subscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDashboardSubscribes,
			Help: "Total number of dashboard WebSocket subscriptions",
		}),
		unsubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDashboardUnsubscribes,
			Help: "Total number of dashboard WebSocket disconnects",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricDashboardConnections,
			Help: "Current number of connected dashboard WebSocket clients",
		}),
		refreshNotices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshNotices,
			Help: "Total number of refresh notices delivered to dashboard clients",
		}),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.subscribes,
		m.unsubscribes,
		m.connections,
		m.refreshNotices,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncSubscribe records a new dashboard subscription.
func (m *Metrics) IncSubscribe() {
	m.subscribes.Inc()
	m.connections.Inc()
}

// IncUnsubscribe records a dashboard disconnect.
func (m *Metrics) IncUnsubscribe() {
	m.unsubscribes.Inc()
	m.connections.Dec()
}

// IncRefreshNotices records refresh notices delivered to clients.
func (m *Metrics) IncRefreshNotices(n int) {
	m.refreshNotices.Add(float64(n))
}
