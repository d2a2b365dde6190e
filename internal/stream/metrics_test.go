package stream

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	m.IncSubscribe()
	m.IncRefreshNotices(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	expectedNames := map[string]bool{
		MetricDashboardSubscribes:   false,
		MetricDashboardUnsubscribes: false,
		MetricDashboardConnections:  false,
		MetricRefreshNotices:        false,
	}
	for _, family := range families {
		if _, ok := expectedNames[family.GetName()]; ok {
			expectedNames[family.GetName()] = true
		}
	}
	for name, found := range expectedNames {
		if !found {
			t.Errorf("metric %s not found in gathered metrics", name)
		}
	}
}

func TestMetrics_Register_DuplicateFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("first Register() returned error: %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected error registering duplicate collectors")
	}
}

func TestMetrics_ConnectionGauge(t *testing.T) {
	m := NewMetrics()

	m.IncSubscribe()
	m.IncSubscribe()
	m.IncUnsubscribe()

	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("expected 1 active connection, got %v", got)
	}
	if got := testutil.ToFloat64(m.subscribes); got != 2 {
		t.Errorf("expected 2 subscribes, got %v", got)
	}
	if got := testutil.ToFloat64(m.unsubscribes); got != 1 {
		t.Errorf("expected 1 unsubscribe, got %v", got)
	}
}

func TestHubWithMetrics_TracksLifecycle(t *testing.T) {
	m := NewMetrics()
	hub := NewHubWithMetrics(m)

	// Subscribe/Unsubscribe without a real conn still exercises the counters.
	hub.Subscribe("com_acme", nil)
	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("expected 1 active connection after subscribe, got %v", got)
	}

	hub.Unsubscribe(nil)
	if got := testutil.ToFloat64(m.connections); got != 0 {
		t.Errorf("expected 0 active connections after unsubscribe, got %v", got)
	}
}
