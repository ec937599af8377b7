package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := vec.WithLabelValues(labels...).Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestCheckoutStarted(t *testing.T) {
	m := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	done := m.CheckoutStarted("cart")
	gauge := &dto.Metric{}
	if err := m.inFlight.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 1 {
		t.Fatalf("expected 1 checkout in flight, got %v", gauge.GetGauge().GetValue())
	}

	done(ResultSuccess, 2)

	if got := counterValue(t, m.checkouts, "cart", ResultSuccess); got != 1 {
		t.Fatalf("expected 1 successful checkout, got %v", got)
	}
	if got := counterValue(t, m.ordersCreated, "cart"); got != 2 {
		t.Fatalf("expected 2 orders, got %v", got)
	}
	if err := m.inFlight.Write(gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 0 {
		t.Fatalf("expected no checkouts in flight, got %v", gauge.GetGauge().GetValue())
	}
}

func TestRecordCartMutationAndIssues(t *testing.T) {
	m := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCartMutation("add", nil)
	m.RecordCartMutation("add", errors.New("boom"))
	m.RecordIssue("price_drift")
	m.RecordQuoteTransition("sent")

	if got := counterValue(t, m.cartMutations, "add", ResultSuccess); got != 1 {
		t.Fatalf("expected 1 successful add, got %v", got)
	}
	if got := counterValue(t, m.cartMutations, "add", ResultError); got != 1 {
		t.Fatalf("expected 1 failed add, got %v", got)
	}
	if got := counterValue(t, m.checkoutIssues, "price_drift"); got != 1 {
		t.Fatalf("expected 1 issue, got %v", got)
	}
	if got := counterValue(t, m.quoteTransitions, "sent"); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestNewCheckoutMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(reg)
	second := NewCheckoutMetricsWithRegisterer(reg)

	if first.checkouts != second.checkouts {
		t.Fatal("expected the same collector on repeated registration")
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *CheckoutMetrics
	m.CheckoutStarted("cart")(ResultError, 0)
	m.RecordIssue("x")
	m.RecordCartMutation("add", nil)
	m.RecordQuoteTransition("sent")
}
