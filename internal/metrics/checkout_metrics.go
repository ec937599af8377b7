package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления для label result.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// CheckoutMetrics содержит метрики корзины, котировок и оформления заказов.
type CheckoutMetrics struct {
	// Оформление
	checkouts        *prometheus.CounterVec
	ordersCreated    *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	checkoutIssues   *prometheus.CounterVec
	inFlight         prometheus.Gauge

	// Корзина и котировки
	cartMutations    *prometheus.CounterVec
	quoteTransitions *prometheus.CounterVec
}

// NewCheckoutMetrics создаёт метрики в registry по умолчанию.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в переданном registry.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkouts_total",
			Help: "Total number of checkout attempts by source and result",
		}, []string{"source", "result"}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_orders_created_total",
			Help: "Total number of vendor orders created by checkout",
		}, []string{"source"}),
		checkoutDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"source"}),
		checkoutIssues: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_issues_total",
			Help: "Total number of validation issues that blocked checkout",
		}, []string{"kind"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_checkouts_in_flight",
			Help: "Number of checkout transactions currently running",
		}),
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_cart_mutations_total",
			Help: "Total number of cart mutations by operation and result",
		}, []string{"operation", "result"}),
		quoteTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_quote_transitions_total",
			Help: "Total number of quote status transitions by target status",
		}, []string{"status"}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// CheckoutStarted отмечает начало оформления и возвращает функцию завершения.
func (m *CheckoutMetrics) CheckoutStarted(source string) func(result string, orders int) {
	if m == nil {
		return func(string, int) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(result string, orders int) {
		m.inFlight.Dec()
		m.checkouts.WithLabelValues(source, result).Inc()
		m.checkoutDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
		if orders > 0 {
			m.ordersCreated.WithLabelValues(source).Add(float64(orders))
		}
	}
}

// RecordIssue учитывает проблему позиции, остановившую оформление.
func (m *CheckoutMetrics) RecordIssue(kind string) {
	if m == nil {
		return
	}
	m.checkoutIssues.WithLabelValues(kind).Inc()
}

// RecordCartMutation учитывает изменение корзины.
func (m *CheckoutMetrics) RecordCartMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.cartMutations.WithLabelValues(operation, result).Inc()
}

// RecordQuoteTransition учитывает переход котировки.
func (m *CheckoutMetrics) RecordQuoteTransition(status string) {
	if m == nil {
		return
	}
	m.quoteTransitions.WithLabelValues(status).Inc()
}
