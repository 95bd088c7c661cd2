package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts persisted orders by pricing mode.
	OrdersCreatedTotal *prometheus.CounterVec
	// OrderCodeCollisionsTotal counts order code claims rejected as duplicates.
	OrderCodeCollisionsTotal prometheus.Counter
	// OrderCodeExhaustedTotal counts orders that ran out of code attempts.
	OrderCodeExhaustedTotal prometheus.Counter
	// ComboAppliedTotal counts combos applied by the matcher.
	ComboAppliedTotal *prometheus.CounterVec
	// OrderNotificationsTotal tracks notification delivery outcomes per sink.
	OrderNotificationsTotal *prometheus.CounterVec
	// NotificationLatency records delivery latency in milliseconds.
	NotificationLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersCreatedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of persisted orders by pricing mode.",
		}, []string{"pricing_mode"}))
		OrderCodeCollisionsTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_code_collisions_total",
			Help:      "Number of order code candidates rejected because they were already taken.",
		}))
		OrderCodeExhaustedTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_code_exhausted_total",
			Help:      "Number of orders that failed after exhausting order code attempts.",
		}))
		ComboAppliedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "combo_applied_total",
			Help:      "Count of combos applied to orders.",
		}, []string{"combo"}))
		OrderNotificationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Count of order notification outcomes by sink.",
		}, []string{"sink", "result"}))
		NotificationLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_notification_duration_ms",
			Help:      "Latency for order notification delivery in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"sink"}))
	})
}

// ObserveOrderCreated increments the created counter when metrics are registered.
func ObserveOrderCreated(mode string) {
	if OrdersCreatedTotal != nil {
		OrdersCreatedTotal.WithLabelValues(mode).Inc()
	}
}

// ObserveCodeCollision records a rejected order code candidate.
func ObserveCodeCollision() {
	if OrderCodeCollisionsTotal != nil {
		OrderCodeCollisionsTotal.Inc()
	}
}

// ObserveCodeExhausted records an allocation that ran out of attempts.
func ObserveCodeExhausted() {
	if OrderCodeExhaustedTotal != nil {
		OrderCodeExhaustedTotal.Inc()
	}
}

// ObserveComboApplied records a combo application.
func ObserveComboApplied(comboID string) {
	if ComboAppliedTotal != nil {
		ComboAppliedTotal.WithLabelValues(comboID).Inc()
	}
}

// ObserveNotification records a notification outcome and its latency.
func ObserveNotification(sink, result string, millis float64) {
	if OrderNotificationsTotal != nil {
		OrderNotificationsTotal.WithLabelValues(sink, result).Inc()
	}
	if NotificationLatency != nil {
		NotificationLatency.WithLabelValues(sink).Observe(millis)
	}
}
