package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// breakerMetrics are created on first use so breakers built in tests or
// tooling never need a registry. MustRegisterMetrics exposes them.
type breakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	opened      *prometheus.CounterVec
}

var (
	metricsMu sync.Mutex
	metrics   *breakerMetrics
)

func newBreakerMetrics(namespace string) *breakerMetrics {
	return &breakerMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Breaker position per target: 0 closed, 1 open, 2 half-open.",
		}, []string{"target"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker state changes per target.",
		}, []string{"target", "from", "to"}),
		opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "opened_total",
			Help:      "Times a breaker tripped open.",
		}, []string{"target"}),
	}
}

func current() *breakerMetrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metrics == nil {
		metrics = newBreakerMetrics("")
	}
	return metrics
}

// MustRegisterMetrics replaces the breaker collectors with namespaced ones and
// registers them. Call it once at startup before building breakers.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := newBreakerMetrics(namespace)
	reg.MustRegister(m.state, m.transitions, m.opened)
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
}

func breakerState() *prometheus.GaugeVec         { return current().state }
func breakerTransitions() *prometheus.CounterVec { return current().transitions }
func breakerOpened() *prometheus.CounterVec      { return current().opened }

// StateGauge exposes the state gauge for inspection.
func StateGauge() *prometheus.GaugeVec { return breakerState() }

// TransitionCounter exposes the transition counter for inspection.
func TransitionCounter() *prometheus.CounterVec { return breakerTransitions() }

// OpenedCounter exposes the trip counter for inspection.
func OpenedCounter() *prometheus.CounterVec { return breakerOpened() }
