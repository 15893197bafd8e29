package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded on processed groups and calls.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

type marketMetrics struct {
	groups *prometheus.CounterVec
	calls  *prometheus.CounterVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to
// record transaction-group processing activity.
func MarketMetrics() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			groups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dp",
				Subsystem: "market",
				Name:      "groups_total",
				Help:      "Total atomic transaction groups processed, segmented by outcome.",
			}, []string{"outcome"}),
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dp",
				Subsystem: "market",
				Name:      "calls_total",
				Help:      "Total application calls processed, segmented by app kind, method and outcome.",
			}, []string{"app", "method", "outcome"}),
		}
		prometheus.MustRegister(
			marketRegistry.groups,
			marketRegistry.calls,
		)
	})
	return marketRegistry
}

// ObserveGroup records the outcome of one processed group.
func (m *marketMetrics) ObserveGroup(outcome string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(outcome).Inc()
}

// ObserveCall records the outcome of one application call.
func (m *marketMetrics) ObserveCall(app, method, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(app, method, outcome).Inc()
}
