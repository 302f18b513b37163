package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics records rate limit decisions.
type RateLimitMetrics struct {
	decisions *prometheus.CounterVec
}

// NewRateLimitMetrics creates metrics registered with
// prometheus.DefaultRegisterer.
func NewRateLimitMetrics(namespace string) *RateLimitMetrics {
	return NewRateLimitMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewRateLimitMetricsWithRegisterer creates metrics with a custom
// registerer. Useful for tests where a private registry is preferred.
func NewRateLimitMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *RateLimitMetrics {
	if namespace == "" {
		namespace = "apidispatch"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &RateLimitMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by outcome",
			},
			[]string{"outcome"},
		),
	}

	// Register, ignoring duplicates. The descriptor is identical when
	// re-registered.
	_ = registerer.Register(m.decisions)

	return m
}

// Record records one decision outcome.
func (m *RateLimitMetrics) Record(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}
