package web

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type simulationMetrics struct {
	simulations *prometheus.CounterVec
	warnings    *prometheus.CounterVec
	latency     prometheus.Histogram
	flashloans  prometheus.Histogram
}

var (
	simulationMetricsOnce sync.Once
	simulationRegistry    *simulationMetrics
)

// SimulationMetrics returns the lazily-initialised metrics registry used to
// record simulation API activity.
func SimulationMetrics() *simulationMetrics {
	simulationMetricsOnce.Do(func() {
		simulationRegistry = &simulationMetrics{
			simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "earn",
				Subsystem: "engine",
				Name:      "simulations_total",
				Help:      "Total simulations served segmented by protocol and outcome.",
			}, []string{"protocol", "outcome"}),
			warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "earn",
				Subsystem: "engine",
				Name:      "simulation_warnings_total",
				Help:      "Total simulation warnings segmented by warning code.",
			}, []string{"code"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "earn",
				Subsystem: "engine",
				Name:      "simulation_duration_seconds",
				Help:      "Latency distribution for simulation requests.",
				Buckets:   prometheus.DefBuckets,
			}),
			flashloans: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "earn",
				Subsystem: "engine",
				Name:      "flashloan_size_tokens",
				Help:      "Flashloan principal per simulation, in whole flashloan-token units.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 10, 8),
			}),
		}
		prometheus.MustRegister(
			simulationRegistry.simulations,
			simulationRegistry.warnings,
			simulationRegistry.latency,
			simulationRegistry.flashloans,
		)
	})
	return simulationRegistry
}

// RecordSimulation records the outcome of one simulation request.
// flashloanUnits is the flashloan principal in whole token units, zero when
// the simulation needed none.
func (m *simulationMetrics) RecordSimulation(protocol, outcome string, duration time.Duration, warningCodes []string, flashloanUnits float64) {
	m.simulations.WithLabelValues(protocol, outcome).Inc()
	m.latency.Observe(duration.Seconds())
	for _, code := range warningCodes {
		m.warnings.WithLabelValues(code).Inc()
	}
	if flashloanUnits > 0 {
		m.flashloans.Observe(flashloanUnits)
	}
}
