// Package metrics holds Prometheus instrumentation for the harness.
// The harness is a short-lived process, so nothing is exposed over HTTP;
// instead Snapshot folds the gathered counters into the JSON summary
// artifact at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the harness counters. All metrics use the testguard_
// namespace.
type Metrics struct {
	SuitesTotal           *prometheus.CounterVec
	SafetyViolationsTotal *prometheus.CounterVec
	SandboxesCreated      prometheus.Counter
	SandboxesRemoved      prometheus.Counter
	CleanupFailuresTotal  prometheus.Counter
	ResetsTotal           *prometheus.CounterVec
}

// New creates and registers the harness metrics on the given registry.
// Returns nil if reg is nil, and every recording method tolerates a nil
// receiver, so callers never need to guard.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		SuitesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "suites_total",
			Help:      "Aggregated suites by outcome (passed, failed, mixed).",
		}, []string{"outcome"}),

		SafetyViolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "safety_violations_total",
			Help:      "Safety violations by category.",
		}, []string{"category"}),

		SandboxesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "sandboxes_created_total",
			Help:      "Suite sandboxes provisioned.",
		}),

		SandboxesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "sandboxes_removed_total",
			Help:      "Suite sandboxes torn down.",
		}),

		CleanupFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "cleanup_failures_total",
			Help:      "Teardown steps that could not remove a directory.",
		}),

		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "testguard",
			Name:      "mock_resets_total",
			Help:      "Dynamic mock data resets by component.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.SuitesTotal,
		m.SafetyViolationsTotal,
		m.SandboxesCreated,
		m.SandboxesRemoved,
		m.CleanupFailuresTotal,
		m.ResetsTotal,
	)

	return m
}

// RecordSuite counts one aggregated suite result.
func (m *Metrics) RecordSuite(outcome string) {
	if m == nil {
		return
	}
	m.SuitesTotal.WithLabelValues(outcome).Inc()
}

// RecordViolation counts one safety violation.
func (m *Metrics) RecordViolation(category string) {
	if m == nil {
		return
	}
	m.SafetyViolationsTotal.WithLabelValues(category).Inc()
}

// RecordSandboxCreated counts one provisioned sandbox.
func (m *Metrics) RecordSandboxCreated() {
	if m == nil {
		return
	}
	m.SandboxesCreated.Inc()
}

// RecordSandboxRemoved counts one removed sandbox.
func (m *Metrics) RecordSandboxRemoved() {
	if m == nil {
		return
	}
	m.SandboxesRemoved.Inc()
}

// RecordCleanupFailure counts one failed teardown step.
func (m *Metrics) RecordCleanupFailure() {
	if m == nil {
		return
	}
	m.CleanupFailuresTotal.Inc()
}

// RecordReset counts one dynamic mock reset.
func (m *Metrics) RecordReset(component string) {
	if m == nil {
		return
	}
	m.ResetsTotal.WithLabelValues(component).Inc()
}

// Snapshot gathers the registry into a flat name→value map for inclusion
// in the run summary. Labeled series are keyed name{label="value"}.
func Snapshot(reg *prometheus.Registry) (map[string]float64, error) {
	if reg == nil {
		return nil, nil
	}
	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			out[seriesKey(fam, metric)] = seriesValue(fam, metric)
		}
	}
	return out, nil
}

func seriesKey(fam *dto.MetricFamily, m *dto.Metric) string {
	key := fam.GetName()
	for _, lp := range m.GetLabel() {
		key += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
	}
	return key
}

func seriesValue(fam *dto.MetricFamily, m *dto.Metric) float64 {
	switch fam.GetType() {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}
