package runner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/Quidge/modemcheck/internal/scenario"
	"github.com/Quidge/modemcheck/internal/validate"
)

// Metrics counts scenario verdicts and exports them in the Prometheus text
// format. A nil Metrics records nothing.
type Metrics struct {
	executed atomic.Int64
	passed   atomic.Int64
	failed   atomic.Int64
	skipped  atomic.Int64

	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	success  prometheus.Gauge
	last     prometheus.Gauge
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Executed int64
	Passed   int64
	Failed   int64
	Skipped  int64
}

// NewMetrics returns metrics registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modemcheck_scenarios_total",
			Help: "Scenarios by protocol and verdict reason.",
		}, []string{"protocol", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modemcheck_scenario_duration_seconds",
			Help:    "Wall time of a scenario from transmitter start to verdict.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"protocol"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modemcheck_last_run_success",
			Help: "1 if the last run passed every scenario, 0 otherwise.",
		}),
		last: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modemcheck_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished.",
		}),
	}

	skipped := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "modemcheck_scenarios_skipped",
		Help: "Scenarios not executed in the last run.",
	}, func() float64 { return float64(m.skipped.Load()) })

	m.registry.MustRegister(m.outcomes, m.duration, m.success, m.last, skipped)
	return m
}

// Observe records the outcome of an executed scenario.
func (m *Metrics) Observe(sc scenario.Scenario, o validate.Outcome) {
	if m == nil {
		return
	}
	m.executed.Inc()
	if o.Passed {
		m.passed.Inc()
	} else {
		m.failed.Inc()
	}
	m.outcomes.WithLabelValues(string(sc.Protocol), string(o.Reason)).Inc()
	m.duration.WithLabelValues(string(sc.Protocol)).Observe(o.Duration.Seconds())
}

// Finish records the aggregate of a run.
func (m *Metrics) Finish(res *Result) {
	if m == nil {
		return
	}
	m.skipped.Store(int64(res.Skipped))
	if res.Passed() {
		m.success.Set(1)
	} else {
		m.success.Set(0)
	}
	m.last.Set(float64(res.StartedAt.Add(res.Duration).Unix()))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Executed: m.executed.Load(),
		Passed:   m.passed.Load(),
		Failed:   m.failed.Load(),
		Skipped:  m.skipped.Load(),
	}
}

// WriteTextfile writes the metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
