package orchestrator

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report producer run activity.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec
	runsActive    prometheus.Gauge
}

// NewMetrics registers the run collectors with reg. A nil reg uses a private
// registry so the collectors still work but are not scraped. Collectors that
// are already registered are reused, so several runners can share one
// registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docforge",
				Subsystem: "run",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each run stage.",
				Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 180, 600},
			},
			[]string{"stage", "status"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Subsystem: "run",
				Name:      "stage_failures_total",
				Help:      "Stage executions that aborted the run.",
			},
			[]string{"stage", "reason"},
		),
		stageRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docforge",
				Subsystem: "run",
				Name:      "stage_retries_total",
				Help:      "Retries issued inside a stage.",
			},
			[]string{"stage"},
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docforge",
				Subsystem: "run",
				Name:      "active",
				Help:      "Runs currently in progress.",
			},
		),
	}

	if err := register(reg, &m.stageDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.stageFailures); err != nil {
		return nil, err
	}
	if err := register(reg, &m.stageRetries); err != nil {
		return nil, err
	}
	if err := register(reg, &m.runsActive); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector *C) error {
	if err := reg.Register(*collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*collector = existing
				return nil
			}
		}
		return err
	}
	return nil
}

// ObserveStageDuration records the time spent in a stage with its status.
func (m *Metrics) ObserveStageDuration(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// IncStageFailure counts a stage failure that aborted the run.
func (m *Metrics) IncStageFailure(stage, reason string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, reason).Inc()
}

// IncStageRetry counts a retry inside a stage.
func (m *Metrics) IncStageRetry(stage string) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(stage).Inc()
}

// IncActiveRuns marks a run as active.
func (m *Metrics) IncActiveRuns() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// DecActiveRuns marks a run as finished.
func (m *Metrics) DecActiveRuns() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}
