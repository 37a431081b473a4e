package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docforge/internal/async"
	"docforge/internal/logging"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all pipeline metrics
type MetricsCollector struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	generationRequests metric.Int64Counter
	generationLatency  metric.Float64Histogram

	handoffAttempts metric.Int64Counter
	handoffLatency  metric.Float64Histogram

	pipelineRuns metric.Int64Counter
	unitOutcomes metric.Int64Counter

	httpRequests metric.Int64Counter
	httpLatency  metric.Float64Histogram

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// PrometheusPort starts a dedicated scrape server when > 0. The service
	// routers always expose /metrics as well.
	PrometheusPort int `mapstructure:"prometheus_port" yaml:"prometheus_port,omitempty"`
}

// NewMetricsCollector creates a new metrics collector. A disabled collector
// accepts every Record call and drops it.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("docforge")

	collector := &MetricsCollector{registry: registry, provider: provider}

	if collector.generationRequests, err = meter.Int64Counter(
		"docforge.generation.requests.total",
		metric.WithDescription("Generation capability calls by role and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation_requests counter: %w", err)
	}
	if collector.generationLatency, err = meter.Float64Histogram(
		"docforge.generation.latency",
		metric.WithDescription("Generation capability latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation_latency histogram: %w", err)
	}
	if collector.handoffAttempts, err = meter.Int64Counter(
		"docforge.handoff.attempts.total",
		metric.WithDescription("Handoff attempts by outcome"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create handoff_attempts counter: %w", err)
	}
	if collector.handoffLatency, err = meter.Float64Histogram(
		"docforge.handoff.latency",
		metric.WithDescription("Handoff attempt latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create handoff_latency histogram: %w", err)
	}
	if collector.pipelineRuns, err = meter.Int64Counter(
		"docforge.pipeline.runs.total",
		metric.WithDescription("Completed pipeline runs by side and outcome"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pipeline_runs counter: %w", err)
	}
	if collector.unitOutcomes, err = meter.Int64Counter(
		"docforge.units.total",
		metric.WithDescription("Per-unit stage outcomes"),
		metric.WithUnit("{unit}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create units counter: %w", err)
	}
	if collector.httpRequests, err = meter.Int64Counter(
		"docforge.http.server.requests.total",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}
	if collector.httpLatency, err = meter.Float64Histogram(
		"docforge.http.server.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	if config.PrometheusPort > 0 {
		collector.StartPrometheusServer(config.PrometheusPort)
	}

	return collector, nil
}

// Registerer exposes the collector's registry so packages can add native
// Prometheus collectors to the same scrape endpoint. Nil when disabled.
func (m *MetricsCollector) Registerer() promclient.Registerer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus scrape endpoint. It returns 404 when metrics
// are disabled.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartPrometheusServer starts a dedicated Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := logging.NewComponentLogger("metrics")
	server := m.prometheusServer
	async.Go(logger, "prometheus-server", func() {
		logger.Info("Prometheus metrics server listening on :%d", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Prometheus server error: %v", err)
		}
	})
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.prometheusServer != nil {
		errs = append(errs, m.prometheusServer.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordGeneration records one call across the generation capability boundary
func (m *MetricsCollector) RecordGeneration(ctx context.Context, role, status string, latency time.Duration) {
	if m == nil || m.generationRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("status", status),
	)
	m.generationRequests.Add(ctx, 1, attrs)
	m.generationLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordHandoffAttempt records one handoff attempt and how it ended
func (m *MetricsCollector) RecordHandoffAttempt(ctx context.Context, outcome string, latency time.Duration) {
	if m == nil || m.handoffAttempts == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.handoffAttempts.Add(ctx, 1, attrs)
	m.handoffLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordRun records a completed pipeline run on the given side
func (m *MetricsCollector) RecordRun(ctx context.Context, side, outcome string) {
	if m == nil || m.pipelineRuns == nil {
		return
	}
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("side", side),
		attribute.String("outcome", outcome),
	))
}

// RecordUnit records a per-unit stage outcome
func (m *MetricsCollector) RecordUnit(ctx context.Context, stage, status string) {
	if m == nil || m.unitOutcomes == nil {
		return
	}
	m.unitOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordHTTPServerRequest records a served HTTP request
func (m *MetricsCollector) RecordHTTPServerRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpLatency.Record(ctx, latency.Seconds(), attrs)
}
