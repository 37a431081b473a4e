package observability

import (
	"context"
	"io"

	"docforge/internal/logging"
)

// Observability bundles the logger, metrics collector and tracer of a process.
type Observability struct {
	Logger  *Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	config  Config
}

// New builds the observability stack from config and installs the logger as
// the base for component loggers. Metrics and tracing failures degrade to
// disabled collectors instead of failing startup.
func New(config Config) *Observability {
	logger := NewLogger(LogConfig{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		File:       config.Logging.File,
		MaxSizeMB:  config.Logging.MaxSizeMB,
		MaxBackups: config.Logging.MaxBackups,
		MaxAgeDays: config.Logging.MaxAgeDays,
	})
	logging.SetBase(logger.Slog())

	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		metrics = &MetricsCollector{}
	}

	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		tracer = NewNoopTracerProvider()
	}

	logger.Info("Observability initialized",
		"log_level", config.Logging.Level,
		"metrics_enabled", config.Metrics.Enabled,
		"tracing_enabled", config.Tracing.Enabled,
	)

	return &Observability{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
		config:  config,
	}
}

// Noop returns an observability bundle that discards everything. Used by
// tests and by callers that have not configured observability.
func Noop() *Observability {
	return &Observability{
		Logger:  NewLogger(LogConfig{Level: "error", Output: io.Discard}),
		Metrics: &MetricsCollector{},
		Tracer:  NewNoopTracerProvider(),
	}
}

// Shutdown gracefully shuts down all observability components
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.Logger.Info("Shutting down observability")

	if err := o.Metrics.Shutdown(ctx); err != nil {
		o.Logger.Error("Failed to shutdown metrics", "error", err)
	}
	if err := o.Tracer.Shutdown(ctx); err != nil {
		o.Logger.Error("Failed to shutdown tracing", "error", err)
	}
	return o.Logger.Close()
}

// Config returns the configuration the bundle was built from
func (o *Observability) Config() Config {
	return o.config
}
