// Package orchestrator runs the producer side of a pipeline run: extract the
// archive, document every unit, optionally write the architecture overview and
// hand the records off to the code-generation service.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"docforge/internal/async"
	"docforge/internal/docgen"
	"docforge/internal/domain/pipeline"
	"docforge/internal/handoff"
	"docforge/internal/id"
	"docforge/internal/logging"
	"docforge/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Extractor turns archive bytes into ordered source units.
type Extractor interface {
	Extract(archive []byte) ([]pipeline.SourceUnit, error)
}

// Documenter is the documentation stage.
type Documenter interface {
	Document(ctx context.Context, units []pipeline.SourceUnit, credential string, progress docgen.ProgressFunc) (pipeline.RecordSet, error)
	Architecture(ctx context.Context, units []pipeline.SourceUnit, credential string) (string, error)
}

// Handoff sends records to the code-generation service.
type Handoff interface {
	Send(ctx context.Context, req pipeline.GenerationRequest, onRetry handoff.RetryFunc) (pipeline.ResultBundle, error)
}

// Dependencies wires a Runner.
type Dependencies struct {
	Extractor     Extractor
	Documenter    Documenter
	Handoff       Handoff
	Observability *observability.Observability
	Metrics       *Metrics
	// Architecture enables the whole-codebase overview.
	Architecture bool
}

// Options are the per-run inputs.
type Options struct {
	Credential    string
	GenerateTests bool
}

// Report is the outcome of one run.
type Report struct {
	RunID             string                `json:"run_id"`
	Records           handoff.Documentation `json:"records"`
	Architecture      string                `json:"architecture,omitempty"`
	ArchitectureError string                `json:"architecture_error,omitempty"`
	Bundle            pipeline.ResultBundle `json:"bundle"`
	Outcome           pipeline.Outcome      `json:"outcome"`
}

// Runner executes producer-side runs.
type Runner struct {
	deps   Dependencies
	obs    *observability.Observability
	logger logging.Logger
}

// New validates deps and builds a Runner.
func New(deps Dependencies) (*Runner, error) {
	if deps.Extractor == nil || deps.Documenter == nil || deps.Handoff == nil {
		return nil, errors.New("orchestrator: extractor, documenter and handoff are required")
	}
	obs := deps.Observability
	if obs == nil {
		obs = observability.Noop()
	}
	if deps.Metrics == nil {
		m, err := NewMetrics(obs.Metrics.Registerer())
		if err != nil {
			return nil, err
		}
		deps.Metrics = m
	}
	return &Runner{deps: deps, obs: obs, logger: logging.NewComponentLogger("orchestrator")}, nil
}

// Run executes one run and reports progress to emit, which may be nil. Calls
// to emit are serialized. Input errors and an unavailable handoff abort the
// run; unit failures only make the outcome partial.
func (r *Runner) Run(ctx context.Context, archive []byte, opts Options, emit func(Event)) (*Report, error) {
	runID := id.NewRunID()
	ctx = id.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx, r.logger)
	events := newEmitter(runID, emit)

	ctx, span := r.obs.Tracer.StartSpan(ctx, observability.SpanRun, attribute.Bool(observability.AttrTests, opts.GenerateTests))
	r.deps.Metrics.IncActiveRuns()
	defer r.deps.Metrics.DecActiveRuns()

	report, stage, err := r.run(ctx, archive, opts, events, logger)
	if err != nil {
		reason := FailureReason(err)
		r.deps.Metrics.IncStageFailure(stage, reason)
		r.obs.Metrics.RecordRun(ctx, "docs", "failed")
		logger.Error("Run failed in %s stage: %v", stage, err)
		events.send(Event{Type: EventFailed, Stage: stage, Error: SanitizeError(err, opts.Credential)})
		observability.EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool(observability.AttrPartial, report.Outcome == pipeline.OutcomePartial))
	observability.EndSpan(span, nil)
	r.obs.Metrics.RecordRun(ctx, "docs", string(report.Outcome))
	logger.Info("Run finished: %d records, %d artifacts, outcome=%s", len(report.Records), len(report.Bundle.Artifacts), report.Outcome)
	events.send(Event{Type: EventCompleted, Report: report})
	return report, nil
}

func (r *Runner) run(ctx context.Context, archive []byte, opts Options, events *emitter, logger logging.Logger) (*Report, string, error) {
	start := time.Now()
	units, err := r.deps.Extractor.Extract(archive)
	r.observe(StageExtract, err, start)
	if err != nil {
		return nil, StageExtract, err
	}
	logger.Info("Extracted %d source units", len(units))
	events.send(Event{Type: EventExtracted, Total: len(units), Units: unitNames(units)})

	start = time.Now()
	records, err := r.deps.Documenter.Document(ctx, units, opts.Credential, func(e docgen.Event) {
		events.send(Event{
			Type:      EventUnitDocumented,
			Unit:      e.Unit,
			Index:     e.Index,
			Completed: e.Completed,
			Total:     e.Total,
			Status:    e.Status,
			Error:     e.Error,
		})
	})
	r.observe(StageDocument, err, start)
	if err != nil {
		return nil, StageDocument, err
	}

	var (
		wg           sync.WaitGroup
		architecture string
		archErr      error
	)
	if r.deps.Architecture {
		wg.Add(1)
		async.Go(logger, "orchestrator:architecture", func() {
			defer wg.Done()
			archStart := time.Now()
			architecture, archErr = r.deps.Documenter.Architecture(ctx, units, opts.Credential)
			r.observe(StageArchitecture, archErr, archStart)
		})
	}

	start = time.Now()
	events.send(Event{Type: EventHandoffStarted, Total: len(records)})
	result, err := r.deps.Handoff.Send(ctx, pipeline.GenerationRequest{
		Credential:    opts.Credential,
		Records:       records,
		GenerateTests: opts.GenerateTests,
	}, func(attempt int, err error, delay time.Duration) {
		r.deps.Metrics.IncStageRetry(StageHandoff)
		events.send(Event{Type: EventHandoffRetry, Attempt: attempt, Delay: delay.String(), Error: err.Error()})
	})
	r.observe(StageHandoff, err, start)
	wg.Wait()
	if err != nil {
		return nil, StageHandoff, err
	}

	report := &Report{
		RunID:        id.RunIDFromContext(ctx),
		Records:      handoff.Documentation(records),
		Architecture: architecture,
		Bundle:       result,
		Outcome:      result.Outcome(),
	}
	if archErr != nil {
		logger.Warn("Architecture overview failed: %v", archErr)
		report.ArchitectureError = archErr.Error()
		report.Outcome = pipeline.OutcomePartial
	}
	if records.Failed() > 0 {
		report.Outcome = pipeline.OutcomePartial
	}
	return report, "", nil
}

func (r *Runner) observe(stage string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.deps.Metrics.ObserveStageDuration(stage, status, time.Since(start))
}

// FailureReason maps a run error to a short machine-readable reason.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrCorruptArchive):
		return "corrupt_archive"
	case errors.Is(err, pipeline.ErrEmptyArchive):
		return "empty_archive"
	case errors.Is(err, pipeline.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, pipeline.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, pipeline.ErrEmptyRecordSet):
		return "empty_record_set"
	case errors.Is(err, pipeline.ErrHandoffUnavailable):
		return "handoff_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func unitNames(units []pipeline.SourceUnit) []string {
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name
	}
	return names
}

// SanitizeError strips the credential from an error message before it leaves
// the process.
func SanitizeError(err error, credential string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if credential != "" {
		msg = strings.ReplaceAll(msg, credential, observability.SanitizeAPIKey(credential))
	}
	return msg
}
