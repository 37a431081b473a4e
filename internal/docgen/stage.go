// Package docgen runs the documentation stage: one generation call per source
// unit, fanned out under a concurrency bound, with per-unit failure isolation.
package docgen

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"docforge/internal/async"
	"docforge/internal/domain/pipeline"
	"docforge/internal/llm"
	"docforge/internal/logging"
	"docforge/internal/observability"
	"docforge/internal/prompts"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Config tunes the documentation stage.
type Config struct {
	Concurrency int            `mapstructure:"concurrency" yaml:"concurrency"`
	Detail      prompts.Detail `mapstructure:"detail" yaml:"detail"`
	// Architecture enables the whole-codebase overview.
	Architecture bool `mapstructure:"architecture" yaml:"architecture"`
	// ArchitectureMaxTokens bounds the source included in the overview prompt.
	ArchitectureMaxTokens int `mapstructure:"architecture_max_tokens" yaml:"architecture_max_tokens"`
}

// DefaultConfig returns the stage defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:           4,
		Detail:                prompts.DetailDetailed,
		Architecture:          false,
		ArchitectureMaxTokens: 24000,
	}
}

// Event reports a unit that finished documentation.
type Event struct {
	Index     int
	Completed int
	Total     int
	Unit      string
	Status    pipeline.Status
	Error     string
}

// ProgressFunc receives an Event per finished unit. Calls are serialized.
type ProgressFunc func(Event)

// Stage documents source units.
type Stage struct {
	generator llm.Generator
	prompts   *prompts.Library
	config    Config
	obs       *observability.Observability
	logger    logging.Logger
}

// NewStage builds a Stage. A nil obs disables instrumentation.
func NewStage(generator llm.Generator, library *prompts.Library, config Config, obs *observability.Observability) *Stage {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if !config.Detail.Valid() {
		config.Detail = prompts.DetailBasic
	}
	if obs == nil {
		obs = observability.Noop()
	}
	return &Stage{
		generator: generator,
		prompts:   library,
		config:    config,
		obs:       obs,
		logger:    logging.NewComponentLogger("docgen"),
	}
}

// Document produces exactly one record per unit, in unit order. A failure on
// one unit is recorded on that unit's record and never aborts the others.
// An empty credential fails before any generation call.
func (s *Stage) Document(ctx context.Context, units []pipeline.SourceUnit, credential string, progress ProgressFunc) (pipeline.RecordSet, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, pipeline.ErrInvalidCredential
	}
	if err := s.verifyCredential(ctx, credential); err != nil {
		return nil, err
	}

	ctx, span := s.obs.Tracer.StartSpan(ctx, observability.SpanDocumentStage,
		attribute.Int(observability.AttrUnitCount, len(units)),
	)
	logger := logging.FromContext(ctx, s.logger)
	logger.Info("Documenting %d units (max %d workers, detail=%s)", len(units), s.config.Concurrency, s.config.Detail)

	records := make(pipeline.RecordSet, len(units))
	completed := 0
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)

	for i, unit := range units {
		g.Go(func() error {
			record := s.documentUnit(ctx, unit, credential)
			s.obs.Metrics.RecordUnit(ctx, "documentation", string(record.Status))

			mu.Lock()
			defer mu.Unlock()
			records[i] = record
			completed++
			if record.OK() {
				logger.Debug("[%d/%d] documented %s", completed, len(units), unit.Name)
			} else {
				logger.Warn("[%d/%d] documentation failed for %s: %s", completed, len(units), unit.Name, record.Error)
			}
			if progress != nil {
				progress(Event{
					Index:     i,
					Completed: completed,
					Total:     len(units),
					Unit:      unit.Name,
					Status:    record.Status,
					Error:     record.Error,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool(observability.AttrPartial, records.Failed() > 0))
	observability.EndSpan(span, nil)
	logger.Info("Documentation finished: %d units, %d failed", len(records), records.Failed())
	return records, nil
}

func (s *Stage) documentUnit(ctx context.Context, unit pipeline.SourceUnit, credential string) pipeline.DocumentationRecord {
	if unit.Rejected != nil {
		err := pipeline.NewGenerationError(pipeline.RoleDocumentation, unit.Name, unit.Rejected)
		return pipeline.DocumentationRecord{UnitName: unit.Name, Status: pipeline.StatusFailed, Error: err.Error()}
	}
	body, err := async.Call(s.logger, "docgen:"+unit.Name, func() (string, error) {
		prompt, err := s.prompts.Documentation(s.config.Detail, unit)
		if err != nil {
			return "", err
		}
		return s.generator.Generate(ctx, llm.Request{
			Role:       pipeline.RoleDocumentation,
			Unit:       unit.Name,
			System:     prompt.System,
			Prompt:     prompt.User,
			Credential: credential,
		})
	})
	if err == nil && strings.TrimSpace(body) == "" {
		err = errors.New("empty documentation")
	}
	if err != nil {
		err = pipeline.NewGenerationError(pipeline.RoleDocumentation, unit.Name, err)
		return pipeline.DocumentationRecord{UnitName: unit.Name, Status: pipeline.StatusFailed, Error: err.Error()}
	}
	return pipeline.DocumentationRecord{UnitName: unit.Name, Body: body, Status: pipeline.StatusOK}
}

// Architecture generates the whole-codebase overview. Its failure is
// reported to the caller and never affects unit records.
func (s *Stage) Architecture(ctx context.Context, units []pipeline.SourceUnit, credential string) (string, error) {
	start := time.Now()
	prompt, err := s.prompts.Architecture(units, s.config.ArchitectureMaxTokens)
	if err != nil {
		return "", pipeline.NewGenerationError(pipeline.RoleArchitecture, "", err)
	}
	body, err := async.Call(s.logger, "docgen:architecture", func() (string, error) {
		return s.generator.Generate(ctx, llm.Request{
			Role:       pipeline.RoleArchitecture,
			System:     prompt.System,
			Prompt:     prompt.User,
			Credential: credential,
		})
	})
	if err != nil {
		return "", pipeline.NewGenerationError(pipeline.RoleArchitecture, "", err)
	}
	s.logger.Info("Architecture overview generated in %v", time.Since(start))
	return body, nil
}

func (s *Stage) verifyCredential(ctx context.Context, credential string) error {
	checker, ok := s.generator.(llm.CredentialChecker)
	if !ok {
		return nil
	}
	err := checker.VerifyCredential(ctx, credential)
	if err == nil {
		return nil
	}
	if errors.Is(err, pipeline.ErrInvalidCredential) {
		return pipeline.ErrInvalidCredential
	}
	s.logger.Warn("Credential check failed, continuing: %v", err)
	return nil
}
