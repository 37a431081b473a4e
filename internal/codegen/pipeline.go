// Package codegen turns documentation records into code artifacts. Stage A
// generates boilerplate for every successful record; Stage B, when requested,
// generates tests against the boilerplate just produced for the same unit.
package codegen

import (
	"context"
	"errors"
	"strings"
	"sync"

	"docforge/internal/async"
	"docforge/internal/domain/pipeline"
	"docforge/internal/llm"
	"docforge/internal/logging"
	"docforge/internal/observability"
	"docforge/internal/prompts"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Config tunes the code generation pipeline.
type Config struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 4}
}

// Pipeline runs Stage A and the optional Stage B over a record set.
type Pipeline struct {
	generator llm.Generator
	prompts   *prompts.Library
	config    Config
	obs       *observability.Observability
	logger    logging.Logger
}

// NewPipeline builds a Pipeline. A nil obs disables instrumentation.
func NewPipeline(generator llm.Generator, library *prompts.Library, config Config, obs *observability.Observability) *Pipeline {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if obs == nil {
		obs = observability.Noop()
	}
	return &Pipeline{
		generator: generator,
		prompts:   library,
		config:    config,
		obs:       obs,
		logger:    logging.NewComponentLogger("codegen"),
	}
}

// Generate returns the artifacts for records in record order; within a unit
// the boilerplate artifact precedes the test artifact. Units run concurrently
// under the configured bound. Stage B for a unit starts only after that unit's
// Stage A succeeded. Cancelling ctx stops new calls from starting; calls
// already in flight run to completion.
func (p *Pipeline) Generate(ctx context.Context, records pipeline.RecordSet, generateTests bool, credential string) ([]pipeline.CodeArtifact, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, pipeline.ErrInvalidCredential
	}

	ctx, span := p.obs.Tracer.StartSpan(ctx, observability.SpanCodegenPipeline,
		attribute.Int(observability.AttrUnitCount, len(records)),
		attribute.Bool(observability.AttrTests, generateTests),
	)
	logger := logging.FromContext(ctx, p.logger)
	logger.Info("Generating code for %d records (tests=%t, max %d workers)", len(records), generateTests, p.config.Concurrency)

	slots := make([][]pipeline.CodeArtifact, len(records))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)

	for i, record := range records {
		g.Go(func() error {
			artifacts := p.generateUnit(ctx, record, generateTests, credential)
			mu.Lock()
			slots[i] = artifacts
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}

	artifacts := make([]pipeline.CodeArtifact, 0, len(records)*2)
	for _, slot := range slots {
		artifacts = append(artifacts, slot...)
	}
	observability.EndSpan(span, nil)
	return artifacts, nil
}

func (p *Pipeline) generateUnit(ctx context.Context, record pipeline.DocumentationRecord, generateTests bool, credential string) []pipeline.CodeArtifact {
	if !record.OK() {
		reason := record.Error
		if reason == "" {
			reason = "documentation failed"
		}
		p.obs.Metrics.RecordUnit(ctx, string(pipeline.KindBoilerplate), string(pipeline.StatusFailed))
		return []pipeline.CodeArtifact{{
			UnitName: record.UnitName,
			Kind:     pipeline.KindBoilerplate,
			Status:   pipeline.StatusFailed,
			Error:    reason,
		}}
	}

	if ctx.Err() != nil {
		return nil
	}
	boilerplate := p.run(ctx, pipeline.RoleBoilerplate, pipeline.KindBoilerplate, record.UnitName, credential, func() (prompts.Prompt, error) {
		return p.prompts.Boilerplate(record)
	})
	artifacts := []pipeline.CodeArtifact{boilerplate}
	if !generateTests || !boilerplate.OK() || ctx.Err() != nil {
		return artifacts
	}

	test := p.run(ctx, pipeline.RoleTest, pipeline.KindTest, record.UnitName, credential, func() (prompts.Prompt, error) {
		return p.prompts.Test(record, boilerplate.Body)
	})
	return append(artifacts, test)
}

func (p *Pipeline) run(ctx context.Context, role pipeline.Role, kind pipeline.ArtifactKind, unit, credential string, build func() (prompts.Prompt, error)) pipeline.CodeArtifact {
	body, err := async.Call(p.logger, "codegen:"+string(role)+":"+unit, func() (string, error) {
		prompt, err := build()
		if err != nil {
			return "", err
		}
		return p.generator.Generate(context.WithoutCancel(ctx), llm.Request{
			Role:       role,
			Unit:       unit,
			System:     prompt.System,
			Prompt:     prompt.User,
			Credential: credential,
		})
	})
	if err == nil && strings.TrimSpace(body) == "" {
		err = errors.New("empty output")
	}

	artifact := pipeline.CodeArtifact{UnitName: unit, Kind: kind}
	if err != nil {
		err = pipeline.NewGenerationError(role, unit, err)
		p.logger.Warn("%v", err)
		artifact.Status = pipeline.StatusFailed
		artifact.Error = err.Error()
	} else {
		artifact.Status = pipeline.StatusOK
		artifact.Body = body
	}
	p.obs.Metrics.RecordUnit(ctx, string(kind), string(artifact.Status))
	return artifact
}
