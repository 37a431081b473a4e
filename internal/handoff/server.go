package handoff

import (
	"context"
	"net/http"
	"time"

	"docforge/internal/bundle"
	"docforge/internal/domain/pipeline"
	"docforge/internal/logging"
	"docforge/internal/observability"
)

// CodeGenerator is the consumer-side pipeline the server drives.
type CodeGenerator interface {
	Generate(ctx context.Context, records pipeline.RecordSet, generateTests bool, credential string) ([]pipeline.CodeArtifact, error)
}

// Server validates generation requests and runs them through the pipeline.
// It is transport-agnostic; the HTTP layer feeds it raw bodies.
type Server struct {
	generator CodeGenerator
	obs       *observability.Observability
	logger    logging.Logger
}

// NewServer builds a Server. A nil obs disables instrumentation.
func NewServer(generator CodeGenerator, obs *observability.Observability) *Server {
	if obs == nil {
		obs = observability.Noop()
	}
	return &Server{
		generator: generator,
		obs:       obs,
		logger:    logging.NewComponentLogger("handoff-server"),
	}
}

// Generate validates req and returns the aggregated result. Input errors are
// returned before any generation call.
func (s *Server) Generate(ctx context.Context, req pipeline.GenerationRequest) (pipeline.ResultBundle, error) {
	if err := req.Validate(); err != nil {
		return pipeline.ResultBundle{}, err
	}
	logger := logging.FromContext(ctx, s.logger)
	start := time.Now()
	logger.Info("Generation request: %d records (%d failed upstream), tests=%t", len(req.Records), req.Records.Failed(), req.GenerateTests)

	artifacts, err := s.generator.Generate(ctx, req.Records, req.GenerateTests, req.Credential)
	if err != nil {
		s.obs.Metrics.RecordRun(ctx, "codegen", "failed")
		return pipeline.ResultBundle{}, err
	}
	result := bundle.Aggregate(req.Records, artifacts)

	s.obs.Metrics.RecordRun(ctx, "codegen", string(result.Outcome()))
	logger.Info("Generation finished in %v: %d artifacts, outcome=%s", time.Since(start), len(result.Artifacts), result.Outcome())
	return result, nil
}

// Handle decodes body, runs it and returns the HTTP status and encoded
// response body.
func (s *Server) Handle(ctx context.Context, body []byte) (int, []byte) {
	req, err := DecodeRequest(body)
	if err == nil {
		var result pipeline.ResultBundle
		result, err = s.Generate(ctx, req)
		if err == nil {
			encoded, encErr := EncodeResponse(result)
			if encErr == nil {
				return http.StatusOK, encoded
			}
			err = encErr
		}
	}
	return s.errorBody(ctx, err)
}

// errorBody encodes err as a structured error response.
func (s *Server) errorBody(ctx context.Context, err error) (int, []byte) {
	resp := NewErrorResponse(err)
	if resp.Kind == KindInternal {
		logging.FromContext(ctx, s.logger).Error("Generation failed: %v", err)
	} else {
		s.obs.Metrics.RecordRun(ctx, "codegen", "rejected")
		logging.FromContext(ctx, s.logger).Warn("Rejected generation request: %v", err)
	}
	encoded, _ := EncodeErrorResponse(resp)
	return resp.Kind.HTTPStatus(), encoded
}
