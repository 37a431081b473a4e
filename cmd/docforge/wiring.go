package main

import (
	"fmt"
	"strings"

	"docforge/internal/codegen"
	"docforge/internal/config"
	"docforge/internal/docgen"
	"docforge/internal/extract"
	"docforge/internal/handoff"
	"docforge/internal/llm"
	"docforge/internal/logging"
	"docforge/internal/observability"
	"docforge/internal/orchestrator"
	"docforge/internal/prompts"
	serverhttp "docforge/internal/server/http"
)

func providerList() string {
	return strings.Join(llm.Providers(), ", ")
}

// newRunner assembles the producer: extractor, documentation stage and
// handoff client.
func newRunner(cfg config.Config, obs *observability.Observability) (*orchestrator.Runner, error) {
	extractor, err := extract.New(cfg.Extract, logging.NewComponentLogger("extract"))
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	generator, err := llm.New(cfg.LLM, obs)
	if err != nil {
		return nil, err
	}
	library, err := prompts.New(cfg.Docs.Language)
	if err != nil {
		return nil, err
	}
	client, err := handoff.NewClient(cfg.Handoff, obs)
	if err != nil {
		return nil, fmt.Errorf("handoff client: %w", err)
	}
	metrics, err := orchestrator.NewMetrics(obs.Metrics.Registerer())
	if err != nil {
		return nil, fmt.Errorf("run metrics: %w", err)
	}
	return orchestrator.New(orchestrator.Dependencies{
		Extractor:     extractor,
		Documenter:    docgen.NewStage(generator, library, cfg.Docs.Config, obs),
		Handoff:       client,
		Observability: obs,
		Metrics:       metrics,
		Architecture:  cfg.Docs.Architecture,
	})
}

// newCodegenServer assembles the consumer.
func newCodegenServer(cfg config.Config, obs *observability.Observability) (*handoff.Server, error) {
	generator, err := llm.New(cfg.LLM, obs)
	if err != nil {
		return nil, err
	}
	library, err := prompts.New(cfg.Docs.Language)
	if err != nil {
		return nil, err
	}
	return handoff.NewServer(codegen.NewPipeline(generator, library, cfg.Codegen.Config, obs), obs), nil
}

func routerConfig(service string, server config.ServerConfig, generateTests bool) serverhttp.RouterConfig {
	return serverhttp.RouterConfig{
		Service:         service,
		Version:         appVersion(),
		Debug:           server.Debug,
		AllowedOrigins:  server.AllowedOrigins,
		MaxBodyBytes:    server.MaxBodyBytes,
		MaxArchiveBytes: server.MaxArchiveBytes,
		GenerateTests:   generateTests,
	}
}

func serverConfig(server config.ServerConfig) serverhttp.ServerConfig {
	return serverhttp.ServerConfig{
		Addr:            server.Addr,
		ReadTimeout:     server.ReadTimeout,
		WriteTimeout:    server.WriteTimeout,
		IdleTimeout:     server.IdleTimeout,
		ShutdownTimeout: server.ShutdownTimeout,
	}
}
