// Package config loads the process-wide settings of both services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"docforge/internal/codegen"
	"docforge/internal/docgen"
	"docforge/internal/extract"
	"docforge/internal/handoff"
	"docforge/internal/llm"
	"docforge/internal/observability"
)

// Config is the full configuration tree.
type Config struct {
	Docs          DocsConfig           `mapstructure:"docs" yaml:"docs"`
	Codegen       CodegenConfig        `mapstructure:"codegen" yaml:"codegen"`
	Extract       extract.Config       `mapstructure:"extract" yaml:"extract"`
	Handoff       handoff.ClientConfig `mapstructure:"handoff" yaml:"handoff"`
	LLM           llm.Config           `mapstructure:"llm" yaml:"llm"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
}

// ServerConfig configures one HTTP service.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// MaxArchiveBytes bounds uploaded archives on services that accept them.
	MaxArchiveBytes int64         `mapstructure:"max_archive_bytes" yaml:"max_archive_bytes,omitempty"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
	Debug           bool          `mapstructure:"debug" yaml:"debug"`
}

// DocsConfig configures the producer service and its documentation stage.
type DocsConfig struct {
	docgen.Config `mapstructure:",squash" yaml:",inline"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`
	// Language is the source language named in prompts.
	Language string `mapstructure:"language" yaml:"language"`
	// GenerateTests is the default when a run does not say.
	GenerateTests bool `mapstructure:"generate_tests" yaml:"generate_tests"`
}

// CodegenConfig configures the consumer service and its pipeline.
type CodegenConfig struct {
	codegen.Config `mapstructure:",squash" yaml:",inline"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	docsServer := ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Minute,
		WriteTimeout:    30 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    16 << 20,
		MaxArchiveBytes: 64 << 20,
	}
	codegenServer := ServerConfig{
		Addr:            ":8081",
		ReadTimeout:     time.Minute,
		WriteTimeout:    15 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    16 << 20,
	}
	return Config{
		Docs: DocsConfig{
			Config:   docgen.DefaultConfig(),
			Server:   docsServer,
			Language: "Java",
		},
		Codegen: CodegenConfig{
			Config: codegen.DefaultConfig(),
			Server: codegenServer,
		},
		Extract:       extract.DefaultConfig(),
		Handoff:       handoff.DefaultClientConfig(),
		LLM:           llm.DefaultConfig(),
		Observability: observability.DefaultConfig(),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Docs.Concurrency > 0, "docs.concurrency must be positive, got %d", c.Docs.Concurrency)
	check(c.Codegen.Concurrency > 0, "codegen.concurrency must be positive, got %d", c.Codegen.Concurrency)
	check(c.Docs.Detail.Valid(), "docs.detail must be basic or detailed, got %q", c.Docs.Detail)
	check(strings.TrimSpace(c.Docs.Language) != "", "docs.language is required")
	check(c.Docs.Server.Addr != "", "docs.server.addr is required")
	check(c.Codegen.Server.Addr != "", "codegen.server.addr is required")
	check(c.Docs.Server.MaxArchiveBytes > 0, "docs.server.max_archive_bytes must be positive, got %d", c.Docs.Server.MaxArchiveBytes)

	check(len(c.Extract.Extensions) > 0, "extract.extensions must not be empty")
	for _, ext := range c.Extract.Extensions {
		check(strings.HasPrefix(ext, "."), "extract.extensions entry %q must start with a dot", ext)
	}

	check(c.Handoff.MaxAttempts > 0, "handoff.max_attempts must be positive, got %d", c.Handoff.MaxAttempts)
	check(c.Handoff.Timeout > 0, "handoff.timeout must be positive")
	if u, err := url.Parse(c.Handoff.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("handoff.endpoint must be an absolute URL, got %q", c.Handoff.Endpoint))
	}

	provider := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	check(slices.Contains(llm.Providers(), provider), "llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(llm.Providers(), ", "))
	check(c.LLM.Timeout > 0, "llm.timeout must be positive")
	check(c.LLM.MaxRetries >= 0, "llm.max_retries must not be negative")

	return errors.Join(errs...)
}
