package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DOCFORGE_LLM_MODEL.
const EnvPrefix = "DOCFORGE"

// optionalKeys have no default value but can still be set from the
// environment.
var optionalKeys = []string{
	"llm.base_url",
	"observability.logging.file",
	"observability.tracing.otlp_endpoint",
	"observability.tracing.zipkin_endpoint",
	"observability.tracing.jaeger_endpoint",
	"observability.metrics.prometheus_port",
	"docs.server.allowed_origins",
	"codegen.server.allowed_origins",
	"codegen.server.max_archive_bytes",
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	homeDir    func() (string, error)
	workDir    func() (string, error)
	viper      *viper.Viper
}

// WithConfigPath loads the file at path instead of searching for one. A
// missing explicit file is an error.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithHomeDir overrides home-directory discovery.
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = fn }
}

// WithWorkDir overrides working-directory discovery.
func WithWorkDir(fn func() (string, error)) Option {
	return func(o *loadOptions) { o.workDir = fn }
}

// WithViper loads into v, so that flags bound to it take precedence.
func WithViper(v *viper.Viper) Option {
	return func(o *loadOptions) { o.viper = v }
}

// Load layers defaults, the config file and DOCFORGE_ environment variables,
// in increasing precedence, and validates the result. It returns the file
// used, or "" when none was found.
func Load(opts ...Option) (Config, string, error) {
	options := loadOptions{homeDir: os.UserHomeDir, workDir: os.Getwd}
	for _, opt := range opts {
		opt(&options)
	}
	v := options.viper
	if v == nil {
		v = viper.New()
	}

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, "", fmt.Errorf("encode defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, "", fmt.Errorf("load defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range optionalKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, "", fmt.Errorf("bind %s: %w", key, err)
		}
	}

	path, err := resolvePath(options)
	if err != nil {
		return Config{}, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// resolvePath returns the explicit path, or the first existing file among
// ./docforge.yaml and ~/.docforge/config.yaml.
func resolvePath(options loadOptions) (string, error) {
	if options.configPath != "" {
		if _, err := os.Stat(options.configPath); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return options.configPath, nil
	}

	var candidates []string
	if dir, err := options.workDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "docforge.yaml"))
	}
	if home, err := options.homeDir(); err == nil {
		candidates = append(candidates, DefaultPath(home))
	}
	for _, candidate := range candidates {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file: %w", err)
		}
	}
	return "", nil
}

// DefaultPath is the per-user config location under home.
func DefaultPath(home string) string {
	return filepath.Join(home, ".docforge", "config.yaml")
}
