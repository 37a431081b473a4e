package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docforge/internal/prompts"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolated(t *testing.T) []Option {
	t.Helper()
	dir := t.TempDir()
	return []Option{
		WithHomeDir(func() (string, error) { return dir, nil }),
		WithWorkDir(func() (string, error) { return dir, nil }),
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, path, err := Load(isolated(t)...)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, prompts.DetailDetailed, cfg.Docs.Detail)
	assert.Equal(t, []string{".java"}, cfg.Extract.Extensions)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
docs:
  concurrency: 8
  detail: basic
  server:
    addr: ":9090"
handoff:
  endpoint: http://codegen:8081/generate
  base_delay: 250ms
llm:
  provider: ollama
  model: llama3
`), 0o600))
	t.Setenv("DOCFORGE_DOCS_CONCURRENCY", "2")
	t.Setenv("DOCFORGE_LLM_BASE_URL", "http://ollama:11434")

	cfg, used, err := Load(append(isolated(t), WithConfigPath(path))...)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 2, cfg.Docs.Concurrency)
	assert.Equal(t, prompts.DetailBasic, cfg.Docs.Detail)
	assert.Equal(t, ":9090", cfg.Docs.Server.Addr)
	assert.Equal(t, Default().Docs.Server.ReadTimeout, cfg.Docs.Server.ReadTimeout)
	assert.Equal(t, "http://codegen:8081/generate", cfg.Handoff.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Handoff.BaseDelay)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
}

func TestLoadDiscoversWorkDirFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docforge.yaml"), []byte("codegen:\n  concurrency: 3\n"), 0o600))

	cfg, used, err := Load(
		WithWorkDir(func() (string, error) { return dir, nil }),
		WithHomeDir(func() (string, error) { return t.TempDir(), nil }),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docforge.yaml"), used)
	assert.Equal(t, 3, cfg.Codegen.Concurrency)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(append(isolated(t), WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")))...)
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("DOCFORGE_DOCS_CONCURRENCY", "0")
	t.Setenv("DOCFORGE_LLM_PROVIDER", "carrier-pigeon")

	_, _, err := Load(isolated(t)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docs.concurrency")
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestLoadArchiveLimitIndependentOfBodyLimit(t *testing.T) {
	t.Setenv("DOCFORGE_DOCS_SERVER_MAX_ARCHIVE_BYTES", "1048576")

	cfg, _, err := Load(isolated(t)...)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), cfg.Docs.Server.MaxArchiveBytes)
	assert.Equal(t, Default().Docs.Server.MaxBodyBytes, cfg.Docs.Server.MaxBodyBytes)
	assert.Zero(t, cfg.Codegen.Server.MaxArchiveBytes)
}

func TestLoadFlagsTakePrecedence(t *testing.T) {
	v := viper.New()
	v.Set("docs.generate_tests", true)
	t.Setenv("DOCFORGE_DOCS_GENERATE_TESTS", "false")

	cfg, _, err := Load(append(isolated(t), WithViper(v))...)
	require.NoError(t, err)
	assert.True(t, cfg.Docs.GenerateTests)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Docs.Detail = "verbose"
	cfg.Extract.Extensions = []string{"java"}
	cfg.Handoff.Endpoint = "codegen:8081"
	cfg.Handoff.MaxAttempts = 0
	cfg.Docs.Server.MaxArchiveBytes = 0
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"docs.detail", "extract.extensions", "handoff.endpoint", "handoff.max_attempts", "docs.server.max_archive_bytes"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	cfg := Default()
	cfg.Codegen.Concurrency = 6
	cfg.LLM.Model = "deepseek-coder"

	require.NoError(t, Save(path, cfg, false))
	assert.ErrorIs(t, Save(path, cfg, false), ErrConfigExists)
	require.NoError(t, Save(path, cfg, true))

	loaded, _, err := Load(append(isolated(t), WithConfigPath(path))...)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEncodeWritesDurationsAsStrings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Default()))
	assert.Contains(t, buf.String(), "timeout: 2m0s")
	assert.Contains(t, buf.String(), "detail: detailed")
}
