package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.MaxTokens)
	assert.Equal(t, 2000, cfg.ReservedResponseTokens)
	assert.True(t, cfg.Features.Memory)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, time.Hour, cfg.Embedding.CacheTTL)
	assert.Equal(t, 0.3, cfg.Memory.MinImportance)
	assert.NotEmpty(t, cfg.Memory.DBPath)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := writeFile(t, `
max_tokens: 12000
features:
  engineering: false
memory:
  db_path: /tmp/x.db
  max_global: 3
embedding:
  provider: ollama
  cache_ttl: 10m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12000, cfg.MaxTokens)
	assert.False(t, cfg.Features.Engineering)
	assert.True(t, cfg.Features.Memory, "unset keys keep defaults")
	assert.Equal(t, "/tmp/x.db", cfg.Memory.DBPath)
	assert.Equal(t, 3, cfg.Memory.MaxGlobal)
	assert.Equal(t, 5, cfg.Memory.MaxProject)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Minute, cfg.Embedding.CacheTTL)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "max_tokens: 100\nmystery: true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENT_CONTEXT_MAX_TOKENS", "4000")
	t.Setenv("AGENT_CONTEXT_FEATURE_EMPHASIS", "false")
	t.Setenv("AGENT_CONTEXT_EMBED_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("AGENT_CONTEXT_DB", "/tmp/env.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.False(t, cfg.Features.Emphasis)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)
	assert.Equal(t, "/tmp/env.db", cfg.Memory.DBPath)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MaxTokens = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Memory.MinImportance = 4
	cfg.Memory.MaxGlobal = -1
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.3, cfg.Memory.MinImportance)
	assert.Equal(t, 5, cfg.Memory.MaxGlobal)
}
