package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "CORS_ORIGINS", "DATABASE_URL", "STORAGE_TYPE", "LLM_PROVIDER",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "RETRIEVAL_BACKEND", "WEAVIATE_HOST",
		"ANALYSIS_CONCURRENCY", "LOG_LEVEL", "PROMPTS_DIR",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "none", cfg.Retrieval.Backend)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 100, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, 3, cfg.Analysis.MaxAttempts)
	assert.False(t, cfg.Analysis.RetryTransportErrors)
	assert.Equal(t, 1, cfg.Analysis.Concurrency)
	assert.Equal(t, 20, cfg.Analysis.HistoryLimit)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: "9090"
  job_timeout: 5m
llm:
  provider: anythingllm
  base_url: http://localhost:3001
  workspace: contracts
retrieval:
  backend: weaviate
  weaviate_host: localhost:8081
  breaker_open: 1m
chunker:
  chunk_size: 500
  chunk_overlap: 50
analysis:
  max_attempts: 5
  retry_transport_errors: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.JobTimeout)
	assert.Equal(t, "anythingllm", cfg.LLM.Provider)
	assert.Equal(t, "contracts", cfg.LLM.Workspace)
	assert.Equal(t, "weaviate", cfg.Retrieval.Backend)
	assert.Equal(t, time.Minute, cfg.Retrieval.BreakerOpen)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 5, cfg.Analysis.MaxAttempts)
	assert.True(t, cfg.Analysis.RetryTransportErrors)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ANALYSIS_CONCURRENCY", "4")

	cfg, err := Load(writeConfig(t, "server:\n  port: \"9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "pgvector", cfg.Retrieval.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Analysis.Concurrency)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "llm:\n  provider: llama\n"))
	assert.ErrorContains(t, err, "unknown llm provider")

	_, err = Load(writeConfig(t, "chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n"))
	assert.ErrorContains(t, err, "chunk_overlap")

	_, err = Load(writeConfig(t, "retrieval:\n  backend: weaviate\n"))
	assert.ErrorContains(t, err, "weaviate_host")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv("ANALYSIS_CONCURRENCY", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "ANALYSIS_CONCURRENCY")
}
