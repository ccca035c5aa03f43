package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/prompt-pruner/internal/config"
)

const validYAML = `
server:
  port: ${PRUNER_TEST_PORT:-18080}
  read_timeout: 30s
  write_timeout: 2m
store:
  type: memory
  ttl: 0s
analyzer:
  max_phrase_len: 4
  max_candidates: 200
  display_order: descending
pruner:
  max_similarity_checks: 200
scoring:
  importance:
    strategy: local
  similarity:
    strategy: lexical
  token_encoding: cl100k_base
generation:
  strategy: mock
monitoring:
  log_level: info
  log_format: json
  log_output: stdout
`

// =============================================================================
// LOADING
// =============================================================================

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, 18080, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, config.StoreMemory, cfg.Store.Type)
	assert.Zero(t, cfg.Store.TTL)
	assert.Equal(t, 4, cfg.Analyzer.MaxPhraseLen)
	assert.Equal(t, "descending", cfg.Analyzer.DisplayOrder)
	assert.Equal(t, config.ImportanceLocal, cfg.Scoring.Importance.Strategy)
	assert.Equal(t, config.GenerationMock, cfg.Generation.Strategy)
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	t.Setenv("PRUNER_TEST_PORT", "9191")

	cfg, err := config.LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadFromBytes_TelemetryOverride(t *testing.T) {
	t.Setenv("PRUNER_TELEMETRY_LOG", "/tmp/runs.jsonl")

	cfg, err := config.LoadFromBytes([]byte(validYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Monitoring.TelemetryEnabled)
	assert.Equal(t, "/tmp/runs.jsonl", cfg.Monitoring.TelemetryPath)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Pruner.MaxSimilarityChecks)

	_, err = config.Load("")
	assert.Error(t, err)
	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// VALIDATION
// =============================================================================

func validConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Store:      config.StoreConfig{Type: config.StoreMemory},
		Analyzer:   config.AnalyzerConfig{MaxPhraseLen: 4, MaxCandidates: 200, DisplayOrder: "descending"},
		Pruner:     config.PrunerConfig{MaxSimilarityChecks: 100},
		Scoring:    config.ScoringConfig{Importance: config.ScorerConfig{Strategy: "local"}, Similarity: config.ScorerConfig{Strategy: "lexical"}, TokenEncoding: "cl100k_base"},
		Generation: config.GenerationConfig{Strategy: config.GenerationMock},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		errorMsg string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"missing port", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"missing store type", func(c *config.Config) { c.Store.Type = "" }, "store.type"},
		{"unknown store type", func(c *config.Config) { c.Store.Type = "redis" }, "store.type"},
		{"sqlite without path", func(c *config.Config) { c.Store.Type = config.StoreSQLite }, "store.path"},
		{"zero phrase length", func(c *config.Config) { c.Analyzer.MaxPhraseLen = 0 }, "analyzer.max_phrase_len"},
		{"bad display order", func(c *config.Config) { c.Analyzer.DisplayOrder = "random" }, "display_order"},
		{"zero check budget", func(c *config.Config) { c.Pruner.MaxSimilarityChecks = 0 }, "max_similarity_checks"},
		{"api scorer without url", func(c *config.Config) { c.Scoring.Importance.Strategy = "api" }, "scoring.importance.api.base_url"},
		{"embedding without url", func(c *config.Config) { c.Scoring.Similarity.Strategy = "embedding" }, "scoring.similarity.api.base_url"},
		{"missing encoding", func(c *config.Config) { c.Scoring.TokenEncoding = "" }, "token_encoding"},
		{"provider generation without provider", func(c *config.Config) { c.Generation.Strategy = config.GenerationProvider }, "generation.provider"},
		{"bad log format", func(c *config.Config) { c.Monitoring.LogFormat = "xml" }, "log_format"},
		{"telemetry without path", func(c *config.Config) { c.Monitoring.TelemetryEnabled = true }, "telemetry_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
