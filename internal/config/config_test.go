package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genie/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "llama3.2:1b", cfg.ModelID(""))
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModelID())
	assert.Equal(t, 3, cfg.Retrieval.K)
	assert.Equal(t, 10, cfg.Retrieval.FetchK)
	assert.Equal(t, 0.7, cfg.Retrieval.LambdaMult)
	assert.Equal(t, 1500, cfg.Retrieval.ContextBudget)
	assert.Equal(t, 50, cfg.VectorStore.BatchSize)
	assert.Equal(t, "restaurant_reviews", cfg.VectorStore.Collection)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, 0.9, cfg.LLM.TopP)
	assert.Equal(t, 1.1, cfg.LLM.RepeatPenalty)
	assert.Equal(t, 120*time.Second, cfg.GenerationTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
models:
  default: gemma
embedder:
  type: hashing
retrieval:
  k: 2
vector_store:
  type: memory
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemma3:1b", cfg.ModelID(""))
	assert.Equal(t, "deepseek-r1:1.5b", cfg.ModelID("deepseek"))
	assert.Equal(t, "custom:7b", cfg.ModelID("custom:7b"))
	assert.Equal(t, 512, cfg.Embedder.Dimension)
	assert.Equal(t, 2, cfg.Retrieval.K)
	assert.Equal(t, 10, cfg.Retrieval.FetchK)
	assert.Zero(t, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, filepath.Join("data", "index"), cfg.VectorStore.PersistDir)

	tmpl, err := cfg.Template("")
	require.NoError(t, err)
	assert.Contains(t, tmpl, "{reviews}")
	assert.Contains(t, tmpl, "{question}")
}

func TestLoad_ScoreThresholdIsOptIn(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	def, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Zero(t, def.Retrieval.ScoreThreshold)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  score_threshold: 0.25\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Retrieval.ScoreThreshold)
}

func TestLoad_InvalidValuesAreConfigurationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  k: 20\n  fetch_k: 5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestLoad_UnknownActivePrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts:\n  active: missing\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoad_OllamaHostOverride(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedder.BaseURL)
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.K = 4
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Retrieval.K)
	assert.Equal(t, cfg.Prompts.Templates, loaded.Prompts.Templates)

	// A second round trip must not drift either, or chain cache keys change between runs.
	require.NoError(t, Save(path, loaded))
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, loaded.Prompts.Templates, again.Prompts.Templates)
}
