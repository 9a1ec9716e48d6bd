package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.9, cfg.Pipeline.ExactMatchThreshold)
	assert.Equal(t, 0.7, cfg.Pipeline.RAGConfidenceThreshold)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 0.7, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.LexicalWeight)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.ExactMatchThreshold = 1.5
	cfg.Classifier.Mode = "hybrid"
	cfg.Retrieval.Fusion = "linear"
	cfg.Embedding.Dimensions = 0

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{
		"pipeline.exact_match_threshold",
		"classifier.endpoint",
		"retrieval.fusion",
		"embedding.dimensions",
	}, verrs.Fields())
	assert.Contains(t, err.Error(), "found 4 configuration error(s)")
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agriquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  exact_match_threshold: 0.8
classifier:
  mode: hybrid
  endpoint: http://localhost:8000
retrieval:
  top_k: 8
`), 0o600))

	t.Setenv("AGRIQUERY_RETRIEVAL_TOP_K", "12")
	t.Setenv("AGRIQUERY_LLM_MODEL", "gpt-4.1-mini")
	t.Setenv("AGRIQUERY_PIPELINE_RAG_CONFIDENCE_THRESHOLD", "0.65")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Pipeline.ExactMatchThreshold)
	assert.Equal(t, 0.65, cfg.Pipeline.RAGConfidenceThreshold)
	assert.Equal(t, "hybrid", cfg.Classifier.Mode)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	// untouched defaults survive both layers
	assert.Equal(t, 3600, cfg.Cache.TTLFoundSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Millis(250, time.Second))
	assert.Equal(t, time.Second, Millis(0, time.Second))
	assert.Equal(t, 30*time.Second, Seconds(30, time.Minute))
	assert.Equal(t, time.Minute, Seconds(-1, time.Minute))
}
