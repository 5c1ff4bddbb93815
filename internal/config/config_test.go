package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "billing_assistant.db", cfg.DatabaseURL)
	assert.Equal(t, "data/docs/reference", cfg.ReferenceDocsDir)
	assert.Equal(t, "data/docs/customer", cfg.CustomerDocsDir)
	assert.Equal(t, 4, cfg.RetrievalTopK)
	assert.Equal(t, 0.75, cfg.ConfidenceThreshold)
	assert.Equal(t, 400, cfg.ChunkSize)
	assert.Equal(t, 75, cfg.ChunkOverlap)
	assert.Equal(t, "telecom-wiki", cfg.ReferenceNamespace)
	assert.Equal(t, "customer-docs", cfg.CustomerNamespace)
	assert.Equal(t, 4, cfg.EvalWorkers)
	assert.Equal(t, 5.0, cfg.EvalRequestRate)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("CHUNK_SIZE", "600")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.RetrievalTopK)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)
	assert.Equal(t, 600, cfg.ChunkSize)
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOverlapLargerThanChunk(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveTopK(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RETRIEVAL_TOP_K", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestMalformedNumbersFallBackToDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RETRIEVAL_TOP_K", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.RetrievalTopK)
}
