package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"groq", "ollama"}, cfg.LLMChain)
	assert.Equal(t, 768, cfg.VectorDims)
	assert.Equal(t, 60*time.Second, cfg.StageTimeout)
	assert.Equal(t, 120*time.Second, cfg.DivergenceTimeout)
	assert.False(t, cfg.SuppressDegradedAlerts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VENTRO_LLM_CHAIN", "anthropic, ollama")
	t.Setenv("VENTRO_VECTOR_DIMS", "64")
	t.Setenv("VENTRO_STAGE_TIMEOUT", "10s")
	t.Setenv("VENTRO_DIVERGENCE_SUPPRESS_DEGRADED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "ollama"}, cfg.LLMChain)
	assert.Equal(t, 64, cfg.VectorDims)
	assert.Equal(t, 10*time.Second, cfg.StageTimeout)
	assert.True(t, cfg.SuppressDegradedAlerts)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("VENTRO_LLM_CHAIN", "groq,banana")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsExplicitDeterministic(t *testing.T) {
	t.Setenv("VENTRO_LLM_CHAIN", "groq,deterministic")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsZeroDims(t *testing.T) {
	t.Setenv("VENTRO_VECTOR_DIMS", "0")
	_, err := Load()
	assert.Error(t, err)
}
