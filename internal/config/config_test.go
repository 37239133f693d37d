package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Extract.MaxTreeLines)
	assert.Equal(t, int64(40<<10), cfg.Extract.MaxFileBytes)
	assert.Equal(t, 1200*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 1, cfg.Capacity)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_API_URL", "http://ollama:11434/")
	t.Setenv("OLLAMA_MODEL", "qwen2.5:7b")
	t.Setenv("OLLAMA_TIMEOUT", "90")
	t.Setenv("ARCHGEN_CAPACITY", "3")
	t.Setenv("ARCHGEN_QUEUE_TIMEOUT", "2s")
	t.Setenv("PORT", "9000")
	t.Setenv("ARCHGEN_MAX_WALK_DEPTH", "3")
	t.Setenv("ARCHGEN_MAX_TREE_LINES", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://ollama:11434", cfg.Model.BaseURL)
	assert.Equal(t, "qwen2.5:7b", cfg.Model.Name)
	assert.Equal(t, 90*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 3, cfg.Capacity)
	assert.Equal(t, 2*time.Second, cfg.QueueTimeout)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 3, cfg.Extract.MaxDepth)
	assert.Equal(t, 1, cfg.Extract.MaxTreeLines)
	assert.False(t, cfg.Artifact.Enabled)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("ARCHGEN_CAPACITY", "zero")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("ARCHGEN_CAPACITY", "0")
	_, err = Load()
	require.ErrorContains(t, err, "capacity")
}

func TestValidate_DepthBounds(t *testing.T) {
	cfg := Default()
	cfg.Repo.MinDepth = 4
	require.Error(t, cfg.Validate())
}
