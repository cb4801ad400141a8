package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XYLEM_DATA_DIR", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite-vec", cfg.VectorBackend)
	assert.Equal(t, "local", cfg.Embedder)
	assert.Equal(t, 10*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, 64*1024, cfg.MaxContentBytes)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("XYLEM_DATA_DIR", t.TempDir())
	t.Setenv("XYLEM_VECTOR_BACKEND", "chromem")
	t.Setenv("XYLEM_EMBED_TIMEOUT", "3s")
	t.Setenv("XYLEM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "chromem", cfg.VectorBackend)
	assert.Equal(t, 3*time.Second, cfg.EmbedTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("XYLEM_DATA_DIR", t.TempDir())
	t.Setenv("XYLEM_VECTOR_BACKEND", "pinecone")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOpenAIRequiresKey(t *testing.T) {
	t.Setenv("XYLEM_DATA_DIR", t.TempDir())
	t.Setenv("XYLEM_EMBEDDER", "openai")
	t.Setenv("XYLEM_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabasePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XYLEM_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.MetadataPath(), dir)
	assert.Contains(t, cfg.VectorPath(), dir)
	assert.Contains(t, cfg.GraphPath(), dir)
}
