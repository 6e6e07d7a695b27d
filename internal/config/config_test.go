package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLensEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "JIRA_LENS_EMBEDDING_API_KEY", "JIRA_LENS_EMBEDDING_MODEL",
		"JIRA_LENS_INDEX_ENABLED", "JIRA_LENS_INDEX_REFRESH_INTERVAL", "JIRA_LENS_CATALOG_TTL",
		"JIRA_LENS_SEARCH_LIMIT", "JIRA_LENS_LOG_LEVEL", "JIRA_LENS_INDEX_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Hour, cfg.Catalog.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Index.RefreshInterval)
	assert.InDelta(t, 0.72, cfg.Search.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.33, cfg.Search.MinScore, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	clearLensEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "jira-lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  ttl: 30m
search:
  default_limit: 5
index:
  path: /tmp/x.vec
  refresh_interval: 2m
embedding:
  model: custom-model
  dimensions: 256
log:
  level: debug
`), 0o600))

	t.Setenv("JIRA_LENS_INDEX_REFRESH_INTERVAL", "45")
	t.Setenv("JIRA_LENS_EMBEDDING_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Catalog.TTL)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, "/tmp/x.vec", cfg.Index.Path)
	assert.Equal(t, 45*time.Second, cfg.Index.RefreshInterval)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.SemanticEnabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearLensEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  min_score: 3\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestSemanticDisabledWithoutKey(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = ""
	assert.False(t, cfg.SemanticEnabled())

	cfg.Embedding.APIKey = "k"
	cfg.Index.Enabled = false
	assert.False(t, cfg.SemanticEnabled())
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
export JIRA_LENS_TEST_A="from-file"
JIRA_LENS_TEST_B='kept'
not a pair
`), 0o600))

	t.Setenv("JIRA_LENS_TEST_A", "from-env")
	t.Setenv("JIRA_LENS_TEST_B", "")
	require.NoError(t, os.Unsetenv("JIRA_LENS_TEST_B"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("JIRA_LENS_TEST_A"))
	assert.Equal(t, "kept", os.Getenv("JIRA_LENS_TEST_B"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
