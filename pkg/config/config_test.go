package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 20, cfg.HistoryWindow)
	assert.Equal(t, 0.4, cfg.FuzzyThreshold)
	assert.Equal(t, ExtractionLexical, cfg.Extraction)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model.Name)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, uint32(5), cfg.Breaker.MaxFailures)
	assert.Empty(t, cfg.Model.APIKey)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := `
addr: ":9090"
history_window: 10
extraction: model
model:
  name: gemini-2.5-flash
  timeout: 5s
breaker:
  max_failures: 2
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roster.yaml"), []byte(yaml), 0o600))
	t.Setenv("ROSTER_MODEL_API_KEY", "from-env")
	t.Setenv("ROSTER_HISTORY_WINDOW", "4")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 4, cfg.HistoryWindow, "env overrides file")
	assert.Equal(t, ExtractionModel, cfg.Extraction)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, 5*time.Second, cfg.Model.Timeout)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, uint32(2), cfg.Breaker.MaxFailures)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadGeminiKeyFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Model.APIKey)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(New(), "does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Extraction: ExtractionLexical, HistoryWindow: 20, FuzzyThreshold: 0.4}
	require.NoError(t, base.Validate())

	bad := base
	bad.Extraction = "magic"
	assert.Error(t, bad.Validate())

	bad = base
	bad.FuzzyThreshold = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.HistoryWindow = -1
	assert.Error(t, bad.Validate())
}
