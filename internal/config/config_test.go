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
	t.Setenv("APEX_PREVIEW_CONFIG", "")
	t.Setenv("PREVIEW_STRATEGY", "")
	t.Setenv("TRANSPILE_MODE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StrategyInline, cfg.Preview.Strategy)
	assert.Equal(t, TranspileBrowser, cfg.Bundle.TranspileMode)
	assert.Equal(t, 100, cfg.Cache.Size)
	assert.Equal(t, time.Hour, cfg.Preview.LinkTTL)
	assert.NotEmpty(t, cfg.Bundle.ReactURL)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preview.yaml")
	yml := `
port: "9090"
preview:
  strategy: devserver
  link_ttl: 30m
bundle:
  transpile_mode: server
  minify: true
cache:
  size: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("PREVIEW_STRATEGY", "")
	t.Setenv("TRANSPILE_MODE", "")
	t.Setenv("CACHE_SIZE", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "env must win over the file")
	assert.Equal(t, StrategyDevServer, cfg.Preview.Strategy)
	assert.Equal(t, 30*time.Minute, cfg.Preview.LinkTTL)
	assert.Equal(t, TranspileServer, cfg.Bundle.TranspileMode)
	assert.True(t, cfg.Bundle.Minify)
	assert.Equal(t, 5, cfg.Cache.Size)
}

func TestValidateRejectsUnknownNames(t *testing.T) {
	cfg := Default()
	cfg.Preview.Strategy = "webcontainer"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bundle.TranspileMode = "swc"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Limits.Burst = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.IsProduction())
	cfg.Environment = "prod"
	assert.True(t, cfg.IsProduction())
}

func TestAllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("APEX_PREVIEW_CONFIG", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example ,,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
