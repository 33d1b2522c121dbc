package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-request-cache/types"
)

const validConfig = `
name: catalog
version: 1.0.0
logger:
  level: debug
client:
  base_url: http://localhost:8080/api
  timeout: 5s
  retries: 1
  headers:
    Accept: application/json
  circuit_breaker:
    enabled: true
    failure_threshold: 3
    recovery_timeout: 10s
cache:
  name: catalog
  default_ttl: 2m
  prefetch_concurrency: 4
metrics:
  enabled: true
  type: prometheus
  config:
    namespace: catalog
extra:
  feature:
    enabled: true
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_LoadFromBytes(t *testing.T) {
	cfg, err := NewLoader().LoadFromBytes([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "catalog", cfg.Name)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "http://localhost:8080/api", cfg.Client.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "application/json", cfg.Client.Headers["Accept"])
	assert.True(t, cfg.Client.CircuitBreaker.Enabled)
	assert.Equal(t, 3, cfg.Client.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 1, cfg.Client.CircuitBreaker.HalfOpenRequests, "default kept for unset field")
	assert.Equal(t, 2*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 4, cfg.Cache.PrefetchConcurrency)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().LoadFromBytes([]byte(`
name: minimal
version: "1"
client:
  base_url: https://example.com
`))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Cache.DefaultTTL)
	assert.Equal(t, 8, cfg.Cache.PrefetchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoader_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing base url", "name: a\nversion: '1'\n"},
		{"invalid base url", "name: a\nversion: '1'\nclient:\n  base_url: not a url\n"},
		{"missing name", "version: '1'\nclient:\n  base_url: http://x\n"},
		{"bad log level", "name: a\nversion: '1'\nlogger:\n  level: loud\nclient:\n  base_url: http://x\n"},
		{"negative ttl", "name: a\nversion: '1'\nclient:\n  base_url: http://x\ncache:\n  default_ttl: -1s\n"},
		{"metrics without type", "name: a\nversion: '1'\nclient:\n  base_url: http://x\nmetrics:\n  enabled: true\n  type: ''\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFromBytes([]byte(tt.yaml))
			assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
		})
	}
}

func TestLoader_ParseError(t *testing.T) {
	_, err := NewLoader().LoadFromBytes([]byte("name: [unclosed"))
	assert.ErrorIs(t, err, types.ErrConfigParseFailed)
}

func TestLoader_LoadFromFile(t *testing.T) {
	loader := NewLoader()

	_, _, err := loader.LoadFromFile(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, _, err = loader.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	_, _, err = loader.LoadFromFile(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, types.ErrConfigLoadFailed)

	cfg, raw, err := loader.LoadFromFile(context.Background(), writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "catalog", cfg.Name)
	assert.NotEmpty(t, raw)
}

func TestConfigurationManager(t *testing.T) {
	cm, err := NewConfigurationManager(context.Background(), writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "catalog", cm.GetConfig().Name)
	assert.Equal(t, true, cm.GetValue("extra.feature.enabled", false))
	assert.Equal(t, "fallback", cm.GetValue("extra.missing", "fallback"))
	assert.Equal(t, "fallback", cm.GetValue("name.too.deep", "fallback"))

	var cacheCfg types.CacheConfig
	require.NoError(t, cm.GetAs("cache", &cacheCfg))
	assert.Equal(t, 2*time.Minute, cacheCfg.DefaultTTL)

	assert.ErrorIs(t, cm.GetAs("nope", &cacheCfg), types.ErrConfigNotFound)
}

func TestConfigurationManager_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, validConfig)
	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: ["), 0o600))
	assert.Error(t, cm.Load())
	assert.Equal(t, "catalog", cm.GetConfig().Name)
}
