package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
node:
  name: rack-01
logger:
  level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 8766, cfg.Server.GRPCPort)
	assert.Equal(t, "rack-01", cfg.Node.Name)
	assert.NotEmpty(t, cfg.Node.ID)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 720, cfg.Metrics.MaxDataPoints)
	assert.True(t, cfg.Alert.LoadDefaultRules)
	assert.True(t, cfg.Discovery.Enabled)
	assert.False(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, "skywidget-alerts", cfg.Elasticsearch.IndexPrefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  enabled: false
alert:
  load_default_rules: false
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Discovery.Enabled)
	assert.False(t, cfg.Alert.LoadDefaultRules)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Load()
	cfg.Node.Name = "saved"
	cfg.Monitor.EvaluateInterval = 30

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveToFile(path, cfg))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Node.ID, loaded.Node.ID)
	assert.Equal(t, "saved", loaded.Node.Name)
	assert.Equal(t, 30, loaded.Monitor.EvaluateInterval)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("NODE_NAME", "env-node")
	t.Setenv("ES_ENABLED", "true")
	t.Setenv("ES_ADDRESSES", "http://a:9200, http://b:9200")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, "env-node", cfg.Node.Name)
	assert.True(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Elasticsearch.Addresses)
	assert.InDelta(t, 2.5, cfg.RateLimit.RequestsPerSecond, 0.0001)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port", func(c *Config) { c.Server.HTTPPort = 70000 }},
		{"same ports", func(c *Config) { c.Server.GRPCPort = c.Server.HTTPPort }},
		{"log level", func(c *Config) { c.Logger.Level = "trace" }},
		{"interval", func(c *Config) { c.Monitor.EvaluateInterval = -1 }},
		{"concurrency", func(c *Config) { c.Alert.DeliveryConcurrency = -1 }},
		{"service type", func(c *Config) { c.Discovery.ServiceType = "skywidget._tcp" }},
		{"liveness", func(c *Config) { c.Discovery.LivenessTimeoutSeconds = c.Discovery.CleanupIntervalSeconds }},
		{"browse window", func(c *Config) { c.Discovery.BrowseWindowSeconds = 60 }},
		{"es addresses", func(c *Config) {
			c.Elasticsearch.Enabled = true
			c.Elasticsearch.Addresses = nil
		}},
		{"rate limit", func(c *Config) { c.RateLimit.Burst = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "10s", cfg.Monitor.Evaluate().String())
	assert.Equal(t, "1s", cfg.Discovery.PollTimeout().String())
	assert.Equal(t, "30s", cfg.Discovery.LivenessTimeout().String())
	assert.Equal(t, "1h0m0s", cfg.Metrics.MaxAge().String())
}
