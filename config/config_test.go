package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/dataforge/types"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Sources = []types.DataSourceConfig{
		{ID: "prices", Type: types.SourceMarket, Provider: "coingecko"},
	}
	cfg.Pipelines = []PipelineConfig{
		{Name: "prices-hourly", Mode: types.ModeBatch, Sources: []string{"prices"}},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing version", func(c *Config) { c.Version = "" }},
		{"missing org", func(c *Config) { c.Platform.Org = "" }},
		{"missing platform id", func(c *Config) { c.Platform.ID = "" }},
		{"bad source", func(c *Config) { c.Sources[0].Provider = "" }},
		{"duplicate source", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"unnamed pipeline", func(c *Config) { c.Pipelines[0].Name = "" }},
		{"duplicate pipeline", func(c *Config) { c.Pipelines = append(c.Pipelines, c.Pipelines[0]) }},
		{"bad mode", func(c *Config) { c.Pipelines[0].Mode = "warp" }},
		{"no pipeline sources", func(c *Config) { c.Pipelines[0].Sources = nil }},
		{"dangling source ref", func(c *Config) { c.Pipelines[0].Sources = []string{"ghost"} }},
		{"bad sink", func(c *Config) {
			c.Pipelines[0].Sinks = []types.DataSinkConfig{{Type: "teleport"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClone(t *testing.T) {
	cfg := validConfig()
	clone := cfg.Clone()

	clone.Sources[0].ID = "mutated"
	clone.Platform.Org = "other"

	assert.Equal(t, "prices", cfg.Sources[0].ID)
	assert.Equal(t, "c360", cfg.Platform.Org)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "1.0.0",
		"platform": {"org": "c360", "id": "test"},
		"sources": [
			{"id": "prices", "type": "market", "provider": "coingecko"}
		],
		"pipelines": [
			{"name": "prices", "mode": "streaming", "sources": ["prices"], "auto_start": true}
		]
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Platform.ID)
	require.Len(t, cfg.Pipelines, 1)
	assert.True(t, cfg.Pipelines[0].AutoStart)

	// Defaults filled for fields the file omits
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Positive(t, cfg.HTTP.ShutdownTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "1.0.0",
		"platform": {"org": "c360", "id": "test"},
		"http": {"addr": ":8000"}
	}`), 0o644))

	t.Setenv(EnvHTTPAddr, ":7000")
	t.Setenv(EnvEnvironment, "prod")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "prod", cfg.Platform.Environment)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
