package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Environment variable overrides applied after file load.
const (
	EnvHTTPAddr    = "DATAFORGE_HTTP_ADDR"
	EnvEnvironment = "DATAFORGE_ENVIRONMENT"
)

// Load reads, overrides and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments adjust a shared config file
// without editing it.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv(EnvHTTPAddr); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if env := os.Getenv(EnvEnvironment); env != "" {
		cfg.Platform.Environment = env
	}
}

// applyDefaults fills gaps a partial config file leaves open.
func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":9090"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
}
