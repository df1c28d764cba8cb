// Package config defines the application configuration: platform identity,
// the admin HTTP surface, declared sources and pipelines. Configuration is
// loaded from JSON with environment variable overrides and validated before
// the engine starts.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/dataforge/types"
)

// Config represents the complete application configuration.
type Config struct {
	Version   string                   `json:"version"` // Semantic version for config change tracking
	Platform  PlatformConfig           `json:"platform"`
	HTTP      HTTPConfig               `json:"http"`
	Sources   []types.DataSourceConfig `json:"sources"`
	Pipelines []PipelineConfig         `json:"pipelines,omitempty"`
}

// PlatformConfig defines platform identity.
type PlatformConfig struct {
	Org         string `json:"org"`                   // Organization namespace
	ID          string `json:"id"`                    // Deployment identifier
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// HTTPConfig configures the admin HTTP server exposing metrics and health.
type HTTPConfig struct {
	Addr            string        `json:"addr"` // listen address, e.g. ":9090"
	ReadTimeout     time.Duration `json:"read_timeout,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty"`
}

// PipelineConfig declares a pipeline to create at startup. Sources reference
// ids from the top-level sources list.
type PipelineConfig struct {
	Name        string                 `json:"name"`
	Mode        types.PipelineMode     `json:"mode"`
	Sources     []string               `json:"sources"`
	Sinks       []types.DataSinkConfig `json:"sinks,omitempty"`
	BatchSize   int                    `json:"batch_size,omitempty"`
	Parallelism int                    `json:"parallelism,omitempty"`
	RetryPolicy types.RetryPolicy      `json:"retry_policy,omitempty"`
	OnError     types.ErrorPolicy      `json:"on_error,omitempty"`
	// CheckpointInterval overrides the batch tick period for this pipeline.
	CheckpointInterval time.Duration `json:"checkpoint_interval,omitempty"`
	AutoStart          bool          `json:"auto_start,omitempty"`
}

// Default returns a minimal runnable configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Platform: PlatformConfig{
			Org:         "c360",
			ID:          "dataforge-local",
			Environment: "dev",
		},
		HTTP: HTTPConfig{
			Addr:            ":9090",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the configuration for completeness and internal
// consistency. Pipeline source references must resolve to declared sources.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	if c.Platform.Org == "" {
		return fmt.Errorf("config: platform.org is required")
	}
	if c.Platform.ID == "" {
		return fmt.Errorf("config: platform.id is required")
	}

	sourceIDs := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("config: sources[%d]: %w", i, err)
		}
		if sourceIDs[src.ID] {
			return fmt.Errorf("config: duplicate source id %q", src.ID)
		}
		sourceIDs[src.ID] = true
	}

	names := make(map[string]bool, len(c.Pipelines))
	for i, pc := range c.Pipelines {
		if pc.Name == "" {
			return fmt.Errorf("config: pipelines[%d]: name is required", i)
		}
		if names[pc.Name] {
			return fmt.Errorf("config: duplicate pipeline name %q", pc.Name)
		}
		names[pc.Name] = true

		if !pc.Mode.Valid() {
			return fmt.Errorf("config: pipeline %q: unknown mode %q", pc.Name, pc.Mode)
		}
		if len(pc.Sources) == 0 {
			return fmt.Errorf("config: pipeline %q: at least one source is required", pc.Name)
		}
		for _, sid := range pc.Sources {
			if !sourceIDs[sid] {
				return fmt.Errorf("config: pipeline %q references undeclared source %q", pc.Name, sid)
			}
		}
		for j, sc := range pc.Sinks {
			if err := sc.Validate(); err != nil {
				return fmt.Errorf("config: pipeline %q: sinks[%d]: %w", pc.Name, j, err)
			}
		}
	}

	return nil
}
