// Package config loads and holds orchestrator configuration: swarm
// defaults, model tier presets, retry policy, logging level, and the
// learning store's memory bounds. Layered the way the teacher's config
// package is: compiled-in defaults, then a global YAML file, then
// environment variables, then a per-project YAML file — each layer
// overriding only the fields it sets.
package config

import "time"

// Config is the orchestrator's full runtime configuration.
type Config struct {
	Swarm   SwarmConfig   `yaml:"swarm"`
	Model   ModelConfig   `yaml:"model"`
	Retry   RetryConfig   `yaml:"retry"`
	Logging LoggingConfig `yaml:"logging"`
	Memory  MemoryConfig  `yaml:"memory"`

	// Version is never read from file; nothing in this module sets it.
	Version string `yaml:"-"`
}

// SwarmConfig holds the orchestrator-wide swarm scheduling defaults
// applied when a routing decision doesn't override them (spec §4.3/§4.6).
type SwarmConfig struct {
	MaxAgents          int           `yaml:"max_agents"`
	ReportingMode      string        `yaml:"reporting_mode"`      // sparse | full
	ConflictResolution string        `yaml:"conflict_resolution"` // coordinator | vote
	ExecutionMode      string        `yaml:"execution_mode"`      // dag | optimistic
	Timeout            time.Duration `yaml:"timeout"`
}

// ModelConfig selects the default model tier preset and manual overrides.
type ModelConfig struct {
	Preset          string  `yaml:"preset"` // fast | balanced | powerful
	Provider        string  `yaml:"provider"`
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// RetryConfig holds API-call retry/backoff settings. internal/recovery does
// not read it: its retry limits come from its own pattern table, with a
// fixed fallback of 3.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// LoggingConfig holds the structured logger's level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MemoryConfig holds learning-store settings. internal/learning does not
// read it; its history ring bound is that package's own constant.
type MemoryConfig struct {
	MaxSolutions int  `yaml:"max_solutions"`
	AutoExport   bool `yaml:"auto_export"`
}
