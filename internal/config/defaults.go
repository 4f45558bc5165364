package config

import "time"

// Default tuning constants, centralized per the teacher's convention so
// magic numbers don't scatter across packages.
const (
	DefaultMaxAgents     = 5
	DefaultAgentTimeout  = 30 * time.Minute
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultHTTPTimeout   = 120 * time.Second
	DefaultMaxSolutions  = 500
)

// DefaultConfig returns a Config populated with the defaults above.
func DefaultConfig() *Config {
	return &Config{
		Swarm: SwarmConfig{
			MaxAgents:          DefaultMaxAgents,
			ReportingMode:      "sparse",
			ConflictResolution: "coordinator",
			ExecutionMode:      "dag",
			Timeout:            DefaultAgentTimeout,
		},
		Model: ModelConfig{
			Preset: "balanced",
		},
		Retry: RetryConfig{
			MaxRetries:  DefaultMaxRetries,
			RetryDelay:  DefaultRetryDelay,
			HTTPTimeout: DefaultHTTPTimeout,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Memory: MemoryConfig{
			MaxSolutions: DefaultMaxSolutions,
			AutoExport:   false,
		},
	}
}
