package config

import "time"

// DefaultConfig returns the baseline configuration. YAML and environment
// overrides are applied on top of these values.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver:            "postgres",
			DSN:               "postgres://localhost:5432/ipse?sslmode=disable",
			MaxIdleConns:      10,
			MaxOpenConns:      100,
			ConnMaxLifetime:   time.Hour,
			MigrationsEnabled: true,
		},
		Documents: DocumentsConfig{
			URI:      "mongodb://localhost:27017",
			Database: "ipse",
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o",
			Timeout:           120 * time.Second,
			MaxTokens:         4096,
			RequestsPerMinute: 60,
		},
		Generation: GenerationConfig{
			PromptTokenBudget:  6000,
			FinalizeRetries:    3,
			MigrateParallelism: 4,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "ipse-dashboard-backend",
			SampleRate:   1.0,
		},
	}
}
