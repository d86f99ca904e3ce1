// Package config provides unified configuration loading for the dashboard
// backend: defaults, YAML file, then environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("IPSE").
//	    Load()
package config

import "time"

// Config is the complete backend configuration.
type Config struct {
	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database configures the relational record store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Documents configures the version/profile document store.
	Documents DocumentsConfig `yaml:"documents" env:"DOCUMENTS"`

	// Cache configures the context-record cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// LLM configures the provider client.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Generation configures the generation engine.
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// Auth configures the identity adapter.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// DatabaseConfig configures the relational store connection.
type DatabaseConfig struct {
	// Driver: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" env:"DSN"`
	// MaxIdleConns is the max number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// MaxOpenConns is the max number of open connections.
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// ConnMaxLifetime bounds connection reuse.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// MigrationsEnabled runs schema migrations on startup.
	MigrationsEnabled bool `yaml:"migrations_enabled" env:"MIGRATIONS_ENABLED"`
}

// DocumentsConfig configures the document store connection.
type DocumentsConfig struct {
	// URI is the mongodb connection string.
	URI string `yaml:"uri" env:"URI"`
	// Database is the database name.
	Database string `yaml:"database" env:"DATABASE"`
	// Timeout bounds individual store operations.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig configures the redis context cache.
type CacheConfig struct {
	// Enabled toggles the cache; aggregation works without it.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Addr is the redis address.
	Addr string `yaml:"addr" env:"ADDR"`
	// Password is the redis password.
	Password string `yaml:"password" env:"PASSWORD"`
	// DB is the redis database number.
	DB int `yaml:"db" env:"DB"`
	// TTL is the context-record expiry.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LLMConfig configures the provider client.
type LLMConfig struct {
	// Provider is the provider identifier.
	Provider string `yaml:"provider" env:"PROVIDER"`
	// Model is the model identifier.
	Model string `yaml:"model" env:"MODEL"`
	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Timeout bounds one generation stream end to end.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// MaxTokens caps the completion size.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// RequestsPerMinute rate-limits provider calls. Zero disables limiting.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// GenerationConfig configures the generation engine.
type GenerationConfig struct {
	// PromptTokenBudget logs a warning when a rendered prompt exceeds it.
	PromptTokenBudget int `yaml:"prompt_token_budget" env:"PROMPT_TOKEN_BUDGET"`
	// FinalizeRetries bounds optimistic finalize retries.
	FinalizeRetries int `yaml:"finalize_retries" env:"FINALIZE_RETRIES"`
	// MigrateParallelism bounds bulk-migration concurrency.
	MigrateParallelism int `yaml:"migrate_parallelism" env:"MIGRATE_PARALLELISM"`
}

// AuthConfig configures the identity adapter.
type AuthConfig struct {
	// JWTSecret verifies HMAC-signed bearer tokens.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// TelemetryConfig configures OTel export.
type TelemetryConfig struct {
	// Enabled toggles exporters; disabled means noop providers.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate is the trace sampling ratio.
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
