package domain

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Backend is the core-banking REST API this service aggregates.
	Backend BackendConfig `json:"backend"`

	// Component configurations
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Repository RepositoryConfig `json:"repository"`

	// Refresh controls the background snapshot warmup.
	Refresh RefreshConfig `json:"refresh"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// BackendConfig holds settings for the outbound core-banking API client.
type BackendConfig struct {
	BaseURL string        `json:"baseUrl" envconfig:"BASE_URL"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// RefreshConfig holds background warmup settings.
type RefreshConfig struct {
	// Enabled turns the periodic snapshot warmup on.
	Enabled bool `json:"enabled"`

	// Interval between warmup refreshes.
	Interval time.Duration `json:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName" envconfig:"SERVICE_NAME"`
}

// DefaultConfig returns the default single-node configuration:
// in-process cache, channel bus, SQLite snapshot store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:9000/api/v1",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			DefaultTTL:   5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// LoadConfig builds the configuration from defaults overridden by
// KESTREL_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("kestrel", cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
