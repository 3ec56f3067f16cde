package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: REST API server and state store client configuration
//   - services.go: Service modes, transport and worker configuration
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// IsDev switches logging to text output at debug level.
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// REST API server and the client other services use to reach it.
	HTTP       HTTPConfig
	StateStore StateStoreClientConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"api"`

	// Message transport between pipeline stages
	Transport TransportConfig

	// Stage worker pools
	Partitioner PartitionerConfig
	Processor   ProcessorConfig
	Sink        SinkConfig

	// Harvester scheduler configuration
	Harvester HarvesterConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.StateStore.Sanitize()
	c.Transport.Sanitize()
	c.Partitioner.Sanitize()
	c.Processor.Sanitize()
	c.Sink.Sanitize()
	c.Harvester.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode falls back to APP_ENV when DEV is unset.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsEnabled returns true if the given service mode is enabled.
func (c *AppConfig) IsEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// NeedsDatabase reports whether any enabled service talks to Postgres directly.
// Stage workers pointed at a remote state store only need the database when
// messages travel over the Postgres transport.
func (c *AppConfig) NeedsDatabase() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	if services[ServiceModeAPI] || services[ServiceModeReaper] {
		return true
	}
	if c.Transport.Kind == TransportPostgres {
		return true
	}
	return !c.StateStore.IsRemote()
}

// NeedsRedis reports whether Redis must be connected.
func (c *AppConfig) NeedsRedis() bool {
	return c.Transport.Kind == TransportRedis || c.Processor.FlowCacheEnabled
}
