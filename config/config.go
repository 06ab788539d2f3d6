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
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - llm.go: Model provider configuration
//   - services.go: Service mode, worker, and sweeper configuration
type AppConfig struct {
	// IsDev controls development mode behavior (relaxed guardrails, text logs).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// QueueBackend selects the job store implementation.
	// Valid values: postgres, memory. The memory backend is for local
	// development and tests only; jobs do not survive a restart.
	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"postgres"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Model provider configuration
	LLM LLMConfig

	// Worker loop configuration
	Worker WorkerConfig

	// Retention sweeper configuration
	Sweeper SweeperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.LLM.Sanitize()
	c.Worker.Sanitize()
	c.Sweeper.Sanitize()
	c.Observability.Sanitize()

	c.QueueBackend = strings.ToLower(strings.TrimSpace(c.QueueBackend))
	if c.QueueBackend != QueueBackendMemory {
		c.QueueBackend = QueueBackendPostgres
	}

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// Queue backend names accepted by QUEUE_BACKEND.
const (
	QueueBackendPostgres = "postgres"
	QueueBackendMemory   = "memory"
)

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsWorkerEnabled returns true if the job worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsSweeperEnabled returns true if the retention sweeper service is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSweeper]
}
