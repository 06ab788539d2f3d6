package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"evalplan"`
	Password string `env:"PASSWORD"                envDefault:"evalplan"`
	Name     string `env:"NAME"                    envDefault:"evalplan"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Enabled controls whether Redis is used for the prompt cache. When
	// false, prompt templates are cached in process memory instead.
	Enabled bool `env:"ENABLED" envDefault:"false"`
}

// CacheConfig contains prompt template cache configuration.
type CacheConfig struct {
	// PromptTTL is the TTL for cached prompt templates. Zero disables expiry;
	// templates then live until explicitly invalidated.
	PromptTTL time.Duration `env:"CACHE_PROMPT_TTL" envDefault:"30m"`

	// PromptDir is the directory holding the on-disk prompt template files.
	PromptDir string `env:"CACHE_PROMPT_DIR" envDefault:"prompts"`
}
