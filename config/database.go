package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"mailrun"`
	Password string `env:"PASSWORD" envDefault:"mailrun"`
	Name     string `env:"NAME"     envDefault:"mailrun"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically
	// applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the dashboard stats cache.
// Redis is optional; when disabled the dashboard queries Postgres directly.
type RedisConfig struct {
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains cache tuning for the dashboard stats cache.
type CacheConfig struct {
	// StatsTTL is how long aggregated job stats may be served from cache.
	StatsTTL time.Duration `env:"CACHE_STATS_TTL" envDefault:"30s"`
}
