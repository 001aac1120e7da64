package config

// ObservabilityConfig contains metrics emission configuration.
type ObservabilityConfig struct {
	// StatsdEnabled toggles StatsD metric emission.
	StatsdEnabled bool `env:"STATSD_ENABLED" envDefault:"false"`
	// StatsdAddress is the UDP host:port of the StatsD collector.
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"localhost:8125"`
	// StatsdPrefix is prepended to every metric name.
	StatsdPrefix string `env:"STATSD_PREFIX" envDefault:"mailrun"`
}

// Sanitize applies guardrails to observability configuration values.
func (c *ObservabilityConfig) Sanitize() {
	if c.StatsdEnabled && c.StatsdAddress == "" {
		c.StatsdEnabled = false
	}
	if c.StatsdPrefix == "" {
		c.StatsdPrefix = "mailrun"
	}
}
