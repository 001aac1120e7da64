package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"HTTP_PORT" envDefault:"8080"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// MaxUploadBytes bounds the multipart upload size (CSV + HTML template).
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"16777216"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (c *HTTPConfig) Sanitize() {
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 16 << 20
	}
}

// UploadConfig contains upload artifact storage configuration.
type UploadConfig struct {
	// Dir is the directory where uploaded recipient lists and templates
	// are stored. Created on startup if missing.
	Dir string `env:"UPLOAD_DIR" envDefault:"uploads"`
}

// Sanitize applies guardrails to upload configuration values.
func (c *UploadConfig) Sanitize() {
	if c.Dir == "" {
		c.Dir = "uploads"
	}
}
