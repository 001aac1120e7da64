package config

import (
	"fmt"
	"strings"
)

// ServiceMode identifies a runnable service within the mailrun process.
type ServiceMode string

const (
	// ServiceModeHTTP runs the upload form, dashboard, and JSON API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDispatcher runs the background send pipeline.
	ServiceModeDispatcher ServiceMode = "dispatcher"
)

// Valid returns true if the ServiceMode is a known service.
func (m ServiceMode) Valid() bool {
	return m == ServiceModeHTTP || m == ServiceModeDispatcher
}

// ParseServices parses a comma-separated service list into a set of modes.
// Unknown service names are an error so typos fail fast at startup.
func ParseServices(s string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !mode.Valid() {
			return nil, fmt.Errorf("unknown service %q (valid: http, dispatcher)", name)
		}
		services[mode] = true
	}
	return services, nil
}
