package demoserver

import "time"

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// MaxDelay caps the delay /slow will honour.
	MaxDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:     9999,
		MaxDelay: 10 * time.Second,
	}
}
