package config

import "time"

// NetworkConfig sets the default network collection window.
type NetworkConfig struct {
	DurationMs      int  `yaml:"duration_ms"`
	IdleMs          int  `yaml:"idle_ms"`
	MaxRequests     int  `yaml:"max_requests"`
	IncludeFailures bool `yaml:"include_failures"`
}

// Duration returns the window duration.
func (n NetworkConfig) Duration() time.Duration {
	return time.Duration(n.DurationMs) * time.Millisecond
}

// Idle returns the idle gap that closes the window.
func (n NetworkConfig) Idle() time.Duration {
	return time.Duration(n.IdleMs) * time.Millisecond
}

// TraceConfig sets the default trace run.
type TraceConfig struct {
	DurationMs int      `yaml:"duration_ms"`
	Categories []string `yaml:"categories"`
}

// Duration returns how long tracing runs before Tracing.end is sent.
func (t TraceConfig) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}
