package config

import (
	"fmt"
	"time"
)

// Automation backends.
const (
	BackendDirect   = "direct"
	BackendAssisted = "assisted"
)

// AutomationConfig configures step execution.
type AutomationConfig struct {
	Backend      string `yaml:"backend"`       // direct, assisted
	PollInterval string `yaml:"poll_interval"` // wait-style steps
	WaitTimeout  string `yaml:"wait_timeout"`
	IdleMs       int    `yaml:"idle_ms"`
	LogLines     int    `yaml:"log_lines"`
}

// GetPollInterval returns the wait polling interval.
func (a AutomationConfig) GetPollInterval() time.Duration {
	return parseDuration(a.PollInterval, 200*time.Millisecond)
}

// GetWaitTimeout returns the upper bound for one wait step.
func (a AutomationConfig) GetWaitTimeout() time.Duration {
	return parseDuration(a.WaitTimeout, 5*time.Second)
}

// GetIdle returns the quiet period wait_for_idle requires.
func (a AutomationConfig) GetIdle() time.Duration {
	if a.IdleMs <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(a.IdleMs) * time.Millisecond
}

// Validate checks the backend name.
func (a AutomationConfig) Validate() error {
	switch a.Backend {
	case BackendDirect, BackendAssisted:
		return nil
	default:
		return fmt.Errorf("invalid automation backend: %q (valid: %s, %s)", a.Backend, BackendDirect, BackendAssisted)
	}
}
