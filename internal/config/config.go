package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is not given.
const DefaultPath = ".devprobe/config.yaml"

// Config holds all devprobe configuration.
type Config struct {
	// Debug target resolution
	Target TargetConfig `yaml:"target"`

	// Protocol socket behaviour
	Transport TransportConfig `yaml:"transport"`

	// Diagnostics collection windows
	Network NetworkConfig `yaml:"network"`
	Trace   TraceConfig   `yaml:"trace"`

	// Step execution
	Automation AutomationConfig `yaml:"automation"`

	// Operation gate
	Security SecurityConfig `yaml:"security"`

	// Operation journal
	Audit AuditConfig `yaml:"audit"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig configures how the debug target is found.
type TargetConfig struct {
	Host             string `yaml:"host"`
	Ports            []int  `yaml:"ports"`
	WebSocketURL     string `yaml:"websocket_url"` // bypasses discovery when set
	DiscoveryTimeout string `yaml:"discovery_timeout"`
}

// TransportConfig configures debug-protocol sessions.
type TransportConfig struct {
	RequestTimeout string `yaml:"request_timeout"`
	DialTimeout    string `yaml:"dial_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Host:             "127.0.0.1",
			Ports:            []int{9222, 9223, 9224, 9225, 9226, 9227, 9228, 9229, 9230},
			DiscoveryTimeout: "2s",
		},

		Transport: TransportConfig{
			RequestTimeout: "10s",
			DialTimeout:    "5s",
		},

		Network: NetworkConfig{
			DurationMs:      5000,
			IdleMs:          800,
			MaxRequests:     500,
			IncludeFailures: true,
		},

		Trace: TraceConfig{
			DurationMs: 5000,
			Categories: []string{"devtools.timeline", "disabled-by-default-v8.cpu_profiler"},
		},

		Automation: AutomationConfig{
			Backend:      BackendDirect,
			PollInterval: "200ms",
			WaitTimeout:  "5s",
			IdleMs:       800,
			LogLines:     200,
		},

		Security: SecurityConfig{
			Enabled:   true,
			CacheSize: 1000,
		},

		Audit: AuditConfig{
			Enabled:      false,
			DatabasePath: ".devprobe/audit.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DEVPROBE_TARGET_URL"); url != "" {
		c.Target.WebSocketURL = url
	}
	if port := os.Getenv("DEVPROBE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Target.Ports = []int{p}
		}
	}
	if backend := os.Getenv("DEVPROBE_BACKEND"); backend != "" {
		c.Automation.Backend = backend
	}
	if path := os.Getenv("DEVPROBE_DB"); path != "" {
		c.Audit.DatabasePath = path
		c.Audit.Enabled = true
	}
	if level := os.Getenv("DEVPROBE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
		c.Logging.DebugMode = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetRequestTimeout returns the per-request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Transport.RequestTimeout, 10*time.Second)
}

// GetDialTimeout returns the socket dial timeout as a duration.
func (c *Config) GetDialTimeout() time.Duration {
	return parseDuration(c.Transport.DialTimeout, 5*time.Second)
}

// GetDiscoveryTimeout returns the per-port discovery timeout as a duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return parseDuration(c.Target.DiscoveryTimeout, 2*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target.WebSocketURL == "" && len(c.Target.Ports) == 0 {
		return fmt.Errorf("no debug target configured (set target.websocket_url, target.ports or DEVPROBE_PORT)")
	}
	for _, p := range c.Target.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid target port: %d", p)
		}
	}
	if err := c.Automation.Validate(); err != nil {
		return err
	}
	if c.Network.MaxRequests < 0 || c.Network.DurationMs < 0 || c.Network.IdleMs < 0 {
		return fmt.Errorf("network window limits must not be negative")
	}
	if c.Trace.DurationMs < 0 {
		return fmt.Errorf("trace duration must not be negative")
	}
	if c.Audit.Enabled && c.Audit.DatabasePath == "" {
		return fmt.Errorf("audit enabled but audit.database_path is empty")
	}
	return nil
}
