package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DEVPROBE_TARGET_URL", "DEVPROBE_PORT", "DEVPROBE_BACKEND", "DEVPROBE_DB", "DEVPROBE_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Network.DurationMs != 5000 || cfg.Network.IdleMs != 800 || cfg.Network.MaxRequests != 500 {
		t.Errorf("unexpected network defaults: %+v", cfg.Network)
	}
	if !cfg.Network.IncludeFailures {
		t.Error("expected include_failures default true")
	}
	if cfg.Automation.Backend != BackendDirect {
		t.Errorf("expected direct backend, got %s", cfg.Automation.Backend)
	}
	if cfg.Security.CacheSize != 1000 {
		t.Errorf("expected cache size 1000, got %d", cfg.Security.CacheSize)
	}
	assert.Equal(t, []string{"devtools.timeline", "disabled-by-default-v8.cpu_profiler"}, cfg.Trace.Categories)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Target.WebSocketURL = "ws://127.0.0.1:9222/devtools/page/ABC"
	cfg.Automation.Backend = BackendAssisted
	cfg.Trace.Categories = []string{"v8"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Target.WebSocketURL, loaded.Target.WebSocketURL)
	assert.Equal(t, BackendAssisted, loaded.Automation.Backend)
	assert.Equal(t, []string{"v8"}, loaded.Trace.Categories)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  idle_ms: 300\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Network.IdleMs)
	assert.Equal(t, 5000, cfg.Network.DurationMs)
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("port replaces candidate list", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVPROBE_PORT", "9333")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, []int{9333}, cfg.Target.Ports)
	})

	t.Run("bad port is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVPROBE_PORT", "nope")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Len(t, cfg.Target.Ports, 9)
	})

	t.Run("db path enables audit", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVPROBE_DB", "/tmp/x.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Audit.Enabled)
		assert.Equal(t, "/tmp/x.db", cfg.Audit.DatabasePath)
	})

	t.Run("log level turns on debug mode", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVPROBE_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Logging.DebugMode)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no target", func(c *Config) { c.Target.Ports = nil }, true},
		{"url without ports", func(c *Config) { c.Target.Ports = nil; c.Target.WebSocketURL = "ws://x" }, false},
		{"bad port", func(c *Config) { c.Target.Ports = []int{70000} }, true},
		{"bad backend", func(c *Config) { c.Automation.Backend = "playwright" }, true},
		{"negative window", func(c *Config) { c.Network.IdleMs = -1 }, true},
		{"audit without path", func(c *Config) { c.Audit.Enabled = true; c.Audit.DatabasePath = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.RequestTimeout = "soon"
	cfg.Automation.PollInterval = ""
	cfg.Automation.IdleMs = 0

	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.Automation.GetPollInterval())
	assert.Equal(t, 800*time.Millisecond, cfg.Automation.GetIdle())
	assert.Equal(t, 5*time.Second, cfg.Network.Duration())
}
