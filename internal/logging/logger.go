// Package logging provides config-driven categorized logging for devprobe.
// Every category is a named child of one process-wide zap logger.
// Logging is controlled by debug_mode in the logging config - when false, only
// warnings and errors are written.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"devprobe/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup, config loading
	CategoryTransport   Category = "transport"   // Debug-protocol sockets, request correlation
	CategoryTranslate   Category = "translate"   // Verb to script translation
	CategoryDiagnostics Category = "diagnostics" // Network/trace/console/perf collectors
	CategoryAutomation  Category = "automation"  // Automation runs and steps
	CategoryBrowser     Category = "browser"     // Assisted (rod) backend
	CategorySecurity    Category = "security"    // Gate decisions
	CategoryAudit       Category = "audit"       // Audit journal
	CategoryDiscovery   Category = "discovery"   // Target discovery
)

// Logger is a printf-style logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	base      = zap.NewNop()
	settings  config.LoggingConfig
	baseMu    sync.RWMutex
)

// Initialize builds the process logger from the logging config.
// Should be called once at startup; calling it again replaces the logger.
func Initialize(cfg config.LoggingConfig) error {
	level, err := zapcore.ParseLevel(levelOrDefault(cfg))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	install(l, cfg)
	Get(CategoryBoot).Debug("logging initialized (level=%s format=%s debug_mode=%v)", level, cfg.Format, cfg.DebugMode)
	return nil
}

// InitializeWith installs an existing zap logger, e.g. an observer in tests.
func InitializeWith(l *zap.Logger, cfg config.LoggingConfig) {
	install(l, cfg)
}

func install(l *zap.Logger, cfg config.LoggingConfig) {
	baseMu.Lock()
	base = l
	settings = cfg
	baseMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

func levelOrDefault(cfg config.LoggingConfig) string {
	if !cfg.DebugMode {
		if cfg.Level == "" || strings.EqualFold(cfg.Level, "debug") || strings.EqualFold(cfg.Level, "info") {
			return "warn"
		}
	}
	if cfg.Level == "" {
		return "info"
	}
	return strings.ToLower(cfg.Level)
}

// Base returns the underlying zap logger (for structured fields).
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Base().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if !settings.DebugMode {
		return true // only the level filter applies in production mode
	}
	return settings.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if IsCategoryEnabled(category) {
		z = Base().Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying extra key-value context on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
