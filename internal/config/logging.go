package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	File       string          `yaml:"file"`       // optional extra output path
	DebugMode  bool            `yaml:"debug_mode"` // false = warnings and errors only
	Categories map[string]bool `yaml:"categories"` // per-category toggles, debug mode only
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories missing from the map are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}
