package config

// SecurityConfig configures the operation gate.
type SecurityConfig struct {
	Enabled         bool     `yaml:"enabled"`
	CacheSize       int      `yaml:"cache_size"`
	BlockedPatterns []string `yaml:"blocked_patterns"`
}

// AuditConfig configures the SQLite operation journal.
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}
