// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for libsync.
package config

// Config is the top-level configuration structure.
type Config struct {
	Library      LibraryConfig      `toml:"library"`
	Remote       RemoteConfig       `toml:"remote"`
	RateGuard    RateGuardConfig    `toml:"rateguard"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Logging      LoggingConfig      `toml:"logging"`
}

// LibraryConfig describes the local directory being kept in sync and how
// the scanner treats what it finds there.
type LibraryConfig struct {
	Root              string   `toml:"root"`
	EnrichmentVersion string   `toml:"enrichment_version"`
	MaxFileSize       string   `toml:"max_file_size"`
	SkipDotfiles      bool     `toml:"skip_dotfiles"`
	SkipPatterns      []string `toml:"skip_patterns"`
	WatchDebounce     string   `toml:"watch_debounce"`
}

// RemoteConfig points at the remote semantic-search store's document API.
type RemoteConfig struct {
	Store          string `toml:"store"`
	BaseURL        string `toml:"base_url"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// RateGuardConfig controls outbound pacing and the circuit breaker (C3).
type RateGuardConfig struct {
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MinInterRequest   string `toml:"min_inter_request"`
	BreakerWindow     string `toml:"breaker_window"`
	BreakerCooldown   string `toml:"breaker_cooldown"`
}

// OrchestratorConfig controls the dispatch loop's worker pool and
// graceful-shutdown behavior (C5).
type OrchestratorConfig struct {
	InitialConcurrency int    `toml:"initial_concurrency"`
	MaxConcurrency     int    `toml:"max_concurrency"`
	BatchLimit         int    `toml:"batch_limit"`
	RetryPassCooldown  string `toml:"retry_pass_cooldown"`
	ShutdownTimeout    string `toml:"shutdown_timeout"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}
