package config

// Default values for configuration options, chosen to be safe starting
// points that work without any config file.
const (
	defaultEnrichmentVersion = "v1"
	defaultMaxFileSize       = "500MiB"
	defaultWatchDebounce     = "500ms"

	defaultBaseURL        = "https://api.searchstore.example/v1"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"

	defaultRequestsPerMinute = 60
	defaultMinInterRequest   = "3s"
	defaultBreakerWindow     = "60s"
	defaultBreakerCooldown   = "30s"

	defaultInitialConcurrency = 4
	defaultMaxConcurrency     = 16
	defaultBatchLimit         = 100
	defaultRetryPassCooldown  = "30s"
	defaultShutdownTimeout    = "30s"

	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with all default values. This is
// both the starting point for TOML decoding (so unset fields keep their
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			EnrichmentVersion: defaultEnrichmentVersion,
			MaxFileSize:       defaultMaxFileSize,
			WatchDebounce:     defaultWatchDebounce,
		},
		Remote: RemoteConfig{
			BaseURL:        defaultBaseURL,
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		RateGuard: RateGuardConfig{
			RequestsPerMinute: defaultRequestsPerMinute,
			MinInterRequest:   defaultMinInterRequest,
			BreakerWindow:     defaultBreakerWindow,
			BreakerCooldown:   defaultBreakerCooldown,
		},
		Orchestrator: OrchestratorConfig{
			InitialConcurrency: defaultInitialConcurrency,
			MaxConcurrency:     defaultMaxConcurrency,
			BatchLimit:         defaultBatchLimit,
			RetryPassCooldown:  defaultRetryPassCooldown,
			ShutdownTimeout:    defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
