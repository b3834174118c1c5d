package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minRequestsPerMinute = 0 // 0 means unlimited
	minConcurrency       = 1
	maxConcurrency       = 256
	minBatchLimit        = 1
)

// Validate checks all configuration values and returns every error found —
// accumulated rather than stopping at the first, so an operator sees a
// complete report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLibrary(&cfg.Library)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateRateGuard(&cfg.RateGuard)...)
	errs = append(errs, validateOrchestrator(&cfg.Orchestrator)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateLibrary(c *LibraryConfig) []error {
	var errs []error

	if _, err := ParseSize(c.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("library.max_file_size: %w", err))
	}

	if c.WatchDebounce != "" {
		if _, err := time.ParseDuration(c.WatchDebounce); err != nil {
			errs = append(errs, fmt.Errorf("library.watch_debounce: %w", err))
		}
	}

	return errs
}

func validateRemote(c *RemoteConfig) []error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url: must not be empty"))
	}

	for name, v := range map[string]string{
		"remote.connect_timeout": c.ConnectTimeout,
		"remote.data_timeout":    c.DataTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

func validateRateGuard(c *RateGuardConfig) []error {
	var errs []error

	if c.RequestsPerMinute < minRequestsPerMinute {
		errs = append(errs, fmt.Errorf("rateguard.requests_per_minute: must be >= %d, got %d", minRequestsPerMinute, c.RequestsPerMinute))
	}

	for name, v := range map[string]string{
		"rateguard.min_inter_request": c.MinInterRequest,
		"rateguard.breaker_window":    c.BreakerWindow,
		"rateguard.breaker_cooldown":  c.BreakerCooldown,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

func validateOrchestrator(c *OrchestratorConfig) []error {
	var errs []error

	if c.InitialConcurrency < minConcurrency || c.InitialConcurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("orchestrator.initial_concurrency: must be in [%d, %d], got %d", minConcurrency, maxConcurrency, c.InitialConcurrency))
	}

	if c.MaxConcurrency < minConcurrency || c.MaxConcurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("orchestrator.max_concurrency: must be in [%d, %d], got %d", minConcurrency, maxConcurrency, c.MaxConcurrency))
	}

	if c.MaxConcurrency < c.InitialConcurrency {
		errs = append(errs, fmt.Errorf("orchestrator.max_concurrency (%d) must be >= initial_concurrency (%d)", c.MaxConcurrency, c.InitialConcurrency))
	}

	if c.BatchLimit < minBatchLimit {
		errs = append(errs, fmt.Errorf("orchestrator.batch_limit: must be >= %d, got %d", minBatchLimit, c.BatchLimit))
	}

	for name, v := range map[string]string{
		"orchestrator.retry_pass_cooldown": c.RetryPassCooldown,
		"orchestrator.shutdown_timeout":    c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errs
}

func validateLogging(c *LoggingConfig) []error {
	var errs []error

	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug/info/warn/error, got %q", c.Level))
	}

	switch c.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be one of auto/text/json, got %q", c.Format))
	}

	return errs
}
