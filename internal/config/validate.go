package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minProbeTimeout   = 100 * time.Millisecond
	minRequestTimeout = 1 * time.Second
	minSyncInterval   = 10 * time.Second
	minRetryInitial   = 1 * time.Second
	minMaxRetries     = 1
	maxMaxRetries     = 100
	minPageSize       = 1
	maxPageSize       = 1000
	minLogRetention   = 1
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks a config after the override chain has been
// applied. Env and CLI values get the same checks as file values, plus
// constraints that only make sense on the final merged result.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if err := Validate(&r.Config); err != nil {
		errs = append(errs, err)
	}

	if r.Catalog.DBPath == "" {
		errs = append(errs, errors.New("db_path: could not determine a data directory; set [catalog] db_path"))
	} else if !filepath.IsAbs(r.Catalog.DBPath) {
		errs = append(errs, fmt.Errorf("db_path: must be absolute after expansion, got %q", r.Catalog.DBPath))
	}

	switch r.Mode {
	case "", "standalone", "connected":
	default:
		errs = append(errs, fmt.Errorf("%s: must be standalone or connected, got %q", EnvMode, r.Mode))
	}

	if r.Mode == "connected" && r.Remote.URL == "" {
		errs = append(errs, fmt.Errorf("%s=connected requires a remote url", EnvMode))
	}

	return errors.Join(errs...)
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if r.URL != "" {
		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("url: must be http(s)://host, got %q", r.URL))
		}
	}

	errs = append(errs, validateDurationMin("probe_timeout", r.ProbeTimeout, minProbeTimeout)...)
	errs = append(errs, validateDurationMin("request_timeout", r.RequestTimeout, minRequestTimeout)...)

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("interval", s.Interval, minSyncInterval)...)
	errs = append(errs, validateDurationMin("retry_initial", s.RetryInitial, minRetryInitial)...)

	if err := validateDuration("retry_max", s.RetryMax, minRetryInitial); err != nil {
		errs = append(errs, err)
	} else if initial, err := time.ParseDuration(s.RetryInitial); err == nil {
		if retryMax, _ := time.ParseDuration(s.RetryMax); retryMax < initial {
			errs = append(errs, fmt.Errorf("retry_max: must be >= retry_initial (%s), got %s", initial, retryMax))
		}
	}

	if s.MaxRetries < minMaxRetries || s.MaxRetries > maxMaxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between %d and %d, got %d",
			minMaxRetries, maxMaxRetries, s.MaxRetries))
	}

	if s.RetryJitter < 0 || s.RetryJitter >= 1 {
		errs = append(errs, fmt.Errorf("retry_jitter: must be in [0, 1), got %g", s.RetryJitter))
	}

	if s.PageSize < minPageSize || s.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, s.PageSize))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be >= %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
