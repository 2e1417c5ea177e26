// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for mediavault. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Catalog CatalogConfig `toml:"catalog" json:"catalog"`
	Remote  RemoteConfig  `toml:"remote" json:"remote"`
	Sync    SyncConfig    `toml:"sync" json:"sync"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// CatalogConfig locates the local catalog database.
type CatalogConfig struct {
	DBPath string `toml:"db_path" json:"db_path"`
}

// RemoteConfig describes the authoritative backend used in Connected mode.
// A non-empty URL replaces the persisted remote URL at startup.
type RemoteConfig struct {
	URL            string `toml:"url" json:"url"`
	APIToken       string `toml:"api_token" json:"-"`
	ProbeTimeout   string `toml:"probe_timeout" json:"probe_timeout"`
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
}

// SyncConfig controls the sync engine: watch interval, retry policy for
// failed changes, and change feed paging.
type SyncConfig struct {
	Interval     string  `toml:"interval" json:"interval"`
	Websocket    bool    `toml:"websocket" json:"websocket"`
	MaxRetries   int     `toml:"max_retries" json:"max_retries"`
	RetryInitial string  `toml:"retry_initial" json:"retry_initial"`
	RetryMax     string  `toml:"retry_max" json:"retry_max"`
	RetryJitter  float64 `toml:"retry_jitter" json:"retry_jitter"`
	PageSize     int     `toml:"page_size" json:"page_size"`
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level" json:"log_level"`
	LogFile          string `toml:"log_file" json:"log_file"`
	LogFormat        string `toml:"log_format" json:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days" json:"log_retention_days"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DBPath     *string // --db flag
	RemoteURL  *string // --remote-url flag
}

// Resolved is a Config after the override chain has been applied, together
// with the values that only exist outside the file.
type Resolved struct {
	Config

	// Path is the config file that was read (it may not exist).
	Path string `json:"config_path"`
	// Mode, when non-empty, pins the preferred mode for this run.
	Mode string `json:"mode,omitempty"`
}

// ProbeTimeoutDuration returns the parsed remote probe timeout.
func (r *RemoteConfig) ProbeTimeoutDuration() time.Duration {
	return durationOr(r.ProbeTimeout, defaultProbeTimeout)
}

// RequestTimeoutDuration returns the parsed per-request HTTP timeout.
func (r *RemoteConfig) RequestTimeoutDuration() time.Duration {
	return durationOr(r.RequestTimeout, defaultRequestTimeout)
}

// IntervalDuration returns the parsed watch interval.
func (s *SyncConfig) IntervalDuration() time.Duration {
	return durationOr(s.Interval, defaultSyncInterval)
}

// RetryInitialDuration returns the parsed first retry delay.
func (s *SyncConfig) RetryInitialDuration() time.Duration {
	return durationOr(s.RetryInitial, defaultRetryInitial)
}

// RetryMaxDuration returns the parsed retry delay cap.
func (s *SyncConfig) RetryMaxDuration() time.Duration {
	return durationOr(s.RetryMax, defaultRetryMax)
}

// durationOr parses value, returning fallback when it is empty or invalid.
// Values are validated at load time, so the fallback only applies to
// hand-built configs.
func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
