package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultProbeTimeout     = "3s"
	defaultRequestTimeout   = "30s"
	defaultSyncInterval     = "5m"
	defaultMaxRetries       = 8
	defaultRetryInitial     = "30s"
	defaultRetryMax         = "1h"
	defaultRetryJitter      = 0.25
	defaultPageSize         = 200
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogRetentionDays = 30
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
// The database path stays empty here and is derived from the data
// directory during resolution.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			ProbeTimeout:   defaultProbeTimeout,
			RequestTimeout: defaultRequestTimeout,
		},
		Sync: SyncConfig{
			Interval:     defaultSyncInterval,
			Websocket:    true,
			MaxRetries:   defaultMaxRetries,
			RetryInitial: defaultRetryInitial,
			RetryMax:     defaultRetryMax,
			RetryJitter:  defaultRetryJitter,
			PageSize:     defaultPageSize,
		},
		Logging: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			LogRetentionDays: defaultLogRetentionDays,
		},
	}
}
