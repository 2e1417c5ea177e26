package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "MEDIAVAULT_CONFIG"
	EnvMode      = "MEDIAVAULT_MODE"
	EnvRemoteURL = "MEDIAVAULT_REMOTE_URL"
	EnvAPIToken  = "MEDIAVAULT_API_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // MEDIAVAULT_CONFIG: override config file path
	Mode       string // MEDIAVAULT_MODE: pin the preferred mode
	RemoteURL  string // MEDIAVAULT_REMOTE_URL: remote base URL
	APIToken   string // MEDIAVAULT_API_TOKEN: bearer token for the remote
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Mode:       os.Getenv(EnvMode),
		RemoteURL:  os.Getenv(EnvRemoteURL),
		APIToken:   os.Getenv(EnvAPIToken),
	}
}
