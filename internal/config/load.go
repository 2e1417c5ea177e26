package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// dbFileName is the catalog database file inside the data directory.
const dbFileName = "catalog.db"

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions; a typo must not silently fall back to a default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values, so the catalog works
// without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{Config: *cfg, Path: cfgPath, Mode: env.Mode}

	// 3. Apply env overrides
	if env.RemoteURL != "" {
		resolved.Remote.URL = env.RemoteURL
	}

	if env.APIToken != "" {
		resolved.Remote.APIToken = env.APIToken
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.DBPath != nil {
		resolved.Catalog.DBPath = *cli.DBPath
	}

	if cli.RemoteURL != nil {
		resolved.Remote.URL = *cli.RemoteURL
	}

	// 5. Derive paths
	if resolved.Catalog.DBPath == "" {
		if dir := DefaultDataDir(); dir != "" {
			resolved.Catalog.DBPath = filepath.Join(dir, dbFileName)
		}
	}

	resolved.Catalog.DBPath = expandTilde(resolved.Catalog.DBPath)
	resolved.Logging.LogFile = expandTilde(resolved.Logging.LogFile)

	// 6. Validate the final result
	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
