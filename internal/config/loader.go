package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests.
var osUserHomeDir = os.UserHomeDir

const (
	userConfigDir  = ".config/portwatch"
	configFileName = "config.yaml"
)

// Load layers the user configuration file, when present, over the built-in
// defaults. A missing file is not an error; a malformed one is.
func Load() (Config, error) {
	cfg := Default()

	path, err := userConfigPath()
	if err != nil {
		// No resolvable home directory: run on defaults.
		fmt.Fprintf(os.Stderr, "Warning: could not determine config path: %v\n", err)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return merge(cfg, overlay), nil
}

var userConfigPath = func() (string, error) {
	home, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, userConfigDir, configFileName), nil
}

// merge overlays non-zero fields of overlay onto base.
func merge(base, overlay Config) Config {
	merged := base
	if overlay.PollInterval > 0 {
		merged.PollInterval = overlay.PollInterval
	}
	if overlay.PollTimeout > 0 {
		merged.PollTimeout = overlay.PollTimeout
	}
	if overlay.RemovalDebounce != nil {
		merged.RemovalDebounce = overlay.RemovalDebounce
	}
	if overlay.SSHBinary != "" {
		merged.SSHBinary = overlay.SSHBinary
	}
	if overlay.BindAddress != "" {
		merged.BindAddress = overlay.BindAddress
	}
	if overlay.ShutdownGrace > 0 {
		merged.ShutdownGrace = overlay.ShutdownGrace
	}
	if overlay.PasswordEnvVar != "" {
		merged.PasswordEnvVar = overlay.PasswordEnvVar
	}
	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}
	return merged
}
