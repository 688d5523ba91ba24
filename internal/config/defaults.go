package config

import "time"

// Default returns the built-in configuration. User-file values overlay it.
func Default() Config {
	return Config{
		PollInterval:   2 * time.Second,
		PollTimeout:    5 * time.Second,
		SSHBinary:      "ssh",
		BindAddress:    "localhost",
		ShutdownGrace:  3 * time.Second,
		PasswordEnvVar: "PORTWATCH_SUDO_PASSWORD",
		LogLevel:       "info",
	}
}
