package config

import "time"

// Config is the top-level portwatch configuration.
type Config struct {
	// PollInterval is the fixed delay between discovery polls.
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
	// PollTimeout bounds a single poll; remote polls that exceed it are
	// reported as timed out and retried next cycle.
	PollTimeout time.Duration `yaml:"pollTimeout,omitempty"`
	// RemovalDebounce is how many consecutive absent polls a process
	// survives before it is classified removed.
	RemovalDebounce *int `yaml:"removalDebounce,omitempty"`
	// SSHBinary is the ssh client used for remote polling and tunnels.
	SSHBinary string `yaml:"sshBinary,omitempty"`
	// BindAddress is the local side of reverse tunnels.
	BindAddress string `yaml:"bindAddress,omitempty"`
	// ShutdownGrace is the SIGTERM-to-SIGKILL window for tunnel teardown.
	ShutdownGrace time.Duration `yaml:"shutdownGrace,omitempty"`
	// PasswordEnvVar names the environment variable consulted before any
	// interactive credential prompt.
	PasswordEnvVar string `yaml:"passwordEnvVar,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel,omitempty"`
}

// Debounce unwraps RemovalDebounce with its default. A pointer field keeps
// an explicit zero distinguishable from "not set".
func (c Config) Debounce() int {
	if c.RemovalDebounce == nil {
		return 2
	}
	return *c.RemovalDebounce
}
