// Package credentials holds the single privileged-command password broker.
// The secret lives in memory only: never logged, never written to disk,
// cleared when the process exits.
package credentials

import (
	"context"
	"errors"
	"os"
	"sync"
)

// DefaultEnvVar supplies the password non-interactively.
const DefaultEnvVar = "PORTWATCH_SUDO_PASSWORD"

// ErrNoCredential means the environment variable is unset and no
// interactive prompt is available. The caller decides whether privileged
// access was optional (degrade) or required (fail the operation).
var ErrNoCredential = errors.New("no credential available")

// PromptFunc asks the user for a password, giving them the reason. It
// returns ErrNoCredential (or wraps it) when prompting is impossible, e.g.
// in a non-interactive run.
type PromptFunc func(ctx context.Context, reason string) (string, error)

// Broker resolves passwords in a fixed order: environment variable, then
// the process-lifetime cache, then a single-shot interactive prompt. One
// broker instance is constructed at startup and passed explicitly to the
// components that need it.
type Broker struct {
	envVar string
	prompt PromptFunc

	mu     sync.Mutex
	cached string
	hasOne bool
}

// NewBroker builds a broker reading envVar first and prompting through
// prompt when it is unset. A nil prompt makes the broker non-interactive.
func NewBroker(envVar string, prompt PromptFunc) *Broker {
	if envVar == "" {
		envVar = DefaultEnvVar
	}
	return &Broker{envVar: envVar, prompt: prompt}
}

// SetPrompt installs the interactive prompt after construction. The TUI is
// built later than the broker, so the prompt arrives once the presentation
// layer exists.
func (b *Broker) SetPrompt(prompt PromptFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompt = prompt
}

// Password resolves a credential for the given reason.
func (b *Broker) Password(ctx context.Context, reason string) (string, error) {
	if v, ok := os.LookupEnv(b.envVar); ok && v != "" {
		return v, nil
	}

	b.mu.Lock()
	if b.hasOne {
		secret := b.cached
		b.mu.Unlock()
		return secret, nil
	}
	prompt := b.prompt
	b.mu.Unlock()

	if prompt == nil {
		return "", ErrNoCredential
	}
	secret, err := prompt(ctx, reason)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.cached = secret
	b.hasOne = true
	b.mu.Unlock()
	return secret, nil
}

// Clear drops the cached secret.
func (b *Broker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = ""
	b.hasOne = false
}
