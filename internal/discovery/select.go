package discovery

import (
	"context"
	"fmt"

	"portwatch/pkg/logging"
)

// Options selects the discovery backend and locality at startup.
type Options struct {
	RemoteHost    string // non-empty selects the remote ssh path
	ForceFallback bool   // skip the native backend even locally
	Mock          bool   // replay the canned sequence instead of polling
	SSHBin        string
	Password      PasswordFunc
	// CredentialContext bounds interactive credential prompts. Pass the
	// run context; a poll deadline is too short for a human to type.
	CredentialContext context.Context
}

// NewSource picks a concrete Source for the given options. Backend
// selection is explicit, decided once here: mock > remote > native with
// automatic fallback. Returns ErrNoBackend (wrapped) when nothing viable
// exists; that is fatal at startup.
func NewSource(ctx context.Context, opts Options) (Source, error) {
	if opts.Mock {
		return NewMockSource(DefaultMockFrames()), nil
	}

	if opts.RemoteHost != "" {
		src, err := NewRemoteSource(ctx, opts.RemoteHost, opts.SSHBin, opts.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: remote %s: %v", ErrNoBackend, opts.RemoteHost, err)
		}
		src.SetCredentialContext(opts.CredentialContext)
		return src, nil
	}

	if !opts.ForceFallback {
		src, err := NewNativeSource(ctx)
		if err == nil {
			return src, nil
		}
		logging.Warn("Discovery", "native backend unavailable, trying fallback: %v", err)
	}

	src := NewFallbackSource(LocalRunner{}, opts.Password)
	src.SetCredentialContext(opts.CredentialContext)
	if err := src.Probe(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
	}
	return src, nil
}
