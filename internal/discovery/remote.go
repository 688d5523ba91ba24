package discovery

import (
	"context"
	"os/exec"
	"strings"
)

// SSHRunner pipes the fixed listing command to a remote shell through the
// user's ssh client, so ssh config, agents and jump hosts all apply.
type SSHRunner struct {
	Host   string // user@host or a ~/.ssh/config alias
	SSHBin string // defaults to "ssh"
	// Extra options prepended before the host, e.g. connect timeouts.
	Options []string
}

// NewSSHRunner builds a runner for the given host with non-interactive
// options: an ssh that stops to ask for a password would stall every poll.
func NewSSHRunner(host, sshBin string) *SSHRunner {
	if sshBin == "" {
		sshBin = "ssh"
	}
	return &SSHRunner{
		Host:   host,
		SSHBin: sshBin,
		Options: []string{
			"-o", "BatchMode=yes",
			"-o", "ConnectTimeout=5",
		},
	}
}

func (r *SSHRunner) Target() string { return r.Host }

func (r *SSHRunner) Run(ctx context.Context, command string, stdin string) ([]byte, error) {
	args := append([]string{}, r.Options...)
	args = append(args, r.Host, command)
	cmd := exec.CommandContext(ctx, r.SSHBin, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	return cmd.Output()
}

// NewRemoteSource builds a fallback source polling the given host over ssh
// and verifies the transport once. A dead connection at startup is fatal
// for the caller; transient failures later degrade per poll instead.
func NewRemoteSource(ctx context.Context, host, sshBin string, password PasswordFunc) (*FallbackSource, error) {
	src := NewFallbackSource(NewSSHRunner(host, sshBin), password)
	if err := src.Probe(ctx); err != nil {
		return nil, err
	}
	return src, nil
}
