package forward

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// tunnelProcess abstracts the spawned ssh subprocess so manager tests can
// substitute a controllable fake.
type tunnelProcess interface {
	PID() int
	// Wait blocks until the subprocess exits.
	Wait() error
	// Terminate asks the process group to exit (SIGTERM).
	Terminate() error
	// Kill force-kills the process group.
	Kill() error
	// Diagnostic returns the captured stderr tail.
	Diagnostic() string
}

// tunnelSpec describes one reverse tunnel: the selected port is exposed on
// the remote host, reachable back through the local bind address.
type tunnelSpec struct {
	Port       int
	RemoteHost string
	BindAddr   string
	SSHBin     string
}

// spawnTunnel is a package-level variable so tests can substitute a
// controllable process.
var spawnTunnel = spawnSSH

const diagnosticLines = 20

// sshProcess wraps a running `ssh -N -R` subprocess. The process gets its
// own group so teardown reaches any children ssh forks.
type sshProcess struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	stderr []string
}

func spawnSSH(spec tunnelSpec) (tunnelProcess, error) {
	bin := spec.SSHBin
	if bin == "" {
		bin = "ssh"
	}
	bind := spec.BindAddr
	if bind == "" {
		bind = "localhost"
	}
	args := []string{
		"-N",
		"-o", "BatchMode=yes",
		"-o", "ExitOnForwardFailure=yes",
		"-R", fmt.Sprintf("%d:%s:%d", spec.Port, bind, spec.Port),
		spec.RemoteHost,
	}
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	p := &sshProcess{cmd: cmd}
	if err := cmd.Start(); err != nil {
		stderrPipe.Close()
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	go func() {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			p.mu.Lock()
			p.stderr = append(p.stderr, scanner.Text())
			if len(p.stderr) > diagnosticLines {
				p.stderr = p.stderr[len(p.stderr)-diagnosticLines:]
			}
			p.mu.Unlock()
		}
	}()

	return p, nil
}

func (p *sshProcess) PID() int { return p.cmd.Process.Pid }

func (p *sshProcess) Wait() error { return p.cmd.Wait() }

func (p *sshProcess) Terminate() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
}

func (p *sshProcess) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}

func (p *sshProcess) Diagnostic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.stderr, "\n")
}
