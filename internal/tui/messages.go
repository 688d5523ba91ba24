package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"portwatch/internal/credentials"
	"portwatch/pkg/logging"
)

// LogMsg carries one log entry drained from the logging channel into the
// status line.
type LogMsg struct {
	Entry logging.Entry
}

type promptResult struct {
	secret string
	err    error
}

// PromptRequestMsg asks the TUI to collect a password. The requester
// blocks on Reply; the render loop never does.
type PromptRequestMsg struct {
	Reason string
	Reply  chan promptResult
}

// Prompter adapts the credential broker's PromptFunc to the TUI. Like the
// reporter it is constructed before the program and attached once the
// program runs; prompting before attach fails as non-interactive.
type Prompter struct {
	mu      sync.Mutex
	program *tea.Program
}

func NewPrompter() *Prompter { return &Prompter{} }

func (p *Prompter) Attach(program *tea.Program) {
	p.mu.Lock()
	p.program = program
	p.mu.Unlock()
}

// Prompt implements credentials.PromptFunc.
func (p *Prompter) Prompt(ctx context.Context, reason string) (string, error) {
	p.mu.Lock()
	program := p.program
	p.mu.Unlock()
	if program == nil {
		return "", credentials.ErrNoCredential
	}

	reply := make(chan promptResult, 1)
	program.Send(PromptRequestMsg{Reason: reason, Reply: reply})
	select {
	case r := <-reply:
		return r.secret, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
