// Package app wires the components together: config, credential broker,
// discovery source selection, session manager, monitor loop and the
// presentation layer.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"portwatch/internal/config"
	"portwatch/internal/credentials"
	"portwatch/internal/discovery"
	"portwatch/internal/forward"
	"portwatch/internal/monitor"
	"portwatch/internal/reconcile"
	"portwatch/internal/reporting"
	"portwatch/internal/tui"
	"portwatch/pkg/logging"
)

// Options carries the CLI surface into the bootstrap. Zero values defer to
// the configuration file.
type Options struct {
	RemoteHost    string
	ForceFallback bool
	Mock          bool
	Headless      bool
	Interval      time.Duration
	Timeout       time.Duration
	Debounce      int // -1 means "use config"
	LogLevel      string
}

// Run starts portwatch and blocks until the user quits or a termination
// signal arrives. A startup failure (no viable discovery backend) is
// returned so the CLI can exit non-zero; everything after startup is
// surfaced as state, never an error return.
func Run(opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)

	var logCh <-chan logging.Entry
	level := logging.ParseLevel(cfg.LogLevel)
	if opts.Headless {
		logging.InitForCLI(level, os.Stderr)
	} else {
		logCh = logging.InitForTUI(level)
	}

	broker := credentials.NewBroker(cfg.PasswordEnvVar, nil)

	// SIGINT/SIGTERM cancel the whole run; the deferred shutdown below is
	// unconditional, so tunnels never outlive the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(ctx, cfg.PollTimeout)
	source, err := discovery.NewSource(startupCtx, discovery.Options{
		RemoteHost:        opts.RemoteHost,
		ForceFallback:     opts.ForceFallback,
		Mock:              opts.Mock,
		SSHBin:            cfg.SSHBinary,
		Password:          broker.Password,
		CredentialContext: ctx,
	})
	startupCancel()
	if err != nil {
		return fmt.Errorf("starting discovery: %w", err)
	}

	var reporter reporting.Reporter
	var tuiReporter *reporting.TUIReporter
	if opts.Headless {
		reporter = reporting.NewConsoleReporter()
	} else {
		tuiReporter = reporting.NewTUIReporter()
		reporter = tuiReporter
	}

	manager := forward.NewManager(reporter.Session, forward.Options{
		BindAddr: cfg.BindAddress,
		SSHBin:   cfg.SSHBinary,
		Grace:    cfg.ShutdownGrace,
	})
	engine := monitor.NewEngine(source, reconcile.New(cfg.Debounce()), reporter, cfg.PollInterval, cfg.PollTimeout)

	// Shutdown must run on every exit path, including panics in the TUI.
	defer func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownGrace+2*time.Second)
		manager.Shutdown(shutdownCtx)
		done()
	}()

	if opts.Headless {
		go engine.Run(ctx)
		<-ctx.Done()
		return nil
	}

	prompter := tui.NewPrompter()
	broker.SetPrompt(prompter.Prompt)

	model := tui.New(tui.Config{
		Manager:    manager,
		RemoteHost: opts.RemoteHost,
		LogCh:      logCh,
		OnQuit:     cancel,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	tuiReporter.Attach(program)
	prompter.Attach(program)

	// The first poll may need to prompt for a credential, so the engine
	// starts only once the prompter has a program to send to.
	go engine.Run(ctx)
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	defer logging.CloseTUIChannel()
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.Interval > 0 {
		cfg.PollInterval = opts.Interval
	}
	if opts.Timeout > 0 {
		cfg.PollTimeout = opts.Timeout
	}
	if opts.Debounce >= 0 {
		d := opts.Debounce
		cfg.RemovalDebounce = &d
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
}
