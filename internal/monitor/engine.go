// Package monitor drives the poll cycle: discovery poll, reconcile, deliver
// the diff, sleep. One goroutine, strictly sequential, so displayed state
// can never observe diffs out of order.
package monitor

import (
	"context"
	"time"

	"portwatch/internal/discovery"
	"portwatch/internal/reconcile"
	"portwatch/internal/reporting"
	"portwatch/pkg/logging"
)

const (
	// DefaultInterval between polls. No additional backoff on failure; a
	// failed poll just waits for the next tick.
	DefaultInterval = 2 * time.Second
	// DefaultPollTimeout bounds one poll, which may traverse ssh.
	DefaultPollTimeout = 5 * time.Second
)

// Engine owns the reconciler and the previous-snapshot state through it.
type Engine struct {
	source     discovery.Source
	reconciler *reconcile.Reconciler
	reporter   reporting.Reporter
	interval   time.Duration
	timeout    time.Duration
}

func NewEngine(source discovery.Source, reconciler *reconcile.Reconciler, reporter reporting.Reporter, interval, timeout time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Engine{
		source:     source,
		reconciler: reconciler,
		reporter:   reporter,
		interval:   interval,
		timeout:    timeout,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
// Poll N+1 never starts before diff N has been delivered to the reporter:
// cycle() is synchronous and this loop is the only caller.
func (e *Engine) Run(ctx context.Context) {
	logging.Info("Monitor", "polling %s via %s backend every %v", e.source.Target(), e.source.Backend(), e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Debug("Monitor", "poll loop stopped")
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, e.timeout)
	snap, err := e.source.Poll(pollCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by shutdown, not a real failure.
			return
		}
		// Degraded: previous snapshot stays displayed, retry next tick.
		logging.Warn("Monitor", "poll failed: %v", err)
		e.reporter.Degraded(err)
		return
	}

	diff := e.reconciler.Reconcile(snap)
	e.reporter.SnapshotDiff(reporting.SnapshotDiffMsg{
		Diff:    diff,
		Backend: e.source.Backend(),
		Target:  e.source.Target(),
	})
}
