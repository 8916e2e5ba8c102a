package scheduler

import (
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RunGuard is a non-blocking single-flight lock.
type RunGuard struct {
	running   atomic.Bool
	startedAt atomic.Int64
	skipped   atomic.Uint64
	logger    Logger
}

// NewRunGuard creates a RunGuard.
func NewRunGuard(logger Logger) *RunGuard {
	if logger == nil {
		logger = noopLogger{}
	}
	return &RunGuard{logger: logger}
}

// TryRun executes fn unless another call is in progress, in which case it
// logs a warning and returns false immediately. The lock is released when
// fn returns or panics.
func (g *RunGuard) TryRun(trigger string, fn func()) bool {
	if !g.acquire(trigger) {
		return false
	}
	defer g.running.Store(false)

	fn()
	return true
}

// TryGo is TryRun with fn executed on a new goroutine. The lock is taken
// before TryGo returns, so a true result means fn owns the run.
func (g *RunGuard) TryGo(trigger string, fn func()) bool {
	if !g.acquire(trigger) {
		return false
	}
	go func() {
		defer g.running.Store(false)
		fn()
	}()
	return true
}

func (g *RunGuard) acquire(trigger string) bool {
	if !g.running.CompareAndSwap(false, true) {
		g.skipped.Add(1)
		g.logger.Warn("analysis already running, trigger skipped",
			"trigger", trigger,
			"running_since", time.Unix(0, g.startedAt.Load()).UTC(),
		)
		return false
	}
	g.startedAt.Store(time.Now().UnixNano())
	return true
}

// Running reports whether a run is in progress.
func (g *RunGuard) Running() bool { return g.running.Load() }

// Skipped returns how many triggers were rejected.
func (g *RunGuard) Skipped() uint64 { return g.skipped.Load() }
