package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
)

// Handler performs the external effect of an approved action.
type Handler interface {
	// Name identifies the handler in execution results.
	Name() string
	// Execute carries out a. A returned error fails the action.
	Execute(ctx context.Context, a Action) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, a Action) error

// Name implements Handler.
func (HandlerFunc) Name() string { return "func" }

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, a Action) error { return f(ctx, a) }

// maxHandlerTime bounds a single handler call so one stuck handler cannot
// hold the run lock indefinitely.
const maxHandlerTime = 30 * time.Second

// Summary counts dispatch outcomes.
type Summary struct {
	Executed int `json:"executed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Dispatcher runs approved actions through a category → handler table.
//
// Thread Safety: Register and Dispatch are safe for concurrent use. An action
// is claimed before its handler runs, so overlapping Dispatch calls execute
// it at most once.
type Dispatcher struct {
	manager  *Manager
	mu       sync.RWMutex
	handlers map[Category]Handler
	inflight map[string]struct{}
	noop     bool
	logger   Logger
}

// NewDispatcher creates a Dispatcher. mode is config.ExecutionModeDispatch
// or config.ExecutionModeNoop; in no-op mode every action is recorded as
// skipped without calling a handler.
func NewDispatcher(manager *Manager, mode string, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		manager:  manager,
		handlers: make(map[Category]Handler),
		inflight: make(map[string]struct{}),
		noop:     mode == config.ExecutionModeNoop,
		logger:   logger,
	}
}

// Register installs h for category c, replacing any previous handler.
func (d *Dispatcher) Register(c Category, h Handler) {
	d.mu.Lock()
	d.handlers[c] = h
	d.mu.Unlock()
}

// Dispatch executes every approved action once. Missing handlers and no-op
// mode record a skipped result and still move the action to executed; a
// handler error or panic moves it to failed. One action's failure never
// affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context) Summary {
	var sum Summary

	for _, candidate := range d.manager.Filter(StatusApproved) {
		a, ok := d.claim(candidate.ID)
		if !ok {
			continue
		}
		result := d.run(ctx, a)

		to := StatusExecuted
		switch result.Outcome {
		case OutcomeFailed:
			to = StatusFailed
			sum.Failed++
		case OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Executed++
		}

		if !d.manager.Transition(ctx, a.ID, to, Meta{Result: &result}) {
			d.logger.Warn("dispatch result not recorded", "action_id", a.ID, "outcome", result.Outcome)
		}
		d.release(a.ID)
	}

	if sum != (Summary{}) {
		d.logger.Info("dispatch complete",
			"executed", sum.Executed,
			"skipped", sum.Skipped,
			"failed", sum.Failed,
		)
	}
	return sum
}

// claim reserves id for this caller. It fails when another Dispatch already
// holds the action or when the action has left approved since the snapshot.
func (d *Dispatcher) claim(id string) (Action, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inflight[id]; busy {
		return Action{}, false
	}
	a, ok := d.manager.Get(id)
	if !ok || a.Status != StatusApproved {
		return Action{}, false
	}
	d.inflight[id] = struct{}{}
	return a, true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) run(ctx context.Context, a Action) ExecutionResult {
	d.mu.RLock()
	h, ok := d.handlers[a.Category]
	d.mu.RUnlock()

	switch {
	case d.noop:
		return ExecutionResult{Outcome: OutcomeSkipped, Handler: "noop", At: time.Now().UTC()}
	case !ok || h == nil:
		d.logger.Debug("no handler registered", "action_id", a.ID, "category", a.Category)
		return ExecutionResult{Outcome: OutcomeSkipped, Handler: "none", At: time.Now().UTC()}
	}

	err := d.execute(ctx, h, a)
	res := ExecutionResult{Outcome: OutcomeOK, Handler: h.Name(), At: time.Now().UTC()}
	if err != nil {
		d.logger.Error("action handler failed", "action_id", a.ID, "handler", h.Name(), "error", err)
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
	}
	return res
}

func (d *Dispatcher) execute(ctx context.Context, h Handler, a Action) (err error) {
	ctx, cancel := context.WithTimeout(ctx, maxHandlerTime)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	if err := h.Execute(ctx, a); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("handler %s timed out: %w", h.Name(), err)
		}
		return err
	}
	return nil
}
