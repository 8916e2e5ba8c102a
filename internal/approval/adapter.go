// Package approval translates operator messages into action lifecycle
// changes and keeps the operator informed.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
)

// Logger defines the logging interface used by the Adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher runs approved actions.
type Dispatcher interface {
	Dispatch(ctx context.Context) action.Summary
}

// LiveSource provides readings at decision time.
type LiveSource interface {
	Snapshot() readings.Readings
}

// Result describes what Handle did.
type Result struct {
	Handled bool
	Changed []string
}

// Adapter applies operator input to the action manager.
type Adapter struct {
	actions    *action.Manager
	dispatcher Dispatcher
	learning   *learning.Store
	live       LiveSource
	channel    Channel
	logger     Logger
}

// NewAdapter creates an Adapter. dispatcher, live and channel may be nil.
func NewAdapter(actions *action.Manager, dispatcher Dispatcher, store *learning.Store, live LiveSource, channel Channel, logger Logger) *Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		actions:    actions,
		dispatcher: dispatcher,
		learning:   store,
		live:       live,
		channel:    channel,
		logger:     logger,
	}
}

// SendBatch sends pending as a new batch and resets sess to it. An empty
// batch sends nothing and leaves sess unchanged.
func (a *Adapter) SendBatch(ctx context.Context, sess *Session, pending []action.Action) error {
	if len(pending) == 0 {
		return nil
	}

	msg := FormatBatch(pending)
	ref := ""
	if a.channel != nil {
		var err error
		if ref, err = a.channel.Send(ctx, msg); err != nil {
			return fmt.Errorf("sending approval batch: %w", err)
		}
	}

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}
	*sess = Session{
		BatchID:     uuid.NewString(),
		ActionIDs:   ids,
		MessageRef:  ref,
		MessageText: msg.Text,
		SentAt:      time.Now().UTC(),
	}
	a.logger.Info("approval batch sent", "batch_id", sess.BatchID, "actions", len(ids))
	return nil
}

// Handle applies one inbound message. Unknown commands and unrelated text
// are logged and ignored.
func (a *Adapter) Handle(ctx context.Context, sess *Session, in Inbound) Result {
	if in.Callback != "" {
		return a.handleToken(ctx, sess, in.Callback)
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{}
	}
	if _, _, isToken, _ := ParseToken(text); isToken {
		return a.handleToken(ctx, sess, text)
	}
	if sess.AwaitingText {
		return a.handleModification(ctx, sess, text)
	}
	if cmd, ok := batchReply(text); ok {
		return a.handleBatch(ctx, sess, cmd)
	}

	a.logger.Debug("ignoring free text outside an approval exchange")
	return Result{}
}

func (a *Adapter) handleToken(ctx context.Context, sess *Session, token string) Result {
	id, cmd, ok, known := ParseToken(token)
	if !ok || !known {
		a.logger.Warn("ignoring unknown approval command", "token", token)
		return Result{}
	}
	if _, exists := a.actions.Get(id); !exists {
		a.logger.Warn("approval command for unknown action", "action_id", id, "command", cmd)
		return Result{}
	}

	switch cmd {
	case CommandApprove:
		return a.decide(ctx, sess, []string{id}, action.StatusApproved)
	case CommandReject:
		return a.decide(ctx, sess, []string{id}, action.StatusRejected)
	case CommandModify:
		return a.requestModification(ctx, sess, id)
	case CommandExecuted:
		return a.confirmExecuted(ctx, sess, id)
	}
	return Result{}
}

func (a *Adapter) handleBatch(ctx context.Context, sess *Session, cmd Command) Result {
	if len(sess.ActionIDs) == 0 {
		a.logger.Warn("batch reply without an outstanding batch", "command", cmd)
		return Result{}
	}
	to := action.StatusApproved
	if cmd == CommandReject {
		to = action.StatusRejected
	}
	return a.decide(ctx, sess, sess.ActionIDs, to)
}

// decide moves ids to approved or rejected, records learning and feedback
// for each successful transition and, after approvals, dispatches.
func (a *Adapter) decide(ctx context.Context, sess *Session, ids []string, to action.Status) Result {
	live := a.liveContext()
	var changed []string

	for _, id := range ids {
		current, ok := a.actions.Get(id)
		if !ok || current.Status == to {
			continue
		}
		if !a.actions.Transition(ctx, id, to, action.Meta{}) {
			continue
		}
		changed = append(changed, id)
		if a.learning != nil {
			a.learning.RecordDecision(ctx, current, action.Decision(to), live)
		}
	}

	if to == action.StatusApproved && len(changed) > 0 && a.dispatcher != nil {
		a.dispatcher.Dispatch(ctx)
	}

	for _, id := range changed {
		if final, ok := a.actions.Get(id); ok {
			a.appendLabel(ctx, sess, label(final))
		}
	}
	return Result{Handled: true, Changed: changed}
}

func (a *Adapter) requestModification(ctx context.Context, sess *Session, id string) Result {
	if !a.actions.RecordDecision(ctx, id, action.DecisionModified, "") {
		return Result{}
	}
	current, _ := a.actions.Get(id)
	if a.learning != nil {
		a.learning.RecordDecision(ctx, current, action.DecisionModified, a.liveContext())
	}

	sess.AwaitingText = true
	sess.PendingModifyID = id

	a.send(ctx, Outbound{Text: fmt.Sprintf("What should change for %q? Reply with the modification.", current.Type)})
	a.appendLabel(ctx, sess, label(current))
	return Result{Handled: true, Changed: []string{id}}
}

// handleModification consumes the free text opened by modify and closes
// the flag.
func (a *Adapter) handleModification(ctx context.Context, sess *Session, text string) Result {
	ids := sess.ActionIDs
	if sess.PendingModifyID != "" {
		ids = []string{sess.PendingModifyID}
	}
	sess.AwaitingText = false
	sess.PendingModifyID = ""

	var changed []string
	for _, id := range ids {
		if !a.actions.RecordDecision(ctx, id, action.DecisionModified, text) {
			continue
		}
		current, _ := a.actions.Get(id)
		if a.learning != nil {
			a.learning.RecordEntry(ctx, current, text)
		}
		changed = append(changed, id)
	}

	if len(changed) > 0 {
		a.send(ctx, Outbound{Text: "Modification noted."})
	}
	return Result{Handled: true, Changed: changed}
}

// confirmExecuted records that the operator carried out an approved action.
func (a *Adapter) confirmExecuted(ctx context.Context, sess *Session, id string) Result {
	result := &action.ExecutionResult{Outcome: action.OutcomeOK, Handler: "manual", At: time.Now().UTC()}
	if !a.actions.Transition(ctx, id, action.StatusExecuted, action.Meta{Result: result}) {
		return Result{}
	}
	if final, ok := a.actions.Get(id); ok {
		if a.learning != nil {
			a.learning.RecordOutcome(ctx, final, a.liveContext())
		}
		a.appendLabel(ctx, sess, label(final))
	}
	return Result{Handled: true, Changed: []string{id}}
}

func (a *Adapter) liveContext() map[string]float64 {
	if a.live == nil {
		return nil
	}
	return a.live.Snapshot().Map()
}

func (a *Adapter) send(ctx context.Context, msg Outbound) {
	if a.channel == nil {
		return
	}
	if _, err := a.channel.Send(ctx, msg); err != nil {
		a.logger.Error("sending approval message failed", "error", err)
	}
}

// appendLabel edits the batch message to show the new outcome, when the
// message is addressable.
func (a *Adapter) appendLabel(ctx context.Context, sess *Session, l string) {
	if a.channel == nil || sess.MessageRef == "" {
		return
	}
	sess.Labels = append(sess.Labels, l)
	text := sess.MessageText + "\n\n" + strings.Join(sess.Labels, "\n")
	if err := a.channel.Edit(ctx, sess.MessageRef, text); err != nil {
		a.logger.Error("editing approval message failed", "error", err)
	}
}
