package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// HistoryLimit caps the persisted action history.
const HistoryLimit = 500

// Logger defines the logging interface used by the Manager and Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventKind describes what happened to an action.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventRefreshed  EventKind = "refreshed"
	EventTransition EventKind = "transition"
	EventDecision   EventKind = "decision"
)

// Event is delivered to observers after every change.
type Event struct {
	Kind   EventKind `json:"kind"`
	From   Status    `json:"from,omitempty"`
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

// Observer receives action events. Implementations must not call back
// into the Manager synchronously.
type Observer interface {
	ActionChanged(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// ActionChanged implements Observer.
func (f ObserverFunc) ActionChanged(ev Event) { f(ev) }

// Manager owns the action list and its history.
//
// Thread Safety: all methods are safe for concurrent use. Observers are
// called after the lock is released.
type Manager struct {
	mu        sync.Mutex
	store     store.Store
	actions   []*Action
	byID      map[string]*Action
	history   []HistoryEntry
	seq       uint64
	observers []Observer
	logger    Logger
	now       func() time.Time
}

// NewManager creates a Manager persisting to st.
func NewManager(st store.Store, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		store:  st,
		byID:   make(map[string]*Action),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// AddObserver registers o for all future events.
func (m *Manager) AddObserver(o Observer) {
	if o == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Load replaces in-memory state with the persisted action list and history.
func (m *Manager) Load(ctx context.Context) error {
	var actions []Action
	if _, err := m.store.Load(ctx, store.KeyActions, &actions); err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}
	var history []HistoryEntry
	if _, err := m.store.Load(ctx, store.KeyActionHistory, &history); err != nil {
		return fmt.Errorf("loading action history: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.actions = make([]*Action, 0, len(actions))
	m.byID = make(map[string]*Action, len(actions))
	for i := range actions {
		a := actions[i]
		if a.ID == "" {
			continue
		}
		m.actions = append(m.actions, &a)
		m.byID[a.ID] = &a
	}
	m.history = capHistory(history)

	m.logger.Info("actions loaded", "actions", len(m.actions), "history", len(m.history))
	return nil
}

// Actions returns copies of all actions in creation order.
func (m *Manager) Actions() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(nil)
}

// Filter returns copies of the actions with one of the given statuses.
func (m *Manager) Filter(statuses ...Status) []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(func(a *Action) bool {
		for _, s := range statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	})
}

// Get returns a copy of the action with id.
func (m *Manager) Get(id string) (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return Action{}, false
	}
	return a.Clone(), true
}

// History returns a copy of the bounded history, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	for i, h := range m.history {
		out[i] = HistoryEntry{Action: h.Action.Clone(), RecordedAt: h.RecordedAt}
	}
	return out
}

// Ingest stores candidate actions. A candidate that matches an open action
// (by id, or by identity key when it has none) refreshes that action's
// reason, priority and context and keeps its id, status and timestamps.
// Others become new proposed actions with a time+sequence id. The merged
// list is persisted before returning. The returned slice holds the stored
// state of every candidate, in input order.
func (m *Manager) Ingest(ctx context.Context, candidates []Action) []Action {
	if len(candidates) == 0 {
		return nil
	}

	m.mu.Lock()
	now := m.now()
	out := make([]Action, 0, len(candidates))
	events := make([]Event, 0, len(candidates))
	changed := make([]*Action, 0, len(candidates))

	for _, c := range candidates {
		if existing := m.findOpenLocked(c); existing != nil {
			if c.Reason != "" {
				existing.Reason = c.Reason
			}
			if c.Priority != "" {
				existing.Priority = c.Priority
			}
			if c.Context != nil {
				existing.Context = c.Clone().Context
			}
			changed = append(changed, existing)
			out = append(out, existing.Clone())
			events = append(events, Event{Kind: EventRefreshed, Action: existing.Clone(), At: now})
			continue
		}

		a := c.Clone()
		if a.ID == "" || m.byID[a.ID] != nil {
			a.ID = m.nextIDLocked(now)
		}
		a.Status = StatusProposed
		a.Decision = DecisionNone
		a.CreatedAt = now
		a.DecidedAt = nil
		a.ExecutedAt = nil
		a.Result = nil
		if a.Priority == "" {
			a.Priority = PriorityMedium
		}

		m.actions = append(m.actions, &a)
		m.byID[a.ID] = &a
		changed = append(changed, &a)
		out = append(out, a.Clone())
		events = append(events, Event{Kind: EventCreated, Action: a.Clone(), At: now})
	}

	m.persistLocked(ctx, now, changed...)
	observers := m.observers
	m.mu.Unlock()

	m.notify(observers, events...)
	return out
}

// Transition moves action id to status to. A self-transition is a no-op
// that succeeds without writing. Any other move not in the status graph is
// logged and rejected; the record stays unchanged.
func (m *Manager) Transition(ctx context.Context, id string, to Status, meta Meta) bool {
	m.mu.Lock()
	a, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("transition for unknown action", "action_id", id, "to", to)
		return false
	}
	from := a.Status
	if from == to {
		m.mu.Unlock()
		return true
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.logger.Warn("invalid action transition rejected", "action_id", id, "from", from, "to", to)
		return false
	}

	now := m.now()
	apply(a, to, meta, now)
	m.persistLocked(ctx, now, a)
	ev := Event{Kind: EventTransition, From: from, Action: a.Clone(), At: now}
	observers := m.observers
	m.mu.Unlock()

	m.logger.Info("action transitioned", "action_id", id, "from", from, "to", to)
	m.notify(observers, ev)
	return true
}

// RecordDecision records decision without changing status. It is used for
// modify requests, where text is the operator's modification (possibly
// empty until the follow-up message arrives). Terminal actions are left
// untouched.
func (m *Manager) RecordDecision(ctx context.Context, id string, decision Decision, text string) bool {
	m.mu.Lock()
	a, ok := m.byID[id]
	if !ok || a.Status.IsTerminal() {
		m.mu.Unlock()
		m.logger.Warn("decision for unknown or closed action ignored", "action_id", id, "decision", decision)
		return false
	}

	now := m.now()
	a.Decision = decision
	if text != "" {
		a.Modification = text
	}
	m.persistLocked(ctx, now, a)
	ev := Event{Kind: EventDecision, From: a.Status, Action: a.Clone(), At: now}
	observers := m.observers
	m.mu.Unlock()

	m.notify(observers, ev)
	return true
}

// AutoApprove approves every proposed action that does not require
// approval and returns their ids.
func (m *Manager) AutoApprove(ctx context.Context) []string {
	var ids []string
	for _, a := range m.Filter(StatusProposed) {
		if a.RequiresApproval {
			continue
		}
		if m.Transition(ctx, a.ID, StatusApproved, Meta{}) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Persist rewrites the action list and history unconditionally.
func (m *Manager) Persist(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(ctx, m.now())
}

func (m *Manager) findOpenLocked(c Action) *Action {
	if c.ID != "" {
		if a := m.byID[c.ID]; a != nil && a.Status.IsOpen() {
			return a
		}
		return nil
	}
	key := c.IdentityKey()
	for _, a := range m.actions {
		if a.Status.IsOpen() && a.IdentityKey() == key {
			return a
		}
	}
	return nil
}

func (m *Manager) nextIDLocked(now time.Time) string {
	m.seq++
	return fmt.Sprintf("act-%d-%d", now.UnixMilli(), m.seq)
}

func (m *Manager) snapshotLocked(keep func(*Action) bool) []Action {
	out := make([]Action, 0, len(m.actions))
	for _, a := range m.actions {
		if keep == nil || keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// persistLocked merges history entries for changed and writes both
// documents. Storage failures are logged; in-memory state stays
// authoritative until the next successful write.
func (m *Manager) persistLocked(ctx context.Context, now time.Time, changed ...*Action) {
	for _, a := range changed {
		m.history = mergeHistory(m.history, HistoryEntry{Action: a.Clone(), RecordedAt: now})
	}

	list := m.snapshotLocked(nil)
	if err := m.store.Save(ctx, store.KeyActions, list); err != nil {
		m.logger.Error("failed to persist actions", "error", err)
	}
	if len(changed) == 0 {
		return
	}
	if err := m.store.Save(ctx, store.KeyActionHistory, m.history); err != nil {
		m.logger.Error("failed to persist action history", "error", err)
	}
}

func (m *Manager) notify(observers []Observer, events ...Event) {
	for _, o := range observers {
		for _, ev := range events {
			o.ActionChanged(ev)
		}
	}
}

// mergeHistory replaces any entry with the same id and appends e as the
// most recent, then trims to HistoryLimit.
func mergeHistory(history []HistoryEntry, e HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(history)+1)
	for _, h := range history {
		if h.ID != e.ID {
			out = append(out, h)
		}
	}
	out = append(out, e)
	return capHistory(out)
}

func capHistory(history []HistoryEntry) []HistoryEntry {
	if len(history) > HistoryLimit {
		return append([]HistoryEntry(nil), history[len(history)-HistoryLimit:]...)
	}
	return history
}
