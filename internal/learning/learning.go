// Package learning keeps bounded rolling records of operator decisions and
// derives per-key acceptance statistics from them.
//
// Three windows are kept independently: feedback (decision plus the live
// readings at decision time), entries (free-text modifications) and
// history (decision plus the action's creation context).
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// Window sizes.
const (
	FeedbackLimit = 50
	EntriesLimit  = 200
	HistoryLimit  = 500
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Record is one element of any learning window. Status is set only on
// outcome records, which are kept alongside decisions but never counted as
// one.
type Record struct {
	ID          string             `json:"id"`
	ActionID    string             `json:"actionId"`
	LearningKey string             `json:"learningKey"`
	Decision    action.Decision    `json:"decision"`
	Status      action.Status      `json:"status,omitempty"`
	Text        string             `json:"text,omitempty"`
	Context     map[string]float64 `json:"context,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// KeyStats aggregates decisions for one learning key.
type KeyStats struct {
	Approved       int     `json:"approved"`
	Rejected       int     `json:"rejected"`
	Modified       int     `json:"modified"`
	AcceptanceRate float64 `json:"acceptanceRate"`
}

// Store holds the three windows.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	store    store.Store
	feedback []Record
	entries  []Record
	history  []Record
	logger   Logger
	now      func() time.Time
}

// New creates an empty Store persisting to st.
func New(st store.Store, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		store:  st,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load reads all windows from storage. Missing documents leave the window
// empty.
func (s *Store) Load(ctx context.Context) error {
	var feedback, entries, history []Record
	for key, dst := range map[string]*[]Record{
		store.KeyLearningFeedback: &feedback,
		store.KeyLearningEntries:  &entries,
		store.KeyLearningHistory:  &history,
	} {
		if _, err := s.store.Load(ctx, key, dst); err != nil {
			return fmt.Errorf("loading %s: %w", key, err)
		}
	}

	s.mu.Lock()
	s.feedback = trim(feedback, FeedbackLimit)
	s.entries = trim(entries, EntriesLimit)
	s.history = trim(history, HistoryLimit)
	s.mu.Unlock()
	return nil
}

// RecordDecision appends a decision to the history window (with the
// action's creation context) and to the feedback window (with live, the
// readings at decision time).
func (s *Store) RecordDecision(ctx context.Context, a action.Action, decision action.Decision, live map[string]float64) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = trim(append(s.history, Record{
		ID:          uuid.NewString(),
		ActionID:    a.ID,
		LearningKey: a.LearningKey,
		Decision:    decision,
		Context:     copyContext(a.Context),
		Timestamp:   now,
	}), HistoryLimit)
	s.feedback = trim(append(s.feedback, Record{
		ID:          uuid.NewString(),
		ActionID:    a.ID,
		LearningKey: a.LearningKey,
		Decision:    decision,
		Context:     copyContext(live),
		Timestamp:   now,
	}), FeedbackLimit)

	s.save(ctx, store.KeyLearningHistory, s.history)
	s.save(ctx, store.KeyLearningFeedback, s.feedback)
}

// RecordOutcome appends an operator-confirmed outcome of a to the history
// and feedback windows. The record carries the operator's earlier decision
// and the action's status so the outcome can be told apart from a decision.
func (s *Store) RecordOutcome(ctx context.Context, a action.Action, live map[string]float64) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = trim(append(s.history, Record{
		ID:          uuid.NewString(),
		ActionID:    a.ID,
		LearningKey: a.LearningKey,
		Decision:    a.Decision,
		Status:      a.Status,
		Context:     copyContext(a.Context),
		Timestamp:   now,
	}), HistoryLimit)
	s.feedback = trim(append(s.feedback, Record{
		ID:          uuid.NewString(),
		ActionID:    a.ID,
		LearningKey: a.LearningKey,
		Decision:    a.Decision,
		Status:      a.Status,
		Context:     copyContext(live),
		Timestamp:   now,
	}), FeedbackLimit)

	s.save(ctx, store.KeyLearningHistory, s.history)
	s.save(ctx, store.KeyLearningFeedback, s.feedback)
}

// RecordEntry stores free-text operator input for an action.
func (s *Store) RecordEntry(ctx context.Context, a action.Action, text string) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = trim(append(s.entries, Record{
		ID:          uuid.NewString(),
		ActionID:    a.ID,
		LearningKey: a.LearningKey,
		Decision:    action.DecisionModified,
		Text:        text,
		Context:     copyContext(a.Context),
		Timestamp:   now,
	}), EntriesLimit)

	s.save(ctx, store.KeyLearningEntries, s.entries)
}

// Stats aggregates the decisions in the history window by learning key.
// Outcome records are not counted. Acceptance rate is
// approved / (approved + rejected), or 0 when neither occurred.
func (s *Store) Stats() map[string]KeyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]KeyStats)
	for _, r := range s.history {
		if r.Status != "" {
			continue
		}
		st := out[r.LearningKey]
		switch r.Decision {
		case action.DecisionApproved:
			st.Approved++
		case action.DecisionRejected:
			st.Rejected++
		case action.DecisionModified:
			st.Modified++
		}
		out[r.LearningKey] = st
	}
	for k, st := range out {
		if decided := st.Approved + st.Rejected; decided > 0 {
			st.AcceptanceRate = float64(st.Approved) / float64(decided)
		}
		out[k] = st
	}
	return out
}

// Feedback returns a copy of the feedback window, oldest first.
func (s *Store) Feedback() []Record { return s.copyOf(func() []Record { return s.feedback }) }

// Entries returns a copy of the entries window, oldest first.
func (s *Store) Entries() []Record { return s.copyOf(func() []Record { return s.entries }) }

// History returns a copy of the history window, oldest first.
func (s *Store) History() []Record { return s.copyOf(func() []Record { return s.history }) }

func (s *Store) copyOf(get func() []Record) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := get()
	out := make([]Record, len(src))
	for i, r := range src {
		r.Context = copyContext(r.Context)
		out[i] = r
	}
	return out
}

func (s *Store) save(ctx context.Context, key string, v []Record) {
	if err := s.store.Save(ctx, key, v); err != nil {
		s.logger.Error("failed to persist learning window", "key", key, "error", err)
	}
}

func trim(records []Record, limit int) []Record {
	if len(records) <= limit {
		return records
	}
	return append([]Record(nil), records[len(records)-limit:]...)
}

func copyContext(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
