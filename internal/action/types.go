package action

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an action.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.IsOpen() || s.IsTerminal()
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// IsOpen reports whether the action still awaits a decision or execution.
func (s Status) IsOpen() bool {
	return s == StatusProposed || s == StatusApproved
}

// Decision records operator intent independently of status.
// The zero value means no decision has been made.
type Decision string

const (
	DecisionNone     Decision = ""
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionModified Decision = "modified"
)

// Category is the fixed action classification used for dispatch.
type Category string

const (
	CategoryEnergy  Category = "energy"
	CategoryHeating Category = "heating"
	CategoryWater   Category = "water"
	CategoryPV      Category = "pv"
	CategorySafety  Category = "safety"
)

// Categories lists every known category.
var Categories = []Category{CategoryEnergy, CategoryHeating, CategoryWater, CategoryPV, CategorySafety}

// ParseCategory normalises s and reports whether it is a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Priority orders actions for the operator.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalises s and reports whether it is a known priority.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	default:
		return "", false
	}
}

// Source records which generator produced an action.
type Source string

const (
	SourceLiveRule       Source = "live-rule"
	SourceDeviation      Source = "deviation"
	SourceModelSuggested Source = "model-suggested"
)

// Outcome of a dispatch attempt.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ExecutionResult is attached to an action when it is dispatched.
type ExecutionResult struct {
	Outcome Outcome   `json:"outcome"`
	Handler string    `json:"handler,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Action is a proposed or executed remedial step.
type Action struct {
	// Identity
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Type        string   `json:"type"`
	LearningKey string   `json:"learningKey"`

	// Presentation
	Priority     Priority `json:"priority"`
	Reason       string   `json:"reason,omitempty"`
	DeviationRef string   `json:"deviationRef,omitempty"`

	// Lifecycle
	Status           Status   `json:"status"`
	Decision         Decision `json:"decision,omitempty"`
	Source           Source   `json:"source"`
	RequiresApproval bool     `json:"requiresApproval"`
	Modification     string   `json:"modification,omitempty"`

	// Readings at creation time.
	Context map[string]float64 `json:"context,omitempty"`

	CreatedAt  time.Time        `json:"createdAt"`
	DecidedAt  *time.Time       `json:"decidedAt,omitempty"`
	ExecutedAt *time.Time       `json:"executedAt,omitempty"`
	Result     *ExecutionResult `json:"executionResult,omitempty"`
}

// IdentityKey is the content identity used when an action has no id.
func (a Action) IdentityKey() string {
	return string(a.Category) + "|" + a.Type + "|" + a.LearningKey + "|" + a.DeviationRef
}

// Clone returns a deep copy of a.
func (a Action) Clone() Action {
	cpy := a
	if a.Context != nil {
		cpy.Context = make(map[string]float64, len(a.Context))
		for k, v := range a.Context {
			cpy.Context[k] = v
		}
	}
	cpy.DecidedAt = cloneTime(a.DecidedAt)
	cpy.ExecutedAt = cloneTime(a.ExecutedAt)
	if a.Result != nil {
		r := *a.Result
		cpy.Result = &r
	}
	return cpy
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cpy := *t
	return &cpy
}

// HistoryEntry is the state of an action as of its latest change.
type HistoryEntry struct {
	Action
	RecordedAt time.Time `json:"recordedAt"`
}

// Meta carries optional data for a transition.
type Meta struct {
	// Reason overrides the action's reason when non-empty.
	Reason string
	// Result is attached on entry to executed or failed.
	Result *ExecutionResult
}
