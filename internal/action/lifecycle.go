package action

import "time"

// transitions is the allowed status graph. Terminal states have no edges.
var transitions = map[Status][]Status{
	StatusProposed: {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from → to is an edge of the status graph.
// A self-transition is not an edge; Transition treats it as a no-op.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// apply moves a to status to, which must already be validated. Decision is
// set on entering approved/rejected; timestamps are written only once.
func apply(a *Action, to Status, meta Meta, now time.Time) {
	a.Status = to

	switch to {
	case StatusApproved, StatusRejected:
		a.Decision = Decision(to)
		if a.DecidedAt == nil {
			t := now
			a.DecidedAt = &t
		}
	case StatusExecuted, StatusFailed:
		if a.ExecutedAt == nil {
			t := now
			a.ExecutedAt = &t
		}
	}

	if meta.Reason != "" {
		a.Reason = meta.Reason
	}
	if meta.Result != nil {
		r := *meta.Result
		a.Result = &r
	}
}
